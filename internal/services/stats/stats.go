// Package stats assembles the admin-facing choice statistics.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"predictbot/internal/store"
	logx "predictbot/pkg/logx"
)

// Store is the slice of the persistence layer the reports read from.
type Store interface {
	CountRecipients(ctx context.Context) (int, error)
	MonthlyCounts(ctx context.Context, year, month int) (store.Counts, error)
	PredictionCounts(ctx context.Context, predictionID int64) (store.Counts, error)
	ActivePrediction(ctx context.Context) (store.Prediction, error)
	PredictionByID(ctx context.Context, id int64) (store.Prediction, error)
}

// MonthlyReport covers one calendar month across all predictions.
type MonthlyReport struct {
	Year       int
	Month      time.Month
	Recipients int
	Counts     store.Counts
	Labels     [3]string
}

// PredictionReport covers a single prediction's choices.
type PredictionReport struct {
	Prediction store.Prediction
	Counts     store.Counts
}

type Service struct {
	st  Store
	loc *time.Location
	log logx.Logger
	now func() time.Time
}

func New(st Store, loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{st: st, loc: loc, log: log, now: time.Now}
}

// CurrentMonth reports choices for the current calendar month in the bot's
// timezone. Option labels come from the active prediction when one exists.
func (s *Service) CurrentMonth(ctx context.Context) (MonthlyReport, error) {
	now := s.now().In(s.loc)
	r := MonthlyReport{Year: now.Year(), Month: now.Month()}

	n, err := s.st.CountRecipients(ctx)
	if err != nil {
		return r, fmt.Errorf("count recipients: %w", err)
	}
	r.Recipients = n

	r.Counts, err = s.st.MonthlyCounts(ctx, r.Year, int(r.Month))
	if err != nil {
		return r, fmt.Errorf("monthly counts: %w", err)
	}

	if active, err := s.st.ActivePrediction(ctx); err == nil {
		for i, o := range active.Options {
			r.Labels[i] = o.Initial
		}
	} else {
		r.Labels = [3]string{"Option 1", "Option 2", "Option 3"}
	}
	return r, nil
}

// Prediction reports choices recorded against one prediction.
func (s *Service) Prediction(ctx context.Context, id int64) (PredictionReport, error) {
	var r PredictionReport
	p, err := s.st.PredictionByID(ctx, id)
	if err != nil {
		return r, err
	}
	r.Prediction = p
	r.Counts, err = s.st.PredictionCounts(ctx, id)
	if err != nil {
		return r, fmt.Errorf("prediction counts: %w", err)
	}
	return r, nil
}

// Format renders the monthly report as the admin chat message.
func (r MonthlyReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Statistics for %s %d\n\n", r.Month, r.Year)
	fmt.Fprintf(&b, "Subscribers: %d\n", r.Recipients)
	fmt.Fprintf(&b, "Choices this month: %d\n\n", r.Counts.Total)
	for i, label := range r.Labels {
		n := r.Counts.PerOption[i]
		fmt.Fprintf(&b, "%s: %d (%s)\n", label, n, percent(n, r.Counts.Total))
	}
	return b.String()
}

// Format renders the per-prediction report as the admin chat message.
func (r PredictionReport) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Prediction #%d (%s)\n\n", r.Prediction.ID, r.Prediction.Status)
	fmt.Fprintf(&b, "Choices: %d\n\n", r.Counts.Total)
	for i, o := range r.Prediction.Options {
		n := r.Counts.PerOption[i]
		fmt.Fprintf(&b, "%s: %d (%s)\n", o.Initial, n, percent(n, r.Counts.Total))
	}
	return b.String()
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)/float64(total)*100)
}
