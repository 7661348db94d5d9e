package store

import (
	"context"
	"fmt"

	logx "predictbot/pkg/logx"
)

// HasChosen reports whether a non-test choice exists for (userID, year,
// month). Test choices never count.
func (s *Store) HasChosen(ctx context.Context, userID int64, year, month int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM choices
		 WHERE telegram_user_id = ? AND year = ? AND month = ? AND is_test = 0`,
		userID, year, month,
	).Scan(&n)
	return n > 0, err
}

// RecordChoice stores a selection. Non-test choices are limited to one per
// recipient per calendar month (the current period, in the store's
// timezone); a second writer gets ErrDuplicateChoice from the partial unique
// index, never a silent overwrite. Test choices are always accepted.
func (s *Store) RecordChoice(ctx context.Context, userID, predictionID int64, option int, isTest bool) (Choice, error) {
	if option < 1 || option > 3 {
		return Choice{}, fmt.Errorf("record choice option %d: %w", option, ErrInvalidOption)
	}

	now := s.timeNow()
	year, month := now.Year(), int(now.Month())

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO choices(telegram_user_id, prediction_id, selected_option, year, month, is_test, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		userID, predictionID, option, year, month, boolInt(isTest), fmtTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Choice{}, ErrDuplicateChoice
		}
		return Choice{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Choice{}, err
	}

	s.log.Debug("choice recorded",
		logx.Int64("user_id", userID),
		logx.Int64("prediction_id", predictionID),
		logx.Int("option", option),
		logx.Bool("is_test", isTest))
	return Choice{
		ID:           id,
		UserID:       userID,
		PredictionID: predictionID,
		Option:       option,
		Year:         year,
		Month:        month,
		IsTest:       isTest,
		CreatedAt:    now,
	}, nil
}

// MonthlyCounts aggregates non-test choices for one calendar period.
func (s *Store) MonthlyCounts(ctx context.Context, year, month int) (Counts, error) {
	return s.counts(ctx,
		`SELECT selected_option, COUNT(*) FROM choices
		 WHERE year = ? AND month = ? AND is_test = 0
		 GROUP BY selected_option`, year, month)
}

// PredictionCounts aggregates non-test choices for one prediction across all
// periods (admins can inspect an archived prediction's result).
func (s *Store) PredictionCounts(ctx context.Context, predictionID int64) (Counts, error) {
	return s.counts(ctx,
		`SELECT selected_option, COUNT(*) FROM choices
		 WHERE prediction_id = ? AND is_test = 0
		 GROUP BY selected_option`, predictionID)
}

func (s *Store) counts(ctx context.Context, query string, args ...any) (Counts, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var option, n int
		if err := rows.Scan(&option, &n); err != nil {
			return Counts{}, err
		}
		if option >= 1 && option <= 3 {
			c.PerOption[option-1] = n
			c.Total += n
		}
	}
	return c, rows.Err()
}
