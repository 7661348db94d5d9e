package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logx "predictbot/pkg/logx"
)

const predictionColumns = `id, status, media_kind, media_ref, body_text,
	option_1_initial, option_2_initial, option_3_initial,
	option_1_final, option_2_final, option_3_final,
	scheduled_at, activated_at, broadcast_started, broadcast_completed,
	created_by, created_at, updated_at`

// CreatePrediction inserts a new scheduled prediction. Any existing
// scheduled prediction is superseded (transitioned to cancelled) in the same
// transaction, so there is never a window with two scheduled rows visible.
func (s *Store) CreatePrediction(ctx context.Context, draft PredictionDraft) (Prediction, error) {
	if !draft.Media.Kind.Valid() {
		return Prediction{}, fmt.Errorf("store: unsupported media kind %q", draft.Media.Kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Prediction{}, err
	}
	defer tx.Rollback()

	now := fmtTime(s.timeNow())
	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions SET status = ?, updated_at = ? WHERE status = ?`,
		StatusCancelled, now, StatusScheduled,
	); err != nil {
		return Prediction{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO predictions(
			status, media_kind, media_ref, body_text,
			option_1_initial, option_2_initial, option_3_initial,
			option_1_final, option_2_final, option_3_final,
			scheduled_at, created_by, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		StatusScheduled, draft.Media.Kind, draft.Media.FileID, draft.BodyText,
		draft.Options[0].Initial, draft.Options[1].Initial, draft.Options[2].Initial,
		draft.Options[0].Final, draft.Options[1].Final, draft.Options[2].Final,
		fmtTime(draft.ScheduledAt), nullInt64(draft.CreatedBy), now, now,
	)
	if err != nil {
		return Prediction{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Prediction{}, err
	}
	if err := tx.Commit(); err != nil {
		return Prediction{}, err
	}

	s.log.Info("prediction created",
		logx.Int64("id", id),
		logx.Time("scheduled_at", draft.ScheduledAt),
		logx.String("media_kind", string(draft.Media.Kind)))
	return s.PredictionByID(ctx, id)
}

// ActivatePrediction moves a scheduled prediction to active: any currently
// active prediction is archived, activated_at is stamped and
// broadcast_started is set, all in one transaction. Activating from any
// other state fails with ErrInvalidTransition and changes nothing.
func (s *Store) ActivatePrediction(ctx context.Context, id int64) (Prediction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Prediction{}, err
	}
	defer tx.Rollback()

	var status PredictionStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM predictions WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return Prediction{}, ErrNotFound
	}
	if err != nil {
		return Prediction{}, err
	}
	if status != StatusScheduled {
		return Prediction{}, fmt.Errorf("activate prediction %d from %s: %w", id, status, ErrInvalidTransition)
	}

	now := s.timeNow()
	nowStr := fmtTime(now)
	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions SET status = ?, updated_at = ? WHERE status = ?`,
		StatusArchived, nowStr, StatusActive,
	); err != nil {
		return Prediction{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE predictions
		 SET status = ?, activated_at = ?, broadcast_started = 1, updated_at = ?
		 WHERE id = ?`,
		StatusActive, nowStr, nowStr, id,
	); err != nil {
		return Prediction{}, err
	}
	if err := tx.Commit(); err != nil {
		return Prediction{}, err
	}

	s.log.Info("prediction activated", logx.Int64("id", id), logx.Time("at", now))
	return s.PredictionByID(ctx, id)
}

// MarkBroadcastCompleted is idempotent: marking twice is a no-op.
func (s *Store) MarkBroadcastCompleted(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE predictions SET broadcast_completed = 1, updated_at = ? WHERE id = ?`,
		fmtTime(s.timeNow()), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPrediction cancels a scheduled prediction. Cancelling from any other
// state (including active) fails with ErrInvalidTransition.
func (s *Store) CancelPrediction(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE predictions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled, fmtTime(s.timeNow()), id, StatusScheduled,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish missing row from wrong state for the error message.
		if _, err := s.PredictionByID(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("cancel prediction %d: %w", id, ErrInvalidTransition)
	}
	s.log.Info("prediction cancelled", logx.Int64("id", id))
	return nil
}

func (s *Store) ActivePrediction(ctx context.Context) (Prediction, error) {
	return s.predictionWhere(ctx, `status = ?`, StatusActive)
}

func (s *Store) ScheduledPrediction(ctx context.Context) (Prediction, error) {
	return s.predictionWhere(ctx, `status = ?`, StatusScheduled)
}

func (s *Store) PredictionByID(ctx context.Context, id int64) (Prediction, error) {
	return s.predictionWhere(ctx, `id = ?`, id)
}

func (s *Store) predictionWhere(ctx context.Context, where string, args ...any) (Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE `+where, args...)
	return scanPrediction(row, s.loc)
}

func scanPrediction(row rowScanner, loc *time.Location) (Prediction, error) {
	var (
		p                     Prediction
		scheduledAt           string
		activatedAt           sql.NullString
		started, completed    int
		createdBy             sql.NullInt64
		createdAt, updatedAt  string
	)
	err := row.Scan(
		&p.ID, &p.Status, &p.Media.Kind, &p.Media.FileID, &p.BodyText,
		&p.Options[0].Initial, &p.Options[1].Initial, &p.Options[2].Initial,
		&p.Options[0].Final, &p.Options[1].Final, &p.Options[2].Final,
		&scheduledAt, &activatedAt, &started, &completed,
		&createdBy, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Prediction{}, ErrNotFound
	}
	if err != nil {
		return Prediction{}, err
	}

	if p.ScheduledAt, err = parseTime(scheduledAt, loc); err != nil {
		return Prediction{}, err
	}
	if activatedAt.Valid {
		t, err := parseTime(activatedAt.String, loc)
		if err != nil {
			return Prediction{}, err
		}
		p.ActivatedAt = &t
	}
	p.BroadcastStarted = started != 0
	p.BroadcastCompleted = completed != 0
	if createdBy.Valid {
		v := createdBy.Int64
		p.CreatedBy = &v
	}
	if p.CreatedAt, err = parseTime(createdAt, loc); err != nil {
		return Prediction{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt, loc); err != nil {
		return Prediction{}, err
	}
	return p, nil
}
