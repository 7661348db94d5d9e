package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	logx "predictbot/pkg/logx"
)

// EnsureRecipient returns the stored recipient for userID, creating it on
// first contact. isAdmin is applied only when the row is created; later
// changes to the allow-list do not rewrite a stored recipient's flag (live
// admin routing checks the allow-list directly, not this column).
func (s *Store) EnsureRecipient(ctx context.Context, userID int64, isAdmin bool) (Recipient, error) {
	if r, err := s.recipientByUserID(ctx, userID); err == nil {
		return r, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Recipient{}, err
	}

	now := fmtTime(s.timeNow())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients(telegram_user_id, is_admin, created_at, updated_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(telegram_user_id) DO NOTHING`,
		userID, boolInt(isAdmin), now, now,
	)
	if err != nil {
		return Recipient{}, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("recipient created", logx.Int64("user_id", userID), logx.Bool("is_admin", isAdmin))
	}
	// Re-read either way: a concurrent insert may have won the conflict.
	return s.recipientByUserID(ctx, userID)
}

func (s *Store) recipientByUserID(ctx context.Context, userID int64) (Recipient, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, telegram_user_id, is_admin, created_at, updated_at
		 FROM recipients WHERE telegram_user_id = ?`, userID)
	return scanRecipient(row, s.loc)
}

// AllRecipientIDs returns the full fan-out list. The unique constraint on
// telegram_user_id guarantees no duplicates; order is not significant.
func (s *Store) AllRecipientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT telegram_user_id FROM recipients`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CountRecipients(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(row rowScanner, loc *time.Location) (Recipient, error) {
	var (
		r                    Recipient
		admin                int
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.UserID, &admin, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Recipient{}, ErrNotFound
	}
	if err != nil {
		return Recipient{}, err
	}
	r.IsAdmin = admin != 0
	if r.CreatedAt, err = parseTime(createdAt, loc); err != nil {
		return Recipient{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt, loc); err != nil {
		return Recipient{}, err
	}
	return r, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
