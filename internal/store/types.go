package store

import (
	"errors"
	"time"

	"predictbot/internal/transport"
)

var (
	// ErrNotFound: no row matches (no active prediction, unknown id, ...).
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidTransition: a lifecycle operation was attempted from a state
	// that forbids it. Never retried automatically.
	ErrInvalidTransition = errors.New("store: invalid status transition")

	// ErrDuplicateChoice: the recipient already chose this calendar month.
	ErrDuplicateChoice = errors.New("store: choice already recorded for this month")

	// ErrInvalidOption: selected option outside 1..3.
	ErrInvalidOption = errors.New("store: selected option must be 1..3")
)

type PredictionStatus string

const (
	StatusScheduled PredictionStatus = "scheduled"
	StatusActive    PredictionStatus = "active"
	StatusCancelled PredictionStatus = "cancelled"
	StatusArchived  PredictionStatus = "archived"
)

// OptionLabels is one selectable button: the label shown initially and the
// label the button is rewritten to once chosen.
type OptionLabels struct {
	Initial string
	Final   string
}

type Prediction struct {
	ID                 int64
	Status             PredictionStatus
	Media              transport.Media
	BodyText           string
	Options            [3]OptionLabels // indexed 0..2 for options 1..3
	ScheduledAt        time.Time
	ActivatedAt        *time.Time
	BroadcastStarted   bool
	BroadcastCompleted bool
	CreatedBy          *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InitialLabels returns the three button labels in order.
func (p Prediction) InitialLabels() [3]string {
	return [3]string{p.Options[0].Initial, p.Options[1].Initial, p.Options[2].Initial}
}

// FinalLabel returns the post-selection label for option n (1..3).
func (p Prediction) FinalLabel(n int) string {
	if n < 1 || n > 3 {
		return ""
	}
	return p.Options[n-1].Final
}

// PredictionDraft is the validated content the creation wizard produces.
type PredictionDraft struct {
	Media       transport.Media
	BodyText    string
	Options     [3]OptionLabels
	ScheduledAt time.Time
	CreatedBy   *int64
}

type Recipient struct {
	ID        int64
	UserID    int64 // external messaging-platform user id
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Choice struct {
	ID           int64
	UserID       int64
	PredictionID int64
	Option       int
	Year         int
	Month        int
	IsTest       bool
	CreatedAt    time.Time
}

// Counts aggregates non-test choices for one calendar period.
type Counts struct {
	Total     int
	PerOption [3]int // index 0..2 for options 1..3
}

// Option returns the count for option n (1..3).
func (c Counts) Option(n int) int {
	if n < 1 || n > 3 {
		return 0
	}
	return c.PerOption[n-1]
}
