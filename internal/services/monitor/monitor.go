// Package monitor watches the schedule and fires due predictions.
//
// A recurring check keeps a one-shot timer armed at the next scheduled
// activation time, so activation lands on the minute rather than on the next
// poll. Activation itself re-reads the row under a mutex, which makes the
// timer path and the poll path safe to race: whichever runs second finds the
// prediction no longer scheduled and backs off.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"predictbot/internal/eventbus"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/services/scheduler"
	"predictbot/internal/store"
	logx "predictbot/pkg/logx"
)

const (
	activateJob = "prediction.activate"
	catchupJob  = "prediction.catchup"
)

type Config struct {
	CheckInterval time.Duration
}

// Store is the slice of the persistence layer the monitor needs.
type Store interface {
	ScheduledPrediction(ctx context.Context) (store.Prediction, error)
	ActivePrediction(ctx context.Context) (store.Prediction, error)
	PredictionByID(ctx context.Context, id int64) (store.Prediction, error)
	ActivatePrediction(ctx context.Context, id int64) (store.Prediction, error)
	MarkBroadcastCompleted(ctx context.Context, id int64) error
	AllRecipientIDs(ctx context.Context) ([]int64, error)
}

type Service struct {
	cfg    Config
	st     Store
	sched  *scheduler.Service
	engine *broadcast.Engine
	bus    eventbus.Bus
	log    logx.Logger

	// markup builds the inline keyboard for a prediction's initial options.
	markup func(p store.Prediction) any

	runMu sync.Mutex
	now   func() time.Time
}

func New(cfg Config, st Store, sched *scheduler.Service, engine *broadcast.Engine, bus eventbus.Bus, markup func(p store.Prediction) any, log logx.Logger) *Service {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Service{
		cfg:    cfg,
		st:     st,
		sched:  sched,
		engine: engine,
		bus:    bus,
		markup: markup,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.sched.AddInterval("prediction.check", s.cfg.CheckInterval, s.Check); err != nil {
		return err
	}
	// Cover anything that came due while the bot was down. Runs on a
	// scheduler worker so a failure lands in the job log, not nowhere.
	s.sched.AddOnce(catchupJob, s.now(), s.Check)
	return nil
}

// Check is one poll of the schedule. It arms (or re-arms) the activation
// timer for the pending prediction, fires immediately if it is already due,
// and reports an active prediction whose fan-out never finished.
func (s *Service) Check(ctx context.Context) error {
	s.checkIncomplete(ctx)

	p, err := s.st.ScheduledPrediction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.sched.CancelOnce(activateJob)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schedule: %w", err)
	}

	if !p.ScheduledAt.After(s.now()) {
		return s.ActivateAndBroadcast(ctx, p.ID)
	}
	id := p.ID
	s.sched.AddOnce(activateJob, p.ScheduledAt, func(ctx context.Context) error {
		return s.ActivateAndBroadcast(ctx, id)
	})
	return nil
}

// ActivateAndBroadcast promotes the prediction to active and fans it out to
// every recipient. Safe to call from racing paths: only the caller that
// finds the row still scheduled proceeds.
func (s *Service) ActivateAndBroadcast(ctx context.Context, id int64) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	p, err := s.st.PredictionByID(ctx, id)
	if err != nil {
		return fmt.Errorf("read prediction %d: %w", id, err)
	}
	if p.Status != store.StatusScheduled {
		s.log.Debug("activation skipped, prediction no longer scheduled",
			logx.Int64("prediction_id", id),
			logx.String("status", string(p.Status)))
		return nil
	}

	active, err := s.st.ActivatePrediction(ctx, id)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("activate prediction %d: %w", id, err)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventPredictionActivated, Data: active.ID})
	s.log.Info("prediction activated", logx.Int64("prediction_id", active.ID))

	recipients, err := s.st.AllRecipientIDs(ctx)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	if _, err := s.engine.Broadcast(ctx, active.ID, broadcast.Message{
		Media:   active.Media,
		Caption: active.BodyText,
		Markup:  s.markup(active),
	}, recipients, nil); err != nil {
		return fmt.Errorf("broadcast prediction %d: %w", active.ID, err)
	}

	if err := s.st.MarkBroadcastCompleted(ctx, active.ID); err != nil {
		return fmt.Errorf("mark broadcast completed: %w", err)
	}
	return nil
}

func (s *Service) checkIncomplete(ctx context.Context) {
	p, err := s.st.ActivePrediction(ctx)
	if err != nil {
		return
	}
	if p.BroadcastStarted && !p.BroadcastCompleted {
		s.log.Warn("active prediction has an unfinished broadcast",
			logx.Int64("prediction_id", p.ID))
	}
}
