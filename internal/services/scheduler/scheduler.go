// Package scheduler runs recurring and one-shot jobs on a small worker pool.
//
// Recurring jobs ride on robfig/cron with @every specs. One-shot jobs are
// named timers; arming a name that is already armed replaces the previous
// timer, which lets callers keep "the next activation" up to date as the
// underlying schedule changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "predictbot/pkg/logx"
)

type Config struct {
	Workers  int
	Timezone *time.Location
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

type onceTimer struct {
	timer   *time.Timer
	version uint64
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	c      *cron.Cron
	queue  chan task
	stopCh chan struct{}

	tmu   sync.Mutex
	once  map[string]*onceTimer
	onceN uint64
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:  cfg,
		log:  log,
		once: map[string]*onceTimer{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan task, 64)

	loc := s.cfg.Timezone
	if loc == nil {
		loc = time.Local
	}
	s.c = cron.New(cron.WithLocation(loc))

	for i := 0; i < workers; i++ {
		go s.worker(ctx)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		select {
		case <-s.c.Stop().Done():
		case <-ctx.Done():
		}
		s.c = nil
	}

	s.tmu.Lock()
	for _, ot := range s.once {
		ot.timer.Stop()
	}
	s.once = map[string]*onceTimer{}
	s.tmu.Unlock()

	s.log.Info("scheduler stopped")
}

// AddInterval registers a recurring job that fires every d.
func (s *Service) AddInterval(name string, every time.Duration, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return errors.New("scheduler not started")
	}
	spec := fmt.Sprintf("@every %s", every.String())
	_, err := s.c.AddFunc(spec, func() {
		s.enqueue(task{name: name, run: job})
	})
	return err
}

// AddOnce arms (or re-arms) a named one-shot job to fire at the given time.
// A time in the past fires immediately. Calling AddOnce again with the same
// name replaces the pending timer.
func (s *Service) AddOnce(name string, at time.Time, job func(ctx context.Context) error) {
	s.tmu.Lock()
	defer s.tmu.Unlock()

	if prev, ok := s.once[name]; ok {
		prev.timer.Stop()
	}
	s.onceN++
	version := s.onceN

	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	ot := &onceTimer{version: version}
	ot.timer = time.AfterFunc(d, func() {
		// A replaced timer may still fire before Stop lands; the version
		// check discards it.
		s.tmu.Lock()
		cur, ok := s.once[name]
		if ok && cur.version == version {
			delete(s.once, name)
		}
		s.tmu.Unlock()
		if !ok || cur.version != version {
			return
		}
		s.enqueue(task{name: name, run: job})
	})
	s.once[name] = ot
}

// CancelOnce disarms a named one-shot job if it is pending.
func (s *Service) CancelOnce(name string) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if ot, ok := s.once[name]; ok {
		ot.timer.Stop()
		delete(s.once, name)
	}
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full, dropping job", logx.String("job", t.name))
	}
}

func (s *Service) worker(ctx context.Context) {
	s.mu.Lock()
	q, stop := s.queue, s.stopCh
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t := <-q:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	start := time.Now()
	if err := t.run(ctx); err != nil {
		s.log.Warn("job failed", logx.String("job", t.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job ok", logx.String("job", t.name), logx.Duration("took", time.Since(start)))
}
