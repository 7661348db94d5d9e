// Package bot routes incoming Telegram updates to the subscriber and admin
// handlers and hosts the prediction creation wizard.
package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	"predictbot/internal/eventbus"
	rtsup "predictbot/internal/runtime/supervisor"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/services/monitor"
	"predictbot/internal/services/stats"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

type Config struct {
	// IsAdmin consults the live allow-list; the persisted recipient flag is
	// a snapshot taken at first contact, never this.
	IsAdmin  func(id int64) bool
	Timezone *time.Location
}

func (c Config) isAdmin(id int64) bool {
	return c.IsAdmin != nil && c.IsAdmin(id)
}

type Service struct {
	cfg     Config
	adapter transport.Adapter
	st      *store.Store
	engine  *broadcast.Engine
	mon     *monitor.Service
	stats   *stats.Service
	bus     eventbus.Bus
	log     logx.Logger

	updates chan transport.Update
	sup     *rtsup.Supervisor

	wmu     sync.Mutex
	wizards map[int64]*wizardSession

	now func() time.Time
}

func New(cfg Config, adapter transport.Adapter, st *store.Store, engine *broadcast.Engine, mon *monitor.Service, statsSvc *stats.Service, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.Local
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		st:      st,
		engine:  engine,
		mon:     mon,
		stats:   statsSvc,
		bus:     bus,
		log:     log,
		wizards: map[int64]*wizardSession{},
		now:     time.Now,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.updates = make(chan transport.Update, 256)
	if err := s.adapter.Start(ctx, s.updates); err != nil {
		return err
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "bot"))))
	s.sup.Go0("updates.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up := <-s.updates:
				s.handle(c, up)
			}
		}
	})
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	err := s.adapter.Stop(ctx)
	if s.sup != nil {
		s.sup.Cancel()
		_ = s.sup.Wait(ctx)
	}
	return err
}

func (s *Service) handle(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", logx.Any("panic", r))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			s.handleMessage(ctx, *up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, *up.Callback)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, m transport.Message) {
	text := strings.TrimSpace(m.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		s.handleStart(ctx, m)
		return
	case strings.HasPrefix(text, "/admin"):
		s.handleAdminMenu(ctx, m)
		return
	}

	// Anything else from an admin may be wizard input.
	if s.cfg.isAdmin(m.FromID) && s.handleWizardMessage(ctx, m) {
		return
	}
}

func (s *Service) reply(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) {
	if _, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}
