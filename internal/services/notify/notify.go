// Package notify forwards bus events to the admin chats. It is the single
// consumer side of the event bus: the lifecycle services publish what
// happened, this service decides which of it the admins want to hear about.
package notify

import (
	"context"
	"fmt"

	"predictbot/internal/eventbus"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

type Service struct {
	adapter  transport.Adapter
	adminIDs []int64
	log      logx.Logger

	events <-chan eventbus.Event
	unsub  func()
}

// New subscribes to the bus immediately, so events published between
// construction and Run are buffered rather than lost.
func New(adapter transport.Adapter, bus eventbus.Bus, adminIDs []int64, log logx.Logger) *Service {
	s := &Service{adapter: adapter, adminIDs: adminIDs, log: log}
	s.events, s.unsub = bus.Subscribe(64)
	return s
}

// Run blocks until ctx is done, forwarding one admin message per
// forwardable event. Meant to run under a supervisor.
func (s *Service) Run(ctx context.Context) {
	defer s.unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-s.events:
			if !ok {
				return
			}
			if text := format(e); text != "" {
				s.fanout(ctx, text)
			}
		}
	}
}

// format renders an event as an admin message, or "" for event types admins
// are not notified about (choice taps would be pure noise).
func format(e eventbus.Event) string {
	switch e.Type {
	case eventbus.EventBroadcastFinished:
		res, ok := e.Data.(broadcast.Result)
		if !ok {
			return ""
		}
		return fmt.Sprintf("📬 Prediction #%d sent: %d delivered, %d failed of %d.",
			res.PredictionID, res.Success, res.Failed, res.Total)
	case eventbus.EventPredictionScheduled:
		return fmt.Sprintf("⏰ Prediction #%d scheduled.", eventID(e))
	case eventbus.EventPredictionActivated:
		return fmt.Sprintf("🔮 Prediction #%d is live, broadcast running.", eventID(e))
	case eventbus.EventPredictionCancelled:
		return fmt.Sprintf("❌ Prediction #%d cancelled.", eventID(e))
	}
	return ""
}

func eventID(e eventbus.Event) int64 {
	id, _ := e.Data.(int64)
	return id
}

func (s *Service) fanout(ctx context.Context, text string) {
	for _, id := range s.adminIDs {
		if _, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: id}, text, nil); err != nil {
			s.log.Warn("admin notification failed", logx.Int64("chat_id", id), logx.Err(err))
		}
	}
}
