package bot

import (
	"context"
	"errors"
	"fmt"

	"predictbot/internal/eventbus"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

func (s *Service) handleAdminMenu(ctx context.Context, m transport.Message) {
	if !s.cfg.isAdmin(m.FromID) {
		return
	}
	s.reply(ctx, m.ChatID, "Admin menu:", &transport.SendOptions{ReplyMarkup: adminMenuKeyboard()})
}

func (s *Service) handleAdminCallback(ctx context.Context, cb transport.Callback, action string) {
	switch action {
	case actionAdminCreate:
		s.answer(ctx, cb.ID, "", false)
		s.startWizard(ctx, cb.ChatID, cb.FromID)

	case actionAdminStats:
		s.answer(ctx, cb.ID, "", false)
		s.adminStats(ctx, cb.ChatID)

	case actionAdminCurrent:
		s.answer(ctx, cb.ID, "", false)
		s.adminCurrent(ctx, cb.ChatID)

	case actionAdminCancel:
		s.adminCancelScheduled(ctx, cb)

	case actionAdminTest:
		s.answer(ctx, cb.ID, "", false)
		s.adminTestSend(ctx, cb)

	case actionWizardConfirm:
		s.confirmWizard(ctx, cb)

	case actionWizardCancel:
		if s.cancelWizard(cb.FromID) {
			s.answer(ctx, cb.ID, "Discarded.", false)
			s.reply(ctx, cb.ChatID, "Draft discarded.", nil)
		} else {
			s.answer(ctx, cb.ID, "Nothing to discard.", false)
		}
	}
}

func (s *Service) adminStats(ctx context.Context, chatID int64) {
	r, err := s.stats.CurrentMonth(ctx)
	if err != nil {
		s.log.Error("stats failed", logx.Err(err))
		s.reply(ctx, chatID, "Could not build statistics.", nil)
		return
	}
	s.reply(ctx, chatID, r.Format(), nil)
}

// adminCurrent summarizes the scheduled and active predictions.
func (s *Service) adminCurrent(ctx context.Context, chatID int64) {
	var out string

	if p, err := s.st.ScheduledPrediction(ctx); err == nil {
		out += fmt.Sprintf("⏰ Scheduled: #%d at %s\n", p.ID, p.ScheduledAt.In(s.cfg.Timezone).Format(scheduleLayout))
	} else if errors.Is(err, store.ErrNotFound) {
		out += "⏰ Nothing scheduled.\n"
	} else {
		s.log.Error("read schedule failed", logx.Err(err))
		s.reply(ctx, chatID, "Could not read the schedule.", nil)
		return
	}

	if p, err := s.st.ActivePrediction(ctx); err == nil {
		state := "broadcast finished"
		if !p.BroadcastCompleted {
			state = "broadcast in progress"
		}
		out += fmt.Sprintf("🔮 Active: #%d (%s)", p.ID, state)
	} else {
		out += "🔮 No active prediction."
	}
	s.reply(ctx, chatID, out, nil)
}

func (s *Service) adminCancelScheduled(ctx context.Context, cb transport.Callback) {
	p, err := s.st.ScheduledPrediction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.answer(ctx, cb.ID, "Nothing scheduled.", true)
		return
	}
	if err != nil {
		s.log.Error("read schedule failed", logx.Err(err))
		s.answer(ctx, cb.ID, "Could not read the schedule.", true)
		return
	}
	if err := s.st.CancelPrediction(ctx, p.ID); err != nil {
		s.log.Error("cancel failed", logx.Int64("prediction_id", p.ID), logx.Err(err))
		s.answer(ctx, cb.ID, "Cancel failed.", true)
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventPredictionCancelled, Data: p.ID})
	s.answer(ctx, cb.ID, "Cancelled.", false)
	s.reply(ctx, cb.ChatID, fmt.Sprintf("❌ Prediction #%d cancelled.", p.ID), nil)
	s.log.Info("prediction cancelled", logx.Int64("prediction_id", p.ID))

	// Disarm the now-stale activation timer.
	if err := s.mon.Check(ctx); err != nil {
		s.log.Warn("schedule check failed", logx.Err(err))
	}
}

// adminTestSend delivers the pending (or active) prediction to the admin
// only, with test-flagged buttons.
func (s *Service) adminTestSend(ctx context.Context, cb transport.Callback) {
	p, err := s.st.ScheduledPrediction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		p, err = s.st.ActivePrediction(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		s.reply(ctx, cb.ChatID, "No prediction to test.", nil)
		return
	}
	if err != nil {
		s.log.Error("read prediction failed", logx.Err(err))
		s.reply(ctx, cb.ChatID, "Could not read the prediction.", nil)
		return
	}

	msg := broadcast.Message{
		Media:   p.Media,
		Caption: p.BodyText,
		Markup:  predictionKeyboard(p, true),
	}
	if err := s.engine.SendSingle(ctx, cb.ChatID, msg); err != nil {
		s.log.Error("test send failed", logx.Int64("prediction_id", p.ID), logx.Err(err))
		s.reply(ctx, cb.ChatID, "Test send failed.", nil)
		return
	}
	s.log.Info("test send delivered", logx.Int64("prediction_id", p.ID), logx.Int64("chat_id", cb.ChatID))
}
