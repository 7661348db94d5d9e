package bot

import (
	"context"
	"errors"
	"strconv"

	"predictbot/internal/eventbus"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
	"predictbot/pkg/tgui"
)

const (
	msgWelcome      = "🔮 Welcome! Once a month you will receive a prediction with three choices. Pick the one that calls to you."
	msgAlreadyChose = "You have already made your choice this month. Come back next month!"
	msgChoiceGone   = "This prediction is no longer available."
)

func (s *Service) handleStart(ctx context.Context, m transport.Message) {
	isAdmin := s.cfg.isAdmin(m.FromID)
	if _, err := s.st.EnsureRecipient(ctx, m.FromID, isAdmin); err != nil {
		s.log.Error("subscribe failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	s.reply(ctx, m.ChatID, msgWelcome, nil)

	if isAdmin {
		s.reply(ctx, m.ChatID, "Admin menu:", &transport.SendOptions{ReplyMarkup: adminMenuKeyboard()})
		s.log.Info("subscriber started", logx.Int64("user_id", m.FromID), logx.Bool("admin", true))
		return
	}

	// A late joiner gets the month's active prediction right away, unless
	// they already picked this month.
	p, err := s.st.ActivePrediction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.log.Error("read active prediction failed", logx.Err(err))
		return
	}
	now := s.now().In(s.cfg.Timezone)
	chosen, err := s.st.HasChosen(ctx, m.FromID, now.Year(), int(now.Month()))
	if err != nil {
		s.log.Error("has-chosen check failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return
	}
	if chosen {
		s.reply(ctx, m.ChatID, msgAlreadyChose, nil)
		return
	}
	opts := &transport.SendOptions{ParseMode: "HTML", ReplyMarkup: predictionKeyboard(p, false)}
	if _, err := s.adapter.SendMedia(ctx, transport.ChatTarget{ChatID: m.ChatID}, p.Media, p.BodyText, opts); err != nil {
		s.log.Warn("active prediction delivery failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
	s.log.Info("subscriber started", logx.Int64("user_id", m.FromID), logx.Bool("admin", false))
}

func (s *Service) handleCallback(ctx context.Context, cb transport.Callback) {
	action, args := tgui.ParseData(cb.Data)
	switch action {
	case actionSelect:
		s.handleSelect(ctx, cb, args, false)
	case actionTestSelect:
		s.handleSelect(ctx, cb, args, true)
	case actionSelected:
		s.answer(ctx, cb.ID, msgAlreadyChose, false)

	case actionAdminCreate, actionAdminStats, actionAdminCurrent, actionAdminCancel, actionAdminTest,
		actionWizardConfirm, actionWizardCancel:
		if !s.cfg.isAdmin(cb.FromID) {
			s.answer(ctx, cb.ID, "", false)
			return
		}
		s.handleAdminCallback(ctx, cb, action)

	default:
		s.answer(ctx, cb.ID, "", false)
	}
}

// handleSelect records a subscriber's option pick and reveals the final
// label on the chosen button.
func (s *Service) handleSelect(ctx context.Context, cb transport.Callback, args []string, test bool) {
	if len(args) != 2 {
		s.answer(ctx, cb.ID, "", false)
		return
	}
	predID, err1 := strconv.ParseInt(args[0], 10, 64)
	option, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		s.answer(ctx, cb.ID, "", false)
		return
	}

	p, err := s.st.PredictionByID(ctx, predID)
	if err != nil {
		s.answer(ctx, cb.ID, msgChoiceGone, true)
		return
	}

	if _, err := s.st.RecordChoice(ctx, cb.FromID, predID, option, test); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateChoice):
			s.answer(ctx, cb.ID, msgAlreadyChose, true)
		case errors.Is(err, store.ErrInvalidOption):
			s.answer(ctx, cb.ID, "", false)
		default:
			s.log.Error("record choice failed",
				logx.Int64("user_id", cb.FromID),
				logx.Int64("prediction_id", predID),
				logx.Err(err))
			s.answer(ctx, cb.ID, "Something went wrong, try again.", true)
		}
		return
	}

	s.answer(ctx, cb.ID, "✨ "+p.FinalLabel(option), true)

	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	if err := s.adapter.EditReplyMarkup(ctx, ref, revealedKeyboard(p, option)); err != nil {
		s.log.Warn("reveal keyboard failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.EventChoiceRecorded, Data: map[string]any{
		"user_id":       cb.FromID,
		"prediction_id": predID,
		"option":        option,
		"is_test":       test,
	}})
	s.log.Info("choice recorded",
		logx.Int64("user_id", cb.FromID),
		logx.Int64("prediction_id", predID),
		logx.Int("option", option),
		logx.Bool("test", test))
}

func (s *Service) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := s.adapter.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		s.log.Debug("answer callback failed", logx.Err(err))
	}
}
