package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"predictbot/internal/eventbus"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
	"predictbot/pkg/tgui"
)

// The creation wizard walks an admin through building one prediction:
// media, body text, the three button labels, the three revealed texts, date,
// time, then a preview with confirm/discard buttons. One session per admin;
// starting over discards the previous session.

type wizardStep int

const (
	stepMedia wizardStep = iota
	stepText
	stepInitials
	stepFinals
	stepDate
	stepTime
	stepConfirm
)

const (
	dateLayout     = "02.01.2006"
	timeLayout     = "15:04"
	scheduleLayout = dateLayout + " " + timeLayout
)

type wizardSession struct {
	step  wizardStep
	draft store.PredictionDraft

	optIndex int    // which option label is being collected
	dateStr  string // collected at stepDate, combined at stepTime
}

func (s *Service) startWizard(ctx context.Context, chatID, userID int64) {
	s.wmu.Lock()
	s.wizards[userID] = &wizardSession{step: stepMedia}
	s.wmu.Unlock()

	s.reply(ctx, chatID, "📝 New prediction.\n\nStep 1: send the media (photo, video or GIF).", nil)
}

func (s *Service) cancelWizard(userID int64) bool {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, ok := s.wizards[userID]; !ok {
		return false
	}
	delete(s.wizards, userID)
	return true
}

func (s *Service) wizardSession(userID int64) *wizardSession {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.wizards[userID]
}

// handleWizardMessage consumes one admin message as wizard input. Returns
// false when the admin has no session, so the caller can ignore the message.
func (s *Service) handleWizardMessage(ctx context.Context, m transport.Message) bool {
	sess := s.wizardSession(m.FromID)
	if sess == nil {
		return false
	}

	switch sess.step {
	case stepMedia:
		s.wizardMedia(ctx, m, sess)
	case stepText:
		s.wizardText(ctx, m, sess)
	case stepInitials:
		s.wizardInitial(ctx, m, sess)
	case stepFinals:
		s.wizardFinal(ctx, m, sess)
	case stepDate:
		s.wizardDate(ctx, m, sess)
	case stepTime:
		s.wizardTime(ctx, m, sess)
	case stepConfirm:
		s.reply(ctx, m.ChatID, "Use the buttons under the preview to schedule or discard.", nil)
	}
	return true
}

func (s *Service) wizardMedia(ctx context.Context, m transport.Message, sess *wizardSession) {
	if m.Media == nil || !m.Media.Kind.Valid() {
		s.reply(ctx, m.ChatID, "Please send a photo, video or GIF.", nil)
		return
	}
	sess.draft.Media = *m.Media
	sess.step = stepText
	s.reply(ctx, m.ChatID, "Step 2: send the prediction text.", nil)
}

func (s *Service) wizardText(ctx context.Context, m transport.Message, sess *wizardSession) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		s.reply(ctx, m.ChatID, "The prediction text cannot be empty.", nil)
		return
	}
	sess.draft.BodyText = text
	sess.step = stepInitials
	sess.optIndex = 0
	s.reply(ctx, m.ChatID, "Step 3: send the button label for option 1.", nil)
}

func (s *Service) wizardInitial(ctx context.Context, m transport.Message, sess *wizardSession) {
	label := strings.TrimSpace(m.Text)
	if label == "" {
		s.reply(ctx, m.ChatID, "The label cannot be empty.", nil)
		return
	}
	sess.draft.Options[sess.optIndex].Initial = label
	sess.optIndex++
	if sess.optIndex < 3 {
		s.reply(ctx, m.ChatID, fmt.Sprintf("Button label for option %d.", sess.optIndex+1), nil)
		return
	}
	sess.step = stepFinals
	sess.optIndex = 0
	s.reply(ctx, m.ChatID, fmt.Sprintf("Step 4: the revealed text for %q.", sess.draft.Options[0].Initial), nil)
}

func (s *Service) wizardFinal(ctx context.Context, m transport.Message, sess *wizardSession) {
	label := strings.TrimSpace(m.Text)
	if label == "" {
		s.reply(ctx, m.ChatID, "The text cannot be empty.", nil)
		return
	}
	sess.draft.Options[sess.optIndex].Final = label
	sess.optIndex++
	if sess.optIndex < 3 {
		s.reply(ctx, m.ChatID, fmt.Sprintf("Revealed text for %q.", sess.draft.Options[sess.optIndex].Initial), nil)
		return
	}
	sess.step = stepDate
	s.reply(ctx, m.ChatID, fmt.Sprintf("Step 5: the broadcast date as %s.", dateLayout), nil)
}

func (s *Service) wizardDate(ctx context.Context, m transport.Message, sess *wizardSession) {
	raw := strings.TrimSpace(m.Text)
	if _, err := time.ParseInLocation(dateLayout, raw, s.cfg.Timezone); err != nil {
		s.reply(ctx, m.ChatID, fmt.Sprintf("Could not parse that date. Use the format %s, e.g. 01.10.2026.", dateLayout), nil)
		return
	}
	sess.dateStr = raw
	sess.step = stepTime
	s.reply(ctx, m.ChatID, fmt.Sprintf("Step 6: the broadcast time as %s (%s).", timeLayout, s.cfg.Timezone.String()), nil)
}

func (s *Service) wizardTime(ctx context.Context, m transport.Message, sess *wizardSession) {
	raw := strings.TrimSpace(m.Text)
	at, err := time.ParseInLocation(scheduleLayout, sess.dateStr+" "+raw, s.cfg.Timezone)
	if err != nil {
		s.reply(ctx, m.ChatID, fmt.Sprintf("Could not parse that time. Use the format %s, e.g. 12:00.", timeLayout), nil)
		return
	}
	if !at.After(s.now()) {
		s.reply(ctx, m.ChatID, "That moment is already in the past. Start over from the date.", nil)
		sess.step = stepDate
		return
	}
	sess.draft.ScheduledAt = at
	userID := m.FromID
	sess.draft.CreatedBy = &userID
	sess.step = stepConfirm
	s.sendWizardPreview(ctx, m.ChatID, sess)
}

func (s *Service) sendWizardPreview(ctx context.Context, chatID int64, sess *wizardSession) {
	var b strings.Builder
	b.WriteString(tgui.B("Preview").String())
	b.WriteString("\nThe media and buttons below are what subscribers will see.\n\n")
	fmt.Fprintf(&b, "Scheduled for: %s\n", tgui.Code(sess.draft.ScheduledAt.Format(scheduleLayout)))
	for i, o := range sess.draft.Options {
		fmt.Fprintf(&b, "%d. %s reveals %s\n", i+1, tgui.Esc(o.Initial), tgui.I(o.Final))
	}
	s.reply(ctx, chatID, b.String(), &transport.SendOptions{ParseMode: "HTML"})

	preview := store.Prediction{Options: sess.draft.Options}
	opts := &transport.SendOptions{ReplyMarkup: predictionKeyboard(preview, true)}
	if _, err := s.adapter.SendMedia(ctx, transport.ChatTarget{ChatID: chatID}, sess.draft.Media, sess.draft.BodyText, opts); err != nil {
		s.log.Warn("wizard preview send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	s.reply(ctx, chatID, "Schedule it?", &transport.SendOptions{ReplyMarkup: wizardConfirmKeyboard()})
}

func (s *Service) confirmWizard(ctx context.Context, cb transport.Callback) {
	sess := s.wizardSession(cb.FromID)
	if sess == nil || sess.step != stepConfirm {
		s.answer(ctx, cb.ID, "Nothing to schedule.", false)
		return
	}

	p, err := s.st.CreatePrediction(ctx, sess.draft)
	if err != nil {
		s.log.Error("create prediction failed", logx.Err(err))
		s.answer(ctx, cb.ID, "Saving failed, try again.", true)
		return
	}
	s.cancelWizard(cb.FromID)
	s.bus.Publish(eventbus.Event{Type: eventbus.EventPredictionScheduled, Data: p.ID})
	s.answer(ctx, cb.ID, "Scheduled!", false)
	s.reply(ctx, cb.ChatID,
		fmt.Sprintf("✅ Prediction #%d scheduled for %s.", p.ID, p.ScheduledAt.In(s.cfg.Timezone).Format(scheduleLayout)), nil)
	s.log.Info("prediction scheduled",
		logx.Int64("prediction_id", p.ID),
		logx.Time("at", p.ScheduledAt))

	// Re-arm the activation timer for the new schedule.
	if err := s.mon.Check(ctx); err != nil {
		s.log.Warn("schedule check failed", logx.Err(err))
	}
}
