package bot

import (
	"strconv"

	tele "gopkg.in/telebot.v4"

	"predictbot/internal/store"
	"predictbot/pkg/tgui"
)

// Callback actions. Option buttons carry "<action>:<prediction_id>:<option>".
const (
	actionSelect     = "select"
	actionTestSelect = "test_select"
	actionSelected   = "selected"

	actionAdminCreate  = "admin_create"
	actionAdminStats   = "admin_stats"
	actionAdminCurrent = "admin_current"
	actionAdminCancel  = "admin_cancel"
	actionAdminTest    = "admin_test"

	actionWizardConfirm = "wizard_confirm"
	actionWizardCancel  = "wizard_cancel"
)

// PredictionMarkup builds the subscriber-facing option keyboard for a
// broadcast message.
func PredictionMarkup(p store.Prediction) any {
	return predictionKeyboard(p, false)
}

// predictionKeyboard renders the three initial option buttons. Test sends
// use a separate action so choices land flagged and unrestricted.
func predictionKeyboard(p store.Prediction, test bool) *tele.ReplyMarkup {
	action := actionSelect
	if test {
		action = actionTestSelect
	}
	id := strconv.FormatInt(p.ID, 10)
	kb := tgui.NewInline()
	for i, o := range p.Options {
		n := strconv.Itoa(i + 1)
		kb.Row(tgui.Btn(o.Initial, tgui.Data(action, id, n)))
	}
	return kb.Markup()
}

// revealedKeyboard replaces the three option buttons with a single inert
// button carrying the chosen option's final label.
func revealedKeyboard(p store.Prediction, chosen int) *tele.ReplyMarkup {
	id := strconv.FormatInt(p.ID, 10)
	return tgui.NewInline().
		Row(tgui.Btn("✨ "+p.FinalLabel(chosen), tgui.Data(actionSelected, id, strconv.Itoa(chosen)))).
		Markup()
}

func adminMenuKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("📝 New prediction", tgui.Data(actionAdminCreate))).
		Row(tgui.Btn("📊 Statistics", tgui.Data(actionAdminStats))).
		Row(tgui.Btn("ℹ️ Current schedule", tgui.Data(actionAdminCurrent))).
		Row(
			tgui.Btn("📤 Test send", tgui.Data(actionAdminTest)),
			tgui.Btn("❌ Cancel scheduled", tgui.Data(actionAdminCancel)),
		).
		Markup()
}

func wizardConfirmKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(
			tgui.Btn("✅ Schedule", tgui.Data(actionWizardConfirm)),
			tgui.Btn("❌ Discard", tgui.Data(actionWizardCancel)),
		).
		Markup()
}
