package bot

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"predictbot/internal/eventbus"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/services/monitor"
	"predictbot/internal/services/scheduler"
	"predictbot/internal/services/stats"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

type sentText struct {
	chatID int64
	text   string
	markup *tele.ReplyMarkup
}

type answered struct {
	text  string
	alert bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	texts   []sentText
	media   []int64
	edits   []*tele.ReplyMarkup
	answers []answered
}

func markupOf(opt *transport.SendOptions) *tele.ReplyMarkup {
	if opt == nil {
		return nil
	}
	rm, _ := opt.ReplyMarkup.(*tele.ReplyMarkup)
	return rm
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{chatID: to.ChatID, text: text, markup: markupOf(opt)})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.texts)}, nil
}

func (f *fakeAdapter) SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.media)}, nil
}

func (f *fakeAdapter) EditReplyMarkup(ctx context.Context, ref transport.MessageRef, markup any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rm, _ := markup.(*tele.ReplyMarkup)
	f.edits = append(f.edits, rm)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answered{text: text, alert: alert})
	return nil
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) lastText() sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return sentText{}
	}
	return f.texts[len(f.texts)-1]
}

func (f *fakeAdapter) lastAnswer() answered {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return answered{}
	}
	return f.answers[len(f.answers)-1]
}

const adminID = int64(900)

func newTestBot(t *testing.T) (*Service, *store.Store, *fakeAdapter) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fa := &fakeAdapter{}
	bus := eventbus.New()
	engine := broadcast.NewEngine(broadcast.Config{
		BatchSize: 25, BatchDelay: time.Millisecond, RetryMax: 1, RetryBase: time.Millisecond, RatePerSec: 100000,
	}, fa, bus, logx.Nop())

	sched := scheduler.New(scheduler.Config{Workers: 1, Timezone: time.UTC}, logx.Nop())
	mon := monitor.New(monitor.Config{}, st, sched, engine, bus,
		func(p store.Prediction) any { return predictionKeyboard(p, false) }, logx.Nop())
	statsSvc := stats.New(st, time.UTC, logx.Nop())

	isAdmin := func(id int64) bool { return id == adminID }
	svc := New(Config{IsAdmin: isAdmin, Timezone: time.UTC}, fa, st, engine, mon, statsSvc, bus, logx.Nop())
	return svc, st, fa
}

func msgUpdate(fromID int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ID: 1, ChatID: fromID, FromID: fromID, Text: text},
	}
}

func mediaUpdate(fromID int64, m transport.Media) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ID: 1, ChatID: fromID, FromID: fromID, Media: &m},
	}
}

func cbUpdate(fromID int64, data string) transport.Update {
	return transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb1", ChatID: fromID, FromID: fromID, MessageID: 10, Data: data},
	}
}

func seedPrediction(t *testing.T, st *store.Store, at time.Time) store.Prediction {
	t.Helper()
	p, err := st.CreatePrediction(context.Background(), store.PredictionDraft{
		Media:    transport.Media{Kind: transport.MediaPhoto, FileID: "f"},
		BodyText: "body",
		Options: [3]store.OptionLabels{
			{Initial: "Love", Final: "Love awaits"},
			{Initial: "Luck", Final: "Luck follows"},
			{Initial: "Money", Final: "Money flows"},
		},
		ScheduledAt: at,
	})
	if err != nil {
		t.Fatalf("CreatePrediction: %v", err)
	}
	return p
}

func TestStartSubscribes(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()

	svc.handle(ctx, msgUpdate(101, "/start"))

	n, err := st.CountRecipients(ctx)
	if err != nil || n != 1 {
		t.Fatalf("recipients = %d (%v), want 1", n, err)
	}
	if got := fa.lastText(); !strings.Contains(got.text, "Welcome") {
		t.Fatalf("reply = %q", got.text)
	}
}

func TestStartAdminGetsMenu(t *testing.T) {
	t.Parallel()
	svc, _, fa := newTestBot(t)
	svc.handle(context.Background(), msgUpdate(adminID, "/start"))

	last := fa.lastText()
	if last.markup == nil {
		t.Fatalf("admin menu missing markup, last reply %q", last.text)
	}
}

func TestStartDeliversActivePrediction(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()
	p := seedPrediction(t, st, time.Now())
	if _, err := st.ActivatePrediction(ctx, p.ID); err != nil {
		t.Fatalf("ActivatePrediction: %v", err)
	}

	svc.handle(ctx, msgUpdate(101, "/start"))
	if len(fa.media) != 1 {
		t.Fatalf("media sends = %d, want the active prediction delivered", len(fa.media))
	}

	// A subscriber who already picked this month gets a text instead.
	if _, err := st.RecordChoice(ctx, 102, p.ID, 1, false); err != nil {
		t.Fatalf("RecordChoice: %v", err)
	}
	svc.handle(ctx, msgUpdate(102, "/start"))
	if len(fa.media) != 1 {
		t.Fatalf("media sends = %d, want no second delivery", len(fa.media))
	}
	if got := fa.lastText(); !strings.Contains(got.text, "already made your choice") {
		t.Fatalf("reply = %q", got.text)
	}
}

func TestSelectRecordsChoiceAndReveals(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()
	p := seedPrediction(t, st, time.Now())

	svc.handle(ctx, cbUpdate(101, "select:"+itoa(p.ID)+":2"))

	ans := fa.lastAnswer()
	if !strings.Contains(ans.text, "Luck follows") || !ans.alert {
		t.Fatalf("answer = %+v, want alert with final label", ans)
	}
	if len(fa.edits) != 1 {
		t.Fatalf("markup edits = %d, want 1", len(fa.edits))
	}

	counts, err := st.PredictionCounts(ctx, p.ID)
	if err != nil || counts.PerOption != [3]int{0, 1, 0} {
		t.Fatalf("counts = %+v (%v)", counts, err)
	}
}

func TestSelectTwiceRejected(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()
	p := seedPrediction(t, st, time.Now())

	svc.handle(ctx, cbUpdate(101, "select:"+itoa(p.ID)+":1"))
	svc.handle(ctx, cbUpdate(101, "select:"+itoa(p.ID)+":2"))

	ans := fa.lastAnswer()
	if !strings.Contains(ans.text, "already") {
		t.Fatalf("answer = %+v, want monthly-limit message", ans)
	}
	counts, _ := st.PredictionCounts(ctx, p.ID)
	if counts.Total != 1 {
		t.Fatalf("counts = %+v, want single recorded choice", counts)
	}
}

func TestTestSelectIsUnlimited(t *testing.T) {
	t.Parallel()
	svc, st, _ := newTestBot(t)
	ctx := context.Background()
	p := seedPrediction(t, st, time.Now())

	svc.handle(ctx, cbUpdate(adminID, "test_select:"+itoa(p.ID)+":1"))
	svc.handle(ctx, cbUpdate(adminID, "test_select:"+itoa(p.ID)+":3"))

	// Test picks are invisible to the monthly stats.
	now := time.Now().UTC()
	counts, err := st.MonthlyCounts(ctx, now.Year(), int(now.Month()))
	if err != nil || counts.Total != 0 {
		t.Fatalf("monthly counts = %+v (%v), want none", counts, err)
	}
}

func TestAdminCallbacksRequireAdmin(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()
	seedPrediction(t, st, time.Now().Add(time.Hour))

	svc.handle(ctx, cbUpdate(101, "admin_cancel"))

	if p, err := st.ScheduledPrediction(ctx); err != nil {
		t.Fatalf("scheduled prediction gone: %v", err)
	} else if p.Status != store.StatusScheduled {
		t.Fatalf("status = %s", p.Status)
	}
	if len(fa.edits) != 0 {
		t.Fatal("non-admin should not reach admin handlers")
	}
}

func TestAdminCancelScheduled(t *testing.T) {
	t.Parallel()
	svc, st, _ := newTestBot(t)
	ctx := context.Background()
	p := seedPrediction(t, st, time.Now().Add(time.Hour))

	svc.handle(ctx, cbUpdate(adminID, "admin_cancel"))

	got, err := st.PredictionByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("PredictionByID: %v", err)
	}
	if got.Status != store.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestWizardFullFlow(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()

	svc.handle(ctx, cbUpdate(adminID, "admin_create"))
	svc.handle(ctx, mediaUpdate(adminID, transport.Media{Kind: transport.MediaPhoto, FileID: "photo1"}))
	svc.handle(ctx, msgUpdate(adminID, "A fateful month ahead."))
	for _, label := range []string{"Love", "Luck", "Money", "Love awaits", "Luck follows", "Money flows"} {
		svc.handle(ctx, msgUpdate(adminID, label))
	}
	future := time.Now().UTC().Add(24 * time.Hour)
	svc.handle(ctx, msgUpdate(adminID, future.Format(dateLayout)))
	svc.handle(ctx, msgUpdate(adminID, future.Format(timeLayout)))

	// Preview media was sent to the admin.
	if len(fa.media) != 1 {
		t.Fatalf("preview media sends = %d, want 1", len(fa.media))
	}

	svc.handle(ctx, cbUpdate(adminID, "wizard_confirm"))

	p, err := st.ScheduledPrediction(ctx)
	if err != nil {
		t.Fatalf("ScheduledPrediction: %v", err)
	}
	if p.BodyText != "A fateful month ahead." || p.Media.FileID != "photo1" {
		t.Fatalf("prediction = %+v", p)
	}
	if p.Options[1].Final != "Luck follows" {
		t.Fatalf("options = %+v", p.Options)
	}
	if p.CreatedBy == nil || *p.CreatedBy != adminID {
		t.Fatalf("created_by = %v", p.CreatedBy)
	}
}

func TestWizardRejectsBadInput(t *testing.T) {
	t.Parallel()
	svc, st, fa := newTestBot(t)
	ctx := context.Background()

	svc.handle(ctx, cbUpdate(adminID, "admin_create"))

	// Text where media is expected.
	svc.handle(ctx, msgUpdate(adminID, "not media"))
	if got := fa.lastText(); !strings.Contains(got.text, "photo, video or GIF") {
		t.Fatalf("reply = %q", got.text)
	}

	svc.handle(ctx, mediaUpdate(adminID, transport.Media{Kind: transport.MediaGIF, FileID: "g"}))
	svc.handle(ctx, msgUpdate(adminID, "text"))
	for _, label := range []string{"a", "b", "c", "d", "e", "f"} {
		svc.handle(ctx, msgUpdate(adminID, label))
	}

	// Garbage date is rejected.
	svc.handle(ctx, msgUpdate(adminID, "next tuesday"))
	if got := fa.lastText(); !strings.Contains(got.text, "format") {
		t.Fatalf("reply = %q", got.text)
	}

	// A past moment is rejected once the time lands.
	svc.handle(ctx, msgUpdate(adminID, "01.01.2020"))
	svc.handle(ctx, msgUpdate(adminID, "10:00"))
	if got := fa.lastText(); !strings.Contains(got.text, "past") {
		t.Fatalf("reply = %q", got.text)
	}

	if _, err := st.ScheduledPrediction(ctx); err == nil {
		t.Fatal("nothing should be scheduled yet")
	}
}

func TestWizardCancel(t *testing.T) {
	t.Parallel()
	svc, _, fa := newTestBot(t)
	ctx := context.Background()

	svc.handle(ctx, cbUpdate(adminID, "admin_create"))
	svc.handle(ctx, cbUpdate(adminID, "wizard_cancel"))
	if got := fa.lastText(); !strings.Contains(got.text, "discarded") {
		t.Fatalf("reply = %q", got.text)
	}

	// Session is gone: wizard no longer consumes messages.
	if svc.handleWizardMessage(ctx, transport.Message{FromID: adminID, ChatID: adminID, Text: "x"}) {
		t.Fatal("wizard session should be gone")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
