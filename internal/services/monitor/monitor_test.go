package monitor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"predictbot/internal/eventbus"
	"predictbot/internal/services/broadcast"
	"predictbot/internal/services/scheduler"
	"predictbot/internal/store"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	media []int64
	texts []int64
}

func (f *fakeAdapter) SendMedia(ctx context.Context, to transport.ChatTarget, m transport.Media, caption string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.media)}, nil
}

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, to.ChatID)
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) mediaCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.media)
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }
func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	return nil
}
func (f *fakeAdapter) EditReplyMarkup(ctx context.Context, ref transport.MessageRef, markup any) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error {
	return nil
}

type fixture struct {
	st      *store.Store
	adapter *fakeAdapter
	sched   *scheduler.Service
	bus     eventbus.Bus
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	fa := &fakeAdapter{}
	bus := eventbus.New()
	engine := broadcast.NewEngine(broadcast.Config{
		BatchSize:  25,
		BatchDelay: time.Millisecond,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
		RatePerSec: 100000,
	}, fa, bus, logx.Nop())

	sched := scheduler.New(scheduler.Config{Workers: 1, Timezone: time.UTC}, logx.Nop())
	sched.Start(context.Background())
	t.Cleanup(func() { sched.Stop(context.Background()) })

	markup := func(p store.Prediction) any { return nil }
	svc := New(Config{CheckInterval: time.Minute}, st, sched, engine, bus, markup, logx.Nop())
	return &fixture{st: st, adapter: fa, sched: sched, bus: bus, svc: svc}
}

func seedRecipients(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := st.EnsureRecipient(context.Background(), int64(i+1), false); err != nil {
			t.Fatalf("EnsureRecipient: %v", err)
		}
	}
}

func draft(at time.Time) store.PredictionDraft {
	return store.PredictionDraft{
		Media:    transport.Media{Kind: transport.MediaPhoto, FileID: "f"},
		BodyText: "body",
		Options: [3]store.OptionLabels{
			{Initial: "A", Final: "AA"},
			{Initial: "B", Final: "BB"},
			{Initial: "C", Final: "CC"},
		},
		ScheduledAt: at,
	}
}

func TestCheckActivatesDuePrediction(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	seedRecipients(t, fx.st, 5)
	events, unsub := fx.bus.Subscribe(8)
	defer unsub()

	p, err := fx.st.CreatePrediction(ctx, draft(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("CreatePrediction: %v", err)
	}

	if err := fx.svc.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	got, err := fx.st.PredictionByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("PredictionByID: %v", err)
	}
	if got.Status != store.StatusActive {
		t.Fatalf("status = %s, want %s", got.Status, store.StatusActive)
	}
	if !got.BroadcastCompleted {
		t.Fatal("broadcast not marked completed")
	}
	if n := fx.adapter.mediaCount(); n != 5 {
		t.Fatalf("deliveries = %d, want 5", n)
	}

	// The fan-out summary is published for the notification consumer.
	deadline := time.After(time.Second)
	for {
		select {
		case e := <-events:
			if e.Type != eventbus.EventBroadcastFinished {
				continue
			}
			res, ok := e.Data.(broadcast.Result)
			if !ok || res.PredictionID != p.ID || res.Success != 5 {
				t.Fatalf("broadcast.finished payload = %+v", e.Data)
			}
			return
		case <-deadline:
			t.Fatal("broadcast.finished event not published")
		}
	}
}

func TestStartRunsCatchUp(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	seedRecipients(t, fx.st, 2)

	p, _ := fx.st.CreatePrediction(ctx, draft(time.Now().Add(-time.Hour)))
	if err := fx.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The catch-up job runs on a scheduler worker; poll for its effect.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := fx.st.PredictionByID(ctx, p.ID)
		if got.Status == store.StatusActive && got.BroadcastCompleted {
			if n := fx.adapter.mediaCount(); n != 2 {
				t.Fatalf("deliveries = %d, want 2", n)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("overdue prediction not activated on startup")
}

func TestActivateAndBroadcastIsRaceSafe(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	seedRecipients(t, fx.st, 3)

	p, _ := fx.st.CreatePrediction(ctx, draft(time.Now()))
	if err := fx.svc.ActivateAndBroadcast(ctx, p.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := fx.svc.ActivateAndBroadcast(ctx, p.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if n := fx.adapter.mediaCount(); n != 3 {
		t.Fatalf("deliveries = %d, want 3 (no double broadcast)", n)
	}
}

func TestCheckArmsTimerForFuturePrediction(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()
	seedRecipients(t, fx.st, 2)

	p, _ := fx.st.CreatePrediction(ctx, draft(time.Now().Add(40*time.Millisecond)))
	if err := fx.svc.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// Still scheduled right after the check.
	got, _ := fx.st.PredictionByID(ctx, p.ID)
	if got.Status != store.StatusScheduled {
		t.Fatalf("status = %s immediately after check, want scheduled", got.Status)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, _ = fx.st.PredictionByID(ctx, p.ID)
		if got.Status == store.StatusActive && got.BroadcastCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timer never activated prediction, status = %s", got.Status)
}

func TestCheckNoScheduledPrediction(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	if err := fx.svc.Check(context.Background()); err != nil {
		t.Fatalf("Check with empty schedule: %v", err)
	}
}
