package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "predictbot/pkg/logx"
)

func startedService(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Workers: 1, Timezone: time.UTC}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		s.Stop(context.Background())
		cancel()
	})
	return s
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestAddOnceFires(t *testing.T) {
	t.Parallel()
	s := startedService(t)

	var fired atomic.Int32
	s.AddOnce("job", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	})
	waitFor(t, func() bool { return fired.Load() == 1 }, "one-shot job did not fire")
}

func TestAddOncePastTimeFiresImmediately(t *testing.T) {
	t.Parallel()
	s := startedService(t)

	var fired atomic.Int32
	s.AddOnce("job", time.Now().Add(-time.Minute), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	})
	waitFor(t, func() bool { return fired.Load() == 1 }, "past-due job did not fire")
}

func TestAddOnceReplacesPrevious(t *testing.T) {
	t.Parallel()
	s := startedService(t)

	var old, replacement atomic.Int32
	s.AddOnce("job", time.Now().Add(50*time.Millisecond), func(ctx context.Context) error {
		old.Add(1)
		return nil
	})
	s.AddOnce("job", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		replacement.Add(1)
		return nil
	})

	waitFor(t, func() bool { return replacement.Load() == 1 }, "replacement did not fire")
	time.Sleep(100 * time.Millisecond)
	if old.Load() != 0 {
		t.Fatal("replaced job still fired")
	}
}

func TestCancelOnce(t *testing.T) {
	t.Parallel()
	s := startedService(t)

	var fired atomic.Int32
	s.AddOnce("job", time.Now().Add(30*time.Millisecond), func(ctx context.Context) error {
		fired.Add(1)
		return nil
	})
	s.CancelOnce("job")
	time.Sleep(100 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("cancelled job fired")
	}
}

func TestAddIntervalRequiresStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if err := s.AddInterval("job", time.Second, func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1, Timezone: time.UTC}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())
}
