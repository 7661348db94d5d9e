// Package broadcast fans a single message out to every subscriber.
//
// Delivery is paced in fixed-size batches with a pause between them, plus a
// token-bucket rate limiter across individual sends, so a large subscriber
// list never trips the platform's flood control. Failures are classified:
// flood-control pushback is waited out, dead chats fail fast, everything
// else gets a bounded exponential-backoff retry.
package broadcast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"predictbot/internal/eventbus"
	"predictbot/internal/transport"
	logx "predictbot/pkg/logx"
)

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	RetryMax   int
	RetryBase  time.Duration
	RatePerSec int
}

func (c *Config) normalize() {
	if c.BatchSize <= 0 {
		c.BatchSize = 25
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 5 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
}

// Message is the content delivered to each recipient.
type Message struct {
	Media   transport.Media
	Caption string
	Markup  any
}

// Result summarizes one completed fan-out. It is also the payload of the
// broadcast.finished event.
type Result struct {
	PredictionID int64
	Total        int
	Success      int
	Failed       int
	FailedIDs    []int64
	Took         time.Duration
}

type Engine struct {
	cfg     Config
	adapter transport.Adapter
	bus     eventbus.Bus
	log     logx.Logger
	limiter *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg Config, adapter transport.Adapter, bus eventbus.Bus, log logx.Logger) *Engine {
	cfg.normalize()
	return &Engine{
		cfg:     cfg,
		adapter: adapter,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sleep:   sleepCtx,
	}
}

// Broadcast sends msg to every id in recipients. It returns early only on
// context cancellation; individual delivery failures are tallied, not fatal.
// onProgress, if non-nil, is invoked after each batch; a panicking callback
// is absorbed so a cosmetic progress display cannot kill the fan-out.
func (e *Engine) Broadcast(ctx context.Context, predictionID int64, msg Message, recipients []int64, onProgress func(done, total int)) (Result, error) {
	start := time.Now()
	res := Result{PredictionID: predictionID, Total: len(recipients)}

	e.bus.Publish(eventbus.Event{Type: eventbus.EventBroadcastStarted, Data: predictionID})
	e.log.Info("broadcast started",
		logx.Int64("prediction_id", predictionID),
		logx.Int("recipients", len(recipients)))

	for off := 0; off < len(recipients); off += e.cfg.BatchSize {
		end := off + e.cfg.BatchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		for _, id := range recipients[off:end] {
			if err := e.sendWithRetry(ctx, id, msg); err != nil {
				if ctx.Err() != nil {
					res.Took = time.Since(start)
					return res, ctx.Err()
				}
				res.Failed++
				res.FailedIDs = append(res.FailedIDs, id)
				e.log.Warn("broadcast delivery failed",
					logx.Int64("chat_id", id),
					logx.Err(err))
				continue
			}
			res.Success++
		}

		notifyProgress(onProgress, res.Success+res.Failed, res.Total)

		if end < len(recipients) {
			if err := e.sleep(ctx, e.cfg.BatchDelay); err != nil {
				res.Took = time.Since(start)
				return res, err
			}
		}
	}

	res.Took = time.Since(start)
	e.bus.Publish(eventbus.Event{Type: eventbus.EventBroadcastFinished, Data: res})
	e.log.Info("broadcast finished",
		logx.Int64("prediction_id", predictionID),
		logx.Int("success", res.Success),
		logx.Int("failed", res.Failed),
		logx.Duration("took", res.Took))
	return res, nil
}

// SendSingle delivers msg to one chat with the same retry policy as a
// broadcast. Used for admin previews and test sends.
func (e *Engine) SendSingle(ctx context.Context, chatID int64, msg Message) error {
	return e.sendWithRetry(ctx, chatID, msg)
}

func (e *Engine) sendWithRetry(ctx context.Context, chatID int64, msg Message) error {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryMax; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := e.adapter.SendMedia(ctx, transport.ChatTarget{ChatID: chatID}, msg.Media, msg.Caption, &transport.SendOptions{
			ParseMode:   "HTML",
			ReplyMarkup: msg.Markup,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		// Blocked bot or dead chat; retrying cannot help.
		if errors.Is(err, transport.ErrForbidden) || errors.Is(err, transport.ErrBadRequest) {
			return err
		}
		if attempt+1 >= e.cfg.RetryMax {
			break
		}
		// Flood pushback gets the server's wait, everything else doubles
		// from the base.
		wait, ok := transport.RetryAfter(err)
		if !ok {
			wait = e.cfg.RetryBase << attempt
		}
		if serr := e.sleep(ctx, wait); serr != nil {
			return serr
		}
	}
	return lastErr
}

func notifyProgress(fn func(done, total int), done, total int) {
	if fn == nil {
		return
	}
	defer func() { _ = recover() }()
	fn(done, total)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
