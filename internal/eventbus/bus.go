package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known event types published by the bot's services. Data payloads are
// small structs or maps; consumers type-assert what they care about.
const (
	EventPredictionScheduled = "prediction.scheduled"
	EventPredictionActivated = "prediction.activated"
	EventPredictionCancelled = "prediction.cancelled"
	EventBroadcastStarted    = "broadcast.started"
	EventBroadcastFinished   = "broadcast.finished"
	EventChoiceRecorded      = "choice.recorded"
	EventConfigReloaded      = "config.reloaded"
)

// Event is an in-memory signal used to decouple services from each other.
//
// Publish never blocks: slow subscribers drop events rather than stalling
// the publisher.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot so the lock is not held across sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may close its channel concurrently with Publish;
		// the recover absorbs the resulting send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
