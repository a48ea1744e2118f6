// Package bus implements the single-writer command bus: a bounded,
// ordered broadcast channel carrying mutating commands from client
// connections to every registered consumer (the writer task and the AOF
// writer). All producers see the same order; every consumer sees every
// command exactly once, or learns it has lagged.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ClaytonFelipe/Altilium-db/internal/command"
)

// DefaultCapacity is the default per-consumer queue depth, matching the
// teacher's bounded-channel sizing for its AOF/writer pipeline.
const DefaultCapacity = 1024

// Envelope wraps a published command together with a reply channel the
// writer uses to report the authoritative result of applying it (for
// example, the true count removed by a DEL) back to the connection that
// issued it.
type Envelope struct {
	Cmd   command.Command
	Reply chan Result
}

// Result carries the writer's outcome for one applied command.
type Result struct {
	// N is the generic integer result: removed-count for Del, 0/1
	// created-flag for HSet. Unused for Set.
	N   int
	Err error
}

// Bus is a bounded multi-producer, multi-consumer broadcast channel. Every
// Subscribe call registers a new consumer with its own buffered channel;
// Publish fans each envelope out to all of them in publication order.
// Publish blocks (applying backpressure to the producer) rather than drop
// a command when a consumer's queue is full.
type Bus struct {
	capacity int

	mu   sync.Mutex
	subs []*subscriber

	lagTotal int64 // atomic; count of deliveries that found a saturated queue
}

type subscriber struct {
	ch     chan Envelope
	lagged bool
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity}
}

// Consumer is the read side returned by Subscribe. Lagged reports whether
// this consumer has been marked as having missed a command. Publish always
// delivers by blocking and never marks a subscriber, so Lagged reports
// false for every consumer, the writer and AOF included.
type Consumer struct {
	ch  <-chan Envelope
	sub *subscriber
}

func (c *Consumer) C() <-chan Envelope { return c.ch }

func (c *Consumer) Lagged() bool { return c.sub.lagged }

// Subscribe registers a new consumer. Must be called before Publish is
// invoked concurrently with it, to avoid racing the subscriber list; in
// practice all consumers subscribe once during startup.
func (b *Bus) Subscribe() *Consumer {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscriber{ch: make(chan Envelope, b.capacity)}
	b.subs = append(b.subs, sub)
	return &Consumer{ch: sub.ch, sub: sub}
}

// Publish delivers env to every subscriber in registration order, blocking
// on each full queue until space frees up or ctx is cancelled. A bounded
// bus with blocking delivery never drops a command; Lagged exists for
// future non-blocking consumers, not for the writer or AOF path. Each time
// a subscriber's queue is already full when delivery is attempted, the
// producer's wait is counted in LagTotal — a consumer falling behind
// publication rate, even though it is never dropped.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- env:
			continue
		default:
		}
		atomic.AddInt64(&b.lagTotal, 1)
		select {
		case sub.ch <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// LagTotal reports the cumulative number of deliveries that found a
// subscriber's queue already full, the admin surface's proxy for bus lag
// (spec.md §4.C: a consumer "lagging" behind publication rate).
func (b *Bus) LagTotal() int64 {
	return atomic.LoadInt64(&b.lagTotal)
}
