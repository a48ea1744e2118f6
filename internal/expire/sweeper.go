// Package expire implements active expiration: a background task that
// samples the key space for past-deadline entries and removes them
// through the same command bus a client DEL would use, so expiry-driven
// deletes are durable and ordered exactly like any other mutation.
package expire

import (
	"context"
	"time"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/command"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// Defaults per the sweeper's pacing contract: bounded sample size and a
// wall-clock deadline per tick so a large key space never stalls the
// sweeper (or anything sharing its goroutine) for long.
const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultSampleSize   = 1000
	DefaultTickDeadline = 10 * time.Millisecond
)

// Sweeper periodically scans Store for expired keys and publishes a Del
// command for each batch found. It never mutates Store directly; removal
// goes through the bus so the AOF records every deletion it causes.
type Sweeper struct {
	Store        *store.Store
	Bus          *bus.Bus
	TickInterval time.Duration
	SampleSize   int
	TickDeadline time.Duration
	Now          func() int64
}

func New(s *store.Store, b *bus.Bus) *Sweeper {
	return &Sweeper{
		Store:        s,
		Bus:          b,
		TickInterval: DefaultTickInterval,
		SampleSize:   DefaultSampleSize,
		TickDeadline: DefaultTickDeadline,
		Now:          func() int64 { return time.Now().UnixMilli() },
	}
}

// Run drives the sweep loop until ctx is cancelled. Intended to be
// launched as one goroutine in the server's errgroup.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	deadline := time.Now().Add(sw.TickDeadline)
	now := sw.Now()

	for time.Now().Before(deadline) {
		keys := sw.Store.ExpiredKeys(sw.SampleSize, now)
		if len(keys) == 0 {
			return
		}
		env := bus.Envelope{Cmd: command.Command{Kind: command.Del, Keys: keys}}
		if err := sw.Bus.Publish(ctx, env); err != nil {
			return
		}
	}
}
