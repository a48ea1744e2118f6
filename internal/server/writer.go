package server

import (
	"context"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/command"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// WriterTask is the single task permitted to mutate Store. It drains the
// bus in FIFO order and reports the authoritative outcome of each
// mutation back over the envelope's reply channel, so a DEL's reply
// count always reflects what was actually removed rather than a
// prediction made at the connection goroutine.
type WriterTask struct {
	Store *store.Store
}

func (w *WriterTask) Run(ctx context.Context, c *bus.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.C():
			result := w.apply(env.Cmd)
			if env.Reply != nil {
				env.Reply <- result
			}
		}
	}
}

func (w *WriterTask) apply(cmd command.Command) bus.Result {
	switch cmd.Kind {
	case command.Set:
		w.Store.ApplySet(cmd.Key, cmd.Value, cmd.ExpiresAt)
		return bus.Result{}
	case command.HSet:
		created := w.Store.ApplyHSet(cmd.Key, cmd.Field, cmd.Value)
		return bus.Result{N: created}
	case command.Del:
		removed := w.Store.ApplyDel(cmd.Keys...)
		return bus.Result{N: removed}
	default:
		return bus.Result{}
	}
}
