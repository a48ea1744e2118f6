package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonFelipe/Altilium-db/internal/command"
)

func TestAllConsumersSeeEveryCommandInOrder(t *testing.T) {
	b := New(8)
	c1 := b.Subscribe()
	c2 := b.Subscribe()

	ctx := context.Background()
	cmds := []command.Command{
		{Kind: command.Set, Key: "a"},
		{Kind: command.Set, Key: "b"},
		{Kind: command.Del, Keys: []string{"a"}},
	}
	for _, c := range cmds {
		require.NoError(t, b.Publish(ctx, Envelope{Cmd: c}))
	}

	for _, consumer := range []*Consumer{c1, c2} {
		for _, want := range cmds {
			select {
			case env := <-consumer.C():
				assert.Equal(t, want.Kind, env.Cmd.Kind)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for envelope")
			}
		}
	}
}

func TestPublishBlocksWhenConsumerQueueFull(t *testing.T) {
	b := New(1)
	c := b.Subscribe()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Envelope{Cmd: command.Command{Kind: command.Set}}))

	done := make(chan struct{})
	go func() {
		_ = b.Publish(ctx, Envelope{Cmd: command.Command{Kind: command.Set}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("second publish should have blocked on the full queue")
	case <-time.After(50 * time.Millisecond):
	}

	<-c.C()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish never unblocked after drain")
	}
	assert.GreaterOrEqual(t, b.LagTotal(), int64(1))
}

func TestPublishRespectsContextCancellation(t *testing.T) {
	b := New(1)
	b.Subscribe()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Envelope{Cmd: command.Command{Kind: command.Set}}))

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Publish(cctx, Envelope{Cmd: command.Command{Kind: command.Set}})
	assert.ErrorIs(t, err, context.Canceled)
}
