package aof

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/command"
	"github.com/ClaytonFelipe/Altilium-db/internal/config"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

func TestWriterAppendsMutatingCommandsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways, nil)
	require.NoError(t, err)

	b := bus.New(4)
	c := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, c) }()

	require.NoError(t, b.Publish(ctx, bus.Envelope{Cmd: command.Command{Kind: command.Get, Key: "k"}}))
	require.NoError(t, b.Publish(ctx, bus.Envelope{Cmd: command.Command{Kind: command.Set, Key: "k", Value: []byte("v")}}))

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	require.NoError(t, w.Close())

	s := store.New()
	require.NoError(t, Replay(path, s))
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestReplayReconstructsExactHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways, nil)
	require.NoError(t, err)

	cmds := []command.Command{
		{Kind: command.Set, Key: "a", Value: []byte("1")},
		{Kind: command.HSet, Key: "h", Field: "f", Value: []byte("x")},
		{Kind: command.Set, Key: "b", Value: []byte("2"), ExpiresAt: time.Now().Add(time.Hour).UnixMilli()},
		{Kind: command.Del, Keys: []string{"a"}},
	}
	for _, c := range cmds {
		require.NoError(t, w.append(c))
	}
	require.NoError(t, w.Close())

	s := store.New()
	require.NoError(t, Replay(path, s))

	_, ok := s.Get("a")
	assert.False(t, ok)
	v, ok := s.Get("b")
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
	hv, ok := s.HGet("h", "f")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), hv)
}

func TestReplayToleratesTruncatedFinalFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways, nil)
	require.NoError(t, err)
	require.NoError(t, w.append(command.Command{Kind: command.Set, Key: "a", Value: []byte("1")}))
	require.NoError(t, w.Close())

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	truncated := append(full, []byte("*2\r\n$3\r\nSET\r\n$1\r\nb")...)
	require.NoError(t, os.WriteFile(path, truncated, 0o644))

	s := store.New()
	require.NoError(t, Replay(path, s))
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestReplayRejectsMidFileCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways, nil)
	require.NoError(t, err)
	require.NoError(t, w.append(command.Command{Kind: command.Set, Key: "a", Value: []byte("1")}))
	require.NoError(t, w.Close())

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupt := append(full, []byte("!not-resp-at-all\r\n")...)
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))

	s := store.New()
	err = Replay(path, s)
	require.Error(t, err)
	assert.True(t, IsCorruption(err))
}

func TestReplayMissingFileIsNoOp(t *testing.T) {
	s := store.New()
	require.NoError(t, Replay(filepath.Join(t.TempDir(), "missing.aof"), s))
	assert.Equal(t, 0, s.Len())
}

func TestRunSurfacesFatalErrorUnderAlwaysPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncAlways, nil)
	require.NoError(t, err)
	require.NoError(t, w.file.Close()) // force the next write to fail

	b := bus.New(4)
	c := b.Subscribe()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, c) }()

	require.NoError(t, b.Publish(ctx, bus.Envelope{Cmd: command.Command{Kind: command.Set, Key: "k", Value: []byte("v")}}))

	select {
	case runErr := <-done:
		require.Error(t, runErr)
		assert.True(t, IsFatal(runErr))
	case <-time.After(time.Second):
		t.Fatal("Run never returned after a write failure under always policy")
	}
}

func TestRunLogsAndContinuesUnderEverysecPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")
	w, err := Open(path, config.FsyncEverySec, nil)
	require.NoError(t, err)
	require.NoError(t, w.file.Close()) // force the next write to fail
	defer func() { _ = w.Close() }()

	b := bus.New(4)
	c := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, c) }()

	require.NoError(t, b.Publish(ctx, bus.Envelope{Cmd: command.Command{Kind: command.Set, Key: "k", Value: []byte("v")}}))

	select {
	case <-done:
		t.Fatal("Run returned early; a write failure under everysec should be logged, not fatal")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	<-done
}
