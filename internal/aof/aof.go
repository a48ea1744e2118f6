// Package aof implements the append-only command log: a second consumer
// of the command bus that re-encodes each mutating command as a RESP
// array and appends it to a file, plus the replay logic used at startup
// to reconstruct store state exactly. Grounded on the teacher's aof.go,
// which does the same job against its own hand-rolled Writer/Deserialize
// pair; here the encoding is internal/command's RESP round trip instead.
package aof

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/command"
	"github.com/ClaytonFelipe/Altilium-db/internal/config"
	"github.com/ClaytonFelipe/Altilium-db/internal/logging"
	"github.com/ClaytonFelipe/Altilium-db/internal/resp"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// CorruptionError marks an AOF file that failed to parse somewhere other
// than a truncated final frame. Per the recovery protocol this is fatal:
// the caller must abort startup rather than silently drop history.
type CorruptionError struct{ msg string }

func (e *CorruptionError) Error() string { return "aof: corrupt: " + e.msg }

// FatalError marks an AOF write or fsync failure under the "always"
// durability policy. The server cannot claim a command is durable when
// this happens, so it is surfaced to the supervisor rather than logged
// and ignored like a transient failure under "everysec"/"no".
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return "aof: fatal write failure: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err denotes an unrecoverable AOF write failure.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Writer appends RESP-encoded mutating commands to an AOF file, applying
// the configured fsync policy.
type Writer struct {
	file   *os.File
	policy config.FsyncPolicy
	log    *logging.Logger

	everySecStop chan struct{}
}

// Open opens path for appending, creating it if absent, and returns a
// Writer ready to consume from a bus.Consumer.
func Open(path string, policy config.FsyncPolicy, log *logging.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	w := &Writer{file: f, policy: policy, log: log}
	if policy == config.FsyncEverySec {
		w.everySecStop = make(chan struct{})
		go w.fsyncTicker()
	}
	return w, nil
}

func (w *Writer) fsyncTicker() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.file.Sync(); err != nil && w.log != nil {
				w.log.Errorf("aof fsync failed: %v", err)
			}
		case <-w.everySecStop:
			return
		}
	}
}

// Run consumes envelopes from c, appending every mutating command to the
// AOF file until ctx is cancelled.
func (w *Writer) Run(ctx context.Context, c *bus.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-c.C():
			if !env.Cmd.IsMutating() {
				continue
			}
			if err := w.append(env.Cmd); err != nil {
				if w.policy == config.FsyncAlways {
					if w.log != nil {
						w.log.Errorf("aof append failed under always-fsync policy, surfacing fatal error: %v", err)
					}
					return &FatalError{Err: err}
				}
				if w.log != nil {
					w.log.Errorf("aof append failed: %v", err)
				}
			}
		}
	}
}

func (w *Writer) append(cmd command.Command) error {
	frame := resp.Encode(command.ToRespArray(cmd))
	if _, err := w.file.Write(frame); err != nil {
		return err
	}
	if w.policy == config.FsyncAlways {
		return w.file.Sync()
	}
	return nil
}

// Close fsyncs and closes the underlying file, stopping the everysec
// ticker goroutine if one is running. A close error takes precedence over
// a sync error.
func (w *Writer) Close() error {
	if w.everySecStop != nil {
		close(w.everySecStop)
	}
	syncErr := w.file.Sync()
	if err := w.file.Close(); err != nil {
		return err
	}
	return syncErr
}

// Replay reads every command frame in the AOF at path, in order, applying
// each to s exactly as the writer task would. A truncated final frame
// (the process crashed mid-write) is tolerated and discarded; any other
// parse failure is reported as a *CorruptionError and replay stops.
func Replay(path string, s *store.Store) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("aof: open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("aof: read %s: %w", path, err)
	}

	pos := 0
	for pos < len(data) {
		v, n, err := resp.Decode(data[pos:])
		if err == resp.ErrIncomplete {
			// A partial final frame means the process died mid-append;
			// the partial bytes are discarded, matching the recovery
			// protocol's "truncated final frame is tolerated" rule.
			break
		}
		if err != nil {
			return &CorruptionError{msg: fmt.Sprintf("frame at offset %d: %v", pos, err)}
		}
		cmd, err := command.FromRespArray(v)
		if err != nil {
			return &CorruptionError{msg: fmt.Sprintf("command at offset %d: %v", pos, err)}
		}
		applyReplayed(s, cmd)
		pos += n
	}
	return nil
}

func applyReplayed(s *store.Store, cmd command.Command) {
	switch cmd.Kind {
	case command.Set:
		s.ApplySet(cmd.Key, cmd.Value, cmd.ExpiresAt)
	case command.HSet:
		s.ApplyHSet(cmd.Key, cmd.Field, cmd.Value)
	case command.Del:
		s.ApplyDel(cmd.Keys...)
	}
}

// IsCorruption reports whether err denotes non-recoverable AOF damage,
// as opposed to a benign truncated tail.
func IsCorruption(err error) bool {
	_, ok := err.(*CorruptionError)
	return ok
}
