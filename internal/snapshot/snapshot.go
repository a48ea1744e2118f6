// Package snapshot implements the whole-state snapshotter: a periodic,
// self-describing, binary-safe dump of the store written atomically via
// a temp-file-then-rename, grounded on the teacher's rdb.go save/load
// pair but using a self-describing JSON document instead of the
// teacher's fixed binary layout, since recovery must tolerate the format
// evolving across versions.
package snapshot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ClaytonFelipe/Altilium-db/internal/logging"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// FormatVersion lets a future Altilium release detect and migrate an
// older snapshot file instead of silently misreading it.
const FormatVersion = 1

// document is the on-disk JSON shape. Keys, string values, and hash
// field values are hex-encoded so arbitrary binary payloads survive
// through a text format without escaping ambiguity.
type document struct {
	Version int             `json:"version"`
	Entries []entryDocument `json:"entries"`
}

type entryDocument struct {
	KeyHex    string            `json:"key"`
	Kind      int               `json:"kind"`
	StrHex    string            `json:"str,omitempty"`
	HashHex   map[string]string `json:"hash,omitempty"`
	ExpiresAt int64             `json:"expires_at,omitempty"`
}

// Save writes a point-in-time copy of s to path, via a temp file flushed
// and fsynced before an atomic rename, so a crash mid-write never leaves
// a truncated or partially-written file at path.
func Save(s *store.Store, path string) error {
	snap := s.Snapshot()
	doc := document{Version: FormatVersion, Entries: make([]entryDocument, 0, len(snap))}
	for k, e := range snap {
		ed := entryDocument{
			KeyHex:    hex.EncodeToString([]byte(k)),
			Kind:      int(e.Value.Kind),
			ExpiresAt: e.ExpiresAt,
		}
		switch e.Value.Kind {
		case store.KindString:
			ed.StrHex = hex.EncodeToString(e.Value.Str)
		case store.KindHash:
			ed.HashHex = make(map[string]string, len(e.Value.Hash))
			for field, v := range e.Value.Hash {
				ed.HashHex[hex.EncodeToString([]byte(field))] = hex.EncodeToString(v)
			}
		}
		doc.Entries = append(doc.Entries, ed)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// Load reads path and returns the entries it describes. A missing file
// is not an error: it returns an empty map so startup proceeds as a cold
// store, matching the "first boot" case of the recovery protocol.
func Load(path string) (map[string]store.Entry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]store.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: parse %s: %w", path, err)
	}

	out := make(map[string]store.Entry, len(doc.Entries))
	for _, ed := range doc.Entries {
		key, err := hex.DecodeString(ed.KeyHex)
		if err != nil {
			return nil, fmt.Errorf("snapshot: decode key: %w", err)
		}
		e := store.Entry{ExpiresAt: ed.ExpiresAt}
		switch store.Kind(ed.Kind) {
		case store.KindString:
			v, err := hex.DecodeString(ed.StrHex)
			if err != nil {
				return nil, fmt.Errorf("snapshot: decode string value: %w", err)
			}
			e.Value = store.Value{Kind: store.KindString, Str: v}
		case store.KindHash:
			h := make(map[string][]byte, len(ed.HashHex))
			for fieldHex, valHex := range ed.HashHex {
				field, err := hex.DecodeString(fieldHex)
				if err != nil {
					return nil, fmt.Errorf("snapshot: decode hash field: %w", err)
				}
				val, err := hex.DecodeString(valHex)
				if err != nil {
					return nil, fmt.Errorf("snapshot: decode hash value: %w", err)
				}
				h[string(field)] = val
			}
			e.Value = store.Value{Kind: store.KindHash, Hash: h}
		default:
			return nil, fmt.Errorf("snapshot: unknown value kind %d", ed.Kind)
		}
		out[string(key)] = e
	}
	return out, nil
}

// Status tracks the outcome of the most recent snapshot save so other
// subsystems — the admin metrics surface, in particular — can observe it
// without reaching into the Snapshotter's goroutine directly.
type Status struct {
	lastSuccessUnix int64 // atomic; 0 if no snapshot has ever succeeded
}

func NewStatus() *Status { return &Status{} }

func (st *Status) recordSuccess(t time.Time) {
	atomic.StoreInt64(&st.lastSuccessUnix, t.Unix())
}

// LastSuccessUnix returns the Unix timestamp (seconds) of the most recent
// successful snapshot save, or 0 if none has succeeded yet.
func (st *Status) LastSuccessUnix() int64 {
	return atomic.LoadInt64(&st.lastSuccessUnix)
}

// Snapshotter periodically saves s to Path, logging but not failing the
// process on a write error; the next tick simply tries again.
type Snapshotter struct {
	Store    *store.Store
	Path     string
	Interval time.Duration
	Log      *logging.Logger
	Status   *Status
}

func (sn *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(sn.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := Save(sn.Store, sn.Path); err != nil {
				if sn.Log != nil {
					sn.Log.Errorf("snapshot save failed: %v", err)
				}
				continue
			}
			if sn.Status != nil {
				sn.Status.recordSuccess(time.Now())
			}
		}
	}
}
