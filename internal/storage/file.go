package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "ruletimer/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.states.snapshot.json (periodic snapshot)
//   - <prefix>.states.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	states       map[string]StateRecord

	writes int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".states.snapshot.json"
	journalPath := prefix + ".states.journal.jsonl"

	// Load states from snapshot + journal.
	states := map[string]StateRecord{}
	_ = loadStateSnapshot(snapPath, states)
	_ = replayStateJournal(journalPath, states)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		states:       states,
		writes:       0,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) PutState(ctx context.Context, item, value string, at time.Time) error {
	_ = ctx
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	rec := StateRecord{Item: item, Value: value, UpdatedAt: at}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return fmt.Errorf("%w: state journal closed", ErrDisabled)
	}
	if s.states == nil {
		s.states = map[string]StateRecord{}
	}
	s.states[item] = rec

	// Append journal record.
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) GetState(ctx context.Context, item string) (StateRecord, bool, error) {
	_ = ctx
	item = strings.TrimSpace(item)
	if item == "" {
		return StateRecord{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.states[item]
	return rec, ok, nil
}

func (s *fileStore) ListStates(ctx context.Context) ([]StateRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StateRecord, 0, len(s.states))
	for _, rec := range s.states {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out, nil
}

func (s *fileStore) compactLocked() error {
	if s.states == nil {
		return nil
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.states); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadStateSnapshot(path string, out map[string]StateRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]StateRecord
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayStateJournal(path string, out map[string]StateRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r StateRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Item == "" {
			continue
		}
		out[r.Item] = r
	}
	return sc.Err()
}
