package rpcconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store owns the single in-memory Record and its JSON file.
type Store struct {
	path      string
	mu        sync.Mutex
	rec       Record
	observers []func(Record)
}

// Open loads the record at path, seeding the default record when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, rec: DefaultRecord()}
	if _, err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load re-reads the record from disk. A missing file is created with the
// default record, which is then returned verbatim.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.rec = DefaultRecord()
		if err := s.write(); err != nil {
			return Record{}, err
		}
		return s.rec.Clone(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read config: %w", err)
	}

	// Keys missing from the file keep their default values.
	rec := DefaultRecord()
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse config %s: %w", s.path, err)
	}
	if rec.RPC.Buttons == nil {
		rec.RPC.Buttons = []Button{}
	}
	s.rec = rec
	return s.rec.Clone(), nil
}

// Snapshot returns a copy of the current record.
func (s *Store) Snapshot() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Clone()
}

// Merge applies p to the in-memory record and returns the result. The file
// is not touched until Persist.
func (s *Store) Merge(p Patch) Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.apply(&s.rec)
	return s.rec.Clone()
}

// Persist writes the current record and then notifies observers with it.
// Observers run under the store lock and must not call back into the store.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(); err != nil {
		return err
	}
	snap := s.rec.Clone()
	for _, fn := range s.observers {
		fn(snap.Clone())
	}
	return nil
}

// Update merges p and persists in one step.
func (s *Store) Update(p Patch) (Record, error) {
	rec := s.Merge(p)
	if err := s.Persist(); err != nil {
		return rec, err
	}
	return rec, nil
}

// Observe registers fn to be called after every successful Persist.
func (s *Store) Observe(fn func(Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// write stores s.rec atomically. Caller holds s.mu.
func (s *Store) write() error {
	data, err := json.MarshalIndent(s.rec, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
