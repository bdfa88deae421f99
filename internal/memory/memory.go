// Package memory implements the agent memory store (§4.C): one JSON file
// per key under a workspace-scoped directory, plus substring and
// tokenised-scoring search over that store and over the agent's
// MEMORY.md workspace index.
package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// Entry is one stored memory record.
type Entry struct {
	Key     string    `json:"key"`
	Value   string    `json:"value"`
	Tags    []string  `json:"tags,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Store owns one memory directory (typically <workspace>/.memory). Each
// entry lives in its own file named by util.SafeFilename(key)+".json", so
// concurrent operations on different keys never contend.
type Store struct {
	dir string

	keyMu sync.Mutex
	locks map[string]*sync.Mutex

	fts *ftsIndex // nil when the shadow index could not be opened
}

// Open creates dir if needed and returns a Store backed by it. The FTS5
// shadow index is opened best-effort; if it fails, Store still works —
// search_text falls back to the pure-Go tokenizer.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create memory dir", err)
	}
	s := &Store{dir: dir, locks: make(map[string]*sync.Mutex)}
	idx, err := openFTS(filepath.Join(dir, ".fts.sqlite"))
	if err != nil {
		s.fts = nil
	} else {
		s.fts = idx
	}
	return s, nil
}

// Close releases the shadow index, if one was opened.
func (s *Store) Close() error {
	if s.fts != nil {
		return s.fts.Close()
	}
	return nil
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, util.SafeFilename(key)+".json")
}

func (s *Store) readEntry(key string) (*Entry, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bashclawerr.New(bashclawerr.NotFound, "memory key not found: "+key)
		}
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read memory entry", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "decode memory entry", err)
	}
	return &e, nil
}

func (s *Store) writeEntry(e *Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode memory entry", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".entry-*.tmp")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return bashclawerr.Wrap(bashclawerr.Internal, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return bashclawerr.Wrap(bashclawerr.Internal, "sync temp file", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, s.pathFor(e.Key)); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "rename temp file", err)
	}
	cleanup = false
	return nil
}

// Set stores value under key with the given tags, creating or overwriting
// the entry. Concurrent writers of the same key funnel through a per-key
// lock, so last-writer-wins is deterministic.
func (s *Store) Set(key, value string, tags []string) error {
	if key == "" {
		return bashclawerr.New(bashclawerr.ValidationError, "memory key must not be empty")
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	e := &Entry{Key: key, Value: value, Tags: tags, Created: now, Updated: now}
	if existing, err := s.readEntry(key); err == nil {
		e.Created = existing.Created
	}
	if err := s.writeEntry(e); err != nil {
		return err
	}
	if s.fts != nil {
		s.fts.upsert(e)
	}
	return nil
}

// Get returns the entry for key, or a NotFound *bashclawerr.Error if it
// doesn't exist.
func (s *Store) Get(key string) (*Entry, error) {
	if key == "" {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "memory key must not be empty")
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return s.readEntry(key)
}

// Delete removes key's entry. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if key == "" {
		return bashclawerr.New(bashclawerr.ValidationError, "memory key must not be empty")
	}
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "delete memory entry", err)
	}
	if s.fts != nil {
		s.fts.remove(key)
	}
	return nil
}

// List returns up to limit entries (0 = unlimited), sorted by key for
// stable output.
func (s *Store) List(limit int) ([]*Entry, error) {
	entries, err := s.allEntries()
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// allEntries reads every entry file in the directory, silently skipping
// anything that fails to parse (compact() is the explicit repair path).
func (s *Store) allEntries() ([]*Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read memory dir", err)
	}
	var out []*Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		out = append(out, &e)
	}
	return out, nil
}
