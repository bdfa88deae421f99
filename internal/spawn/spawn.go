// Package spawn implements the spawn-record store backing the "spawn"
// and "spawn_status" tools (§4.F.2): one JSON file per asynchronous
// subagent run, polled by id rather than streamed.
package spawn

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// Status is the closed set of spawn-record states.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Record is one spawn status document.
type Record struct {
	ID          string     `json:"id"`
	Label       string     `json:"label,omitempty"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Store persists spawn records under dir, one file per id.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create spawn dir", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Start writes a fresh "running" record for id and returns it.
func (s *Store) Start(id, label string) (*Record, error) {
	rec := &Record{ID: id, Label: label, Status: StatusRunning, StartedAt: time.Now().UTC()}
	if err := s.write(id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete marks id as completed with result.
func (s *Store) Complete(id, result string) error {
	return s.finish(id, StatusCompleted, result, "")
}

// Fail marks id as errored with errMsg.
func (s *Store) Fail(id, errMsg string) error {
	return s.finish(id, StatusError, "", errMsg)
}

func (s *Store) finish(id string, status Status, result, errMsg string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.readLocked(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Status = status
	rec.CompletedAt = &now
	rec.Result = result
	rec.Error = errMsg
	return s.write(id, rec)
}

// Get returns id's record, or a NotFound error if it doesn't exist.
func (s *Store) Get(id string) (*Record, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id string) (*Record, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bashclawerr.New(bashclawerr.NotFound, "spawn record not found")
		}
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read spawn record", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "decode spawn record", err)
	}
	return &rec, nil
}

func (s *Store) write(id string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode spawn record", err)
	}
	dir := s.dir
	tmp, err := os.CreateTemp(dir, ".spawn-*.tmp")
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
	if err := os.Rename(tmpPath, s.pathFor(id)); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "rename temp file", err)
	}
	cleanup = false
	return nil
}
