package cron

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// Store owns the single job-store file, atomically replaced on every
// write.
type Store struct {
	path string
	mu   sync.Mutex
}

// OpenStore loads (or initializes) the job store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create cron store dir", err)
	}
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeLocked(jobFile{Version: 1, Jobs: nil}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) readLocked() (jobFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return jobFile{Version: 1}, nil
		}
		return jobFile{}, bashclawerr.Wrap(bashclawerr.Internal, "read cron store", err)
	}
	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return jobFile{}, bashclawerr.Wrap(bashclawerr.Internal, "decode cron store", err)
	}
	return f, nil
}

func (s *Store) writeLocked(f jobFile) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode cron store", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cron-*.tmp")
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
	if err := os.Rename(tmpPath, s.path); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "rename temp file", err)
	}
	cleanup = false
	return nil
}

// Add appends a job. Duplicate ids are permitted — both entries persist
// and are both evaluated by the runner.
func (s *Store) Add(id string, schedule ScheduleSpec, prompt, sessionTarget string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.readLocked()
	if err != nil {
		return err
	}
	f.Jobs = append(f.Jobs, Job{
		ID:            id,
		Schedule:      schedule,
		Prompt:        prompt,
		SessionTarget: sessionTarget,
		Enabled:       true,
	})
	return s.writeLocked(f)
}

// Remove drops every job whose id matches.
func (s *Store) Remove(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.readLocked()
	if err != nil {
		return 0, err
	}
	var kept []Job
	removed := 0
	for _, j := range f.Jobs {
		if j.ID == id {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	f.Jobs = kept
	if err := s.writeLocked(f); err != nil {
		return 0, err
	}
	return removed, nil
}

// List returns every job currently stored.
func (s *Store) List() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return f.Jobs, nil
}

// update replaces the job at index i in-place (used by the runner to
// persist LastRunAt/Failures after a run). Not exported: callers go
// through Runner, which holds the authoritative index mapping.
func (s *Store) update(i int, j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.readLocked()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(f.Jobs) {
		return bashclawerr.New(bashclawerr.NotFound, "cron job index out of range")
	}
	f.Jobs[i] = j
	return s.writeLocked(f)
}
