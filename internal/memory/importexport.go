package memory

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
)

// Export dumps every entry as a JSON array, sorted by key.
func (s *Store) Export() ([]byte, error) {
	entries, err := s.List(0)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "encode export", err)
	}
	return data, nil
}

// Import restores entries from a JSON array previously produced by
// Export, writing each one through Set so per-key locking and the FTS
// shadow index stay consistent.
func (s *Store) Import(file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, bashclawerr.Wrap(bashclawerr.Internal, "read import file", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, bashclawerr.Wrap(bashclawerr.ValidationError, "decode import file", err)
	}
	for _, e := range entries {
		if err := s.Set(e.Key, e.Value, e.Tags); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Compact drops entry files that fail to parse as JSON, returning how
// many were removed. The FTS shadow index, if present, is rebuilt from
// the surviving entries afterward.
func (s *Store) Compact() (int, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, bashclawerr.Wrap(bashclawerr.Internal, "read memory dir", err)
	}

	dropped := 0
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			os.Remove(path)
			dropped++
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || e.Key == "" {
			os.Remove(path)
			dropped++
		}
	}

	if s.fts != nil {
		entries, err := s.allEntries()
		if err == nil {
			s.fts.rebuild(entries)
		}
	}
	return dropped, nil
}
