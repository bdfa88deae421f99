package sessions

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// ListAgentSessions scans baseDir for every session file belonging to
// agent (or every session file if agent is empty), supporting the
// debug `GET /api/sessions` route.
func (s *Store) ListAgentSessions(agent string) ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read sessions dir", err)
	}

	var prefix string
	if agent != "" {
		prefix = util.SafeFilename(agent)
	}

	var out []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		if prefix != "" && !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		path := filepath.Join(s.baseDir, e.Name())
		count, bytes, modTime, err := s.statFile(path)
		if err != nil {
			continue
		}
		out = append(out, SessionInfo{Path: path, EntryCount: count, Bytes: bytes, LastModified: modTime})
	}
	return out, nil
}

// Stats returns a cheap entry count plus byte size for file, used by
// the session_status tool.
func (s *Store) Stats(file string) (entries int64, bytes int64, err error) {
	entries, bytes, _, err = s.statFile(file)
	return entries, bytes, err
}

func (s *Store) statFile(path string) (entries, bytes int64, modTime time.Time, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		return 0, 0, time.Time{}, bashclawerr.Wrap(bashclawerr.Internal, "stat session file", statErr)
	}
	count, loadErr := s.Count(path)
	if loadErr != nil {
		return 0, info.Size(), info.ModTime(), loadErr
	}
	return int64(count), info.Size(), info.ModTime(), nil
}
