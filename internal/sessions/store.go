package sessions

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
	"github.com/google/uuid"
)

// Store resolves, creates, and mutates session files under a base
// sessions directory, serialising concurrent access per file.
type Store struct {
	baseDir string
	scope   Scope
	locks   *lockTable
}

// Open wires a Store to baseDir (created if absent), keyed according to
// scope (§3's session.scope).
func Open(baseDir string, scope Scope) (*Store, error) {
	if scope == "" {
		scope = ScopePerChannelPeer
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create sessions dir", err)
	}
	return &Store{baseDir: baseDir, scope: scope, locks: newLockTable(256)}, nil
}

// File produces the stable path for an agent+channel+sender tuple,
// shaped by the store's scope.
func (s *Store) File(agent, channel, sender string) string {
	var parts []string
	switch s.scope {
	case ScopeGlobal:
		parts = []string{agent}
	case ScopePerChannel:
		parts = []string{agent, channel}
	case ScopePerSender:
		parts = []string{agent, channel, sender}
	case ScopePerChannelPeer:
		parts = []string{agent, channel, sender}
	default:
		parts = []string{agent, channel, sender}
	}
	name := util.SafeFilename(strings.Join(parts, ":"))
	return filepath.Join(s.baseDir, name+".jsonl")
}

func (s *Store) metaPath(file string) string {
	return file + ".meta.json"
}

// Append ensures the header exists (writing it exactly once), then
// appends one JSON-lines entry under the per-file lock. Each entry is
// written with a single Write call so concurrent readers never observe
// a partial line.
func (s *Store) Append(file, role, content string) error {
	mu := s.locks.get(file)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "create session parent dir", err)
	}

	if err := s.writeHeaderIfAbsent(file); err != nil {
		return err
	}

	entry := Entry{Role: role, Content: content, TS: time.Now().UnixMilli()}
	line, err := json.Marshal(entry)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode session entry", err)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "open session file", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "append session entry", err)
	}
	return nil
}

func (s *Store) writeHeaderIfAbsent(file string) error {
	info, err := os.Stat(file)
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "stat session file", err)
	}

	header := Header{
		Type:      "session",
		Version:   "1",
		Engine:    "bashclaw",
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	line, err := json.Marshal(header)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode session header", err)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "create session file", err)
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// Load returns entries in file order, skipping the header, malformed
// lines, and entries whose role is null/empty. If maxLines > 0, only
// the newest maxLines entries are returned.
func (s *Store) Load(file string, maxLines int) ([]Entry, error) {
	lines, headerSeen, err := s.readLines(file)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, line := range lines {
		if i == 0 && headerSeen {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			slog.Warn("sessions: skipping malformed line", "file", file, "line", i, "error", err)
			continue
		}
		if e.Role == "" {
			continue
		}
		entries = append(entries, e)
	}

	if maxLines > 0 && len(entries) > maxLines {
		entries = entries[len(entries)-maxLines:]
	}
	return entries, nil
}

// LoadAsMessages projects Load's result down to {role, content}.
func (s *Store) LoadAsMessages(file string, maxLines int) ([]Message, error) {
	entries, err := s.Load(file, maxLines)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, len(entries))
	for i, e := range entries {
		msgs[i] = Message{Role: e.Role, Content: e.Content}
	}
	return msgs, nil
}

// Count returns the number of non-header entries in file.
func (s *Store) Count(file string) (int, error) {
	entries, err := s.Load(file, 0)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// readLines returns every line of file and whether the first line
// parses as a valid session header. A missing file yields no lines.
func (s *Store) readLines(file string) (lines []string, headerSeen bool, err error) {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, bashclawerr.Wrap(bashclawerr.Internal, "open session file", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if first {
			first = false
			var h Header
			if err := json.Unmarshal([]byte(line), &h); err == nil && h.Type == "session" {
				headerSeen = true
			}
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, bashclawerr.Wrap(bashclawerr.Internal, "scan session file", err)
	}
	return lines, headerSeen, nil
}

// Prune rewrites file retaining the header plus the newest keep entries.
func (s *Store) Prune(file string, keep int) error {
	mu := s.locks.get(file)
	mu.Lock()
	defer mu.Unlock()

	lines, headerSeen, err := s.readLines(file)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	var headerLine string
	entryLines := lines
	if headerSeen {
		headerLine = lines[0]
		entryLines = lines[1:]
	}
	if keep < 0 {
		keep = 0
	}
	if len(entryLines) > keep {
		entryLines = entryLines[len(entryLines)-keep:]
	}

	var out strings.Builder
	if headerLine != "" {
		out.WriteString(headerLine)
		out.WriteByte('\n')
	}
	for _, l := range entryLines {
		out.WriteString(l)
		out.WriteByte('\n')
	}
	return atomicWriteFile(file, []byte(out.String()))
}

// Clear truncates file to zero bytes (the next Append rewrites a fresh
// header).
func (s *Store) Clear(file string) error {
	mu := s.locks.get(file)
	mu.Lock()
	defer mu.Unlock()
	if err := os.Truncate(file, 0); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return bashclawerr.Wrap(bashclawerr.Internal, "truncate session file", err)
	}
	return nil
}

// Delete removes file and its sidecar metadata.
func (s *Store) Delete(file string) error {
	mu := s.locks.get(file)
	mu.Lock()
	defer mu.Unlock()
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "remove session file", err)
	}
	if err := os.Remove(s.metaPath(file)); err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "remove session meta file", err)
	}
	lockFile := file + ".lock"
	os.Remove(lockFile)
	return nil
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
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
	if err := os.Rename(tmpPath, path); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "rename temp file", err)
	}
	cleanup = false
	return nil
}
