// Package config implements the cached JSON config tree (§4.A): load from
// disk with JSON5 tolerance, get/set by dotted path, environment-variable
// substitution, validation, and atomic backup/write-through.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Store owns the in-memory config cache and its on-disk file.
type Store struct {
	mu   sync.RWMutex
	path string
	tree map[string]any

	watcher  *fsnotify.Watcher
	watchFns []func()
	stopOnce sync.Once
	stopCh   chan struct{}
}

// InitDefault returns a Store seeded with the built-in defaults, not yet
// backed by a file (the caller typically calls Set/backup afterward, or
// discards it in favor of Load when a config file already exists).
func InitDefault(path string) *Store {
	return &Store{path: path, tree: defaultTree()}
}

// Load reads the config file at path (JSON5-tolerant), applies env-var
// substitution to every string leaf, and caches the result. A missing file
// is not an error: defaults are returned instead (matching the teacher's
// Load()'s os.IsNotExist branch).
func Load(path string) (*Store, error) {
	s := &Store{path: path, tree: defaultTree()}
	if err := s.reloadLocked(); err != nil {
		if !os.IsNotExist(errCause(err)) {
			return nil, err
		}
	}
	return s, nil
}

func errCause(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = u.Unwrap()
	}
}

func (s *Store) reloadLocked() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	merged := defaultTree()
	mergeInto(merged, raw)
	substituteTree(merged)

	s.mu.Lock()
	s.tree = merged
	s.mu.Unlock()
	return nil
}

// Reload discards the cache and re-reads the file from disk.
func (s *Store) Reload() error {
	return s.reloadLocked()
}

// Watch registers fn to run after every successful reload triggered by the
// filesystem watcher started via WatchFile. Multiple callbacks may be
// registered; they run in registration order.
func (s *Store) Watch(fn func()) {
	s.mu.Lock()
	s.watchFns = append(s.watchFns, fn)
	s.mu.Unlock()
}

// WatchFile starts an fsnotify watch on the config file, debouncing rapid
// write events (editors often rename-over-write) by 250ms before reloading.
func (s *Store) WatchFile() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	s.stopCh = make(chan struct{})

	go func() {
		var debounce *time.Timer
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					if err := s.Reload(); err != nil {
						slog.Warn("config: reload after file change failed", "error", err)
						return
					}
					s.mu.RLock()
					fns := append([]func(){}, s.watchFns...)
					s.mu.RUnlock()
					for _, fn := range fns {
						fn()
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config: watcher error", "error", err)
			case <-s.stopCh:
				return
			}
		}
	}()
	return nil
}

// StopWatch stops the filesystem watcher started by WatchFile, if any.
func (s *Store) StopWatch() {
	s.stopOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
		}
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// Get returns the value at the dotted path, or def if absent.
func (s *Store) Get(path string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := getPath(s.tree, path)
	if !ok {
		return def
	}
	return v
}

// GetString is a convenience wrapper over Get for string-typed leaves.
func (s *Store) GetString(path, def string) string {
	v := s.Get(path, def)
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

// GetInt is a convenience wrapper over Get for numeric leaves (JSON numbers
// decode to float64).
func (s *Store) GetInt(path string, def int) int {
	v := s.Get(path, nil)
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

// Set assigns value at path, updates the cache, and writes the whole tree
// through to disk atomically (temp file + rename).
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	setPath(s.tree, path, value)
	snapshot := cloneTree(s.tree)
	s.mu.Unlock()
	return writeTreeAtomic(s.path, snapshot)
}

// Snapshot returns a deep copy of the current cached tree, e.g. for API
// responses that must not alias internal state.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTree(s.tree)
}

func writeTreeAtomic(path string, tree map[string]any) error {
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
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
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Backup rotates <path>.bak.N, keeping the newest as .bak.1, and returns the
// path it just wrote. Existing backups shift up by one slot; anything past
// the retention window (10) is discarded.
func (s *Store) Backup() (string, error) {
	const maxBackups = 10
	s.mu.RLock()
	data, err := json.MarshalIndent(s.tree, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}

	for n := maxBackups - 1; n >= 1; n-- {
		src := fmt.Sprintf("%s.bak.%d", s.path, n)
		dst := fmt.Sprintf("%s.bak.%d", s.path, n+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	backupPath := s.path + ".bak.1"
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return "", err
	}
	return backupPath, nil
}

// EnvSubstitute replaces every ${VAR} reference in s with the value of the
// named environment variable, substituting the empty string when unset.
// Missing variables never fail.
func (s *Store) EnvSubstitute(in string) string {
	return envSubstitute(in)
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func envSubstitute(in string) string {
	return envRefPattern.ReplaceAllStringFunc(in, func(match string) string {
		name := envRefPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func substituteTree(node any) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			if str, ok := child.(string); ok {
				v[k] = envSubstitute(str)
			} else {
				substituteTree(child)
			}
		}
	case []any:
		for i, child := range v {
			if str, ok := child.(string); ok {
				v[i] = envSubstitute(str)
			} else {
				substituteTree(child)
			}
		}
	}
}

// mergeInto recursively overlays src onto dst (both map[string]any), so a
// partial user config only overrides the keys it actually sets.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeInto(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

func cloneTree(tree map[string]any) map[string]any {
	data, _ := json.Marshal(tree)
	var out map[string]any
	json.Unmarshal(data, &out)
	return out
}

// AgentGet looks up agents.list[] by id, falling back to agents.defaults,
// then to def.
func (s *Store) AgentGet(agentID, field string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if list, ok := getPath(s.tree, "agents.list"); ok {
		if arr, ok := list.([]any); ok {
			for _, item := range arr {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if id, _ := m["id"].(string); id == agentID {
					if v, ok := getPath(m, field); ok {
						return v
					}
					break
				}
			}
		}
	}
	if v, ok := getPath(s.tree, "agents.defaults."+field); ok {
		return v
	}
	return def
}

// ChannelGet looks up channels.<name>.<field>, falling back to
// channels.defaults.<field>, then to def.
func (s *Store) ChannelGet(channel, field string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := getPath(s.tree, "channels."+channel+"."+field); ok {
		return v
	}
	if v, ok := getPath(s.tree, "channels.defaults."+field); ok {
		return v
	}
	return def
}

// AgentIDs returns every id present in agents.list[].
func (s *Store) AgentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	if list, ok := getPath(s.tree, "agents.list"); ok {
		if arr, ok := list.([]any); ok {
			for _, item := range arr {
				if m, ok := item.(map[string]any); ok {
					if id, _ := m["id"].(string); id != "" {
						ids = append(ids, id)
					}
				}
			}
		}
	}
	return ids
}

func defaultTree() map[string]any {
	return map[string]any{
		"agents": map[string]any{
			"defaults": map[string]any{
				"engine":        "builtin",
				"provider":      "anthropic",
				"model":         "claude-sonnet-4-5-20250929",
				"maxTurns":      float64(50),
				"systemPrompt":  "",
				"workspace":     "~/.bashclaw/workspace",
			},
			"list": []any{},
		},
		"channels": map[string]any{},
		"session": map[string]any{
			"scope":             "per-channel-peer",
			"idleResetMinutes":  float64(720),
		},
		"gateway": map[string]any{
			"port":        float64(8780),
			"maxBodySize": float64(10 * 1024 * 1024),
			"auth":        map[string]any{"token": ""},
			"cors":        map[string]any{},
			"uiDir":       "",
		},
		"cron": map[string]any{
			"stuckRunMs": float64(10 * 60 * 1000),
		},
		"identityLinks": []any{},
	}
}
