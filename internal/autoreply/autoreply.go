// Package autoreply implements pattern-based auto-responses evaluated
// before an agent is invoked (§4.I): rules are matched by fixed-string
// alternation, never as regular expressions.
package autoreply

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// Rule is one autoreply binding.
type Rule struct {
	ID       string `json:"id"`
	Pattern  string `json:"pattern"` // "|"-separated literal alternatives
	Response string `json:"response"`
	Channel  string `json:"channel,omitempty"` // empty = any channel
	Priority int    `json:"priority"`
}

// Store owns a directory of one-JSON-file-per-rule autoreply rules.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// Open creates dir if needed and returns a Store backed by it.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create autoreply dir", err)
	}
	return &Store{dir: dir}, nil
}

// Add stores a new rule, returning the id assigned to it.
func (s *Store) Add(pattern, response, channel string, priority int) (string, error) {
	if pattern == "" {
		return "", bashclawerr.New(bashclawerr.ValidationError, "autoreply pattern must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := util.NewID()
	r := &Rule{ID: id, Pattern: pattern, Response: response, Channel: channel, Priority: priority}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", bashclawerr.Wrap(bashclawerr.Internal, "encode autoreply rule", err)
	}
	path := filepath.Join(s.dir, util.SafeFilename(id)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", bashclawerr.Wrap(bashclawerr.Internal, "write autoreply rule", err)
	}
	return id, nil
}

// Remove deletes a rule by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, util.SafeFilename(id)+".json")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "remove autoreply rule", err)
	}
	return nil
}

// List returns every rule, sorted by ascending priority then id.
func (s *Store) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read autoreply dir", err)
	}
	var rules []*Rule
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		var r Rule
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		rules = append(rules, &r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// Check iterates rules in ascending priority order and returns the first
// match's response. A rule matches when its Channel is empty, when channel
// is empty, or when the two are equal, and when any "|"-separated literal substring of
// Pattern appears literally in message. Empty messages never match.
func (s *Store) Check(message, channel string) (string, bool, error) {
	if message == "" {
		return "", false, nil
	}
	rules, err := s.List()
	if err != nil {
		return "", false, err
	}
	for _, r := range rules {
		if r.Channel != "" && channel != "" && r.Channel != channel {
			continue
		}
		if matchesAlternation(r.Pattern, message) {
			return r.Response, true, nil
		}
	}
	return "", false, nil
}

// matchesAlternation reports whether any "|"-delimited literal substring
// of pattern appears literally (not as regex) in message.
func matchesAlternation(pattern, message string) bool {
	for _, lit := range strings.Split(pattern, "|") {
		if lit == "" {
			continue
		}
		if strings.Contains(message, lit) {
			return true
		}
	}
	return false
}
