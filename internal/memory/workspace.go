package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/bootstrap"
)

// WorkspaceHit is one MEMORY.md section that matched a search_workspace
// query.
type WorkspaceHit struct {
	Section string  `json:"section"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// workspaceSection is one h2-delimited block of MEMORY.md.
type workspaceSection struct {
	heading string
	body    string
}

func readWorkspaceSections(workspaceDir string) ([]workspaceSection, error) {
	path := filepath.Join(workspaceDir, bootstrap.MemoryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read workspace memory file", err)
	}

	var sections []workspaceSection
	var cur *workspaceSection
	var body strings.Builder
	flush := func() {
		if cur != nil {
			cur.body = strings.TrimSpace(body.String())
			sections = append(sections, *cur)
		}
		body.Reset()
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			cur = &workspaceSection{heading: strings.TrimSpace(strings.TrimPrefix(line, "## "))}
			continue
		}
		if cur != nil {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()
	return sections, nil
}

// SearchWorkspace scans workspaceDir's MEMORY.md for h2-delimited sections
// matching query (same tokenised scoring as SearchText, scored against
// heading + body) and returns the matching sections as snippets.
func (s *Store) SearchWorkspace(workspaceDir, query string) ([]WorkspaceHit, error) {
	if query == "" {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "search query must not be empty")
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "search query has no indexable tokens")
	}

	sections, err := readWorkspaceSections(workspaceDir)
	if err != nil {
		return nil, err
	}

	var hits []WorkspaceHit
	for _, sec := range sections {
		headingTokens := tokenSet(tokenize(sec.heading))
		bodyTokens := tokenSet(tokenize(sec.body))
		var score float64
		for _, qt := range queryTokens {
			if headingTokens[qt] {
				score += 2
			}
			if bodyTokens[qt] {
				score += 1
			}
		}
		if score > 0 {
			hits = append(hits, WorkspaceHit{Section: sec.heading, Snippet: snippet(sec.body, 280), Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Section < hits[j].Section
	})
	return hits, nil
}

func snippet(body string, max int) string {
	body = strings.TrimSpace(body)
	if len(body) <= max {
		return body
	}
	return body[:max] + "…"
}

// CombinedResult is one row from SearchAll: either a KV entry or a
// workspace section, tagged by Kind.
type CombinedResult struct {
	Kind    string  `json:"kind"` // "entry" or "workspace"
	Key     string  `json:"key"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchAll merges SearchText and SearchWorkspace results, sorted by
// score descending, capped at limit (0 = unlimited).
func (s *Store) SearchAll(workspaceDir, query string, limit int) ([]CombinedResult, error) {
	entryHits, err := s.SearchText(query, 0)
	if err != nil {
		return nil, err
	}
	wsHits, err := s.SearchWorkspace(workspaceDir, query)
	if err != nil {
		return nil, err
	}

	out := make([]CombinedResult, 0, len(entryHits)+len(wsHits))
	for _, h := range entryHits {
		out = append(out, CombinedResult{Kind: "entry", Key: h.Entry.Key, Snippet: snippet(h.Entry.Value, 280), Score: h.Score})
	}
	for _, h := range wsHits {
		out = append(out, CombinedResult{Kind: "workspace", Key: h.Section, Snippet: h.Snippet, Score: h.Score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SyncWorkspace rebuilds workspaceDir's MEMORY.md from the current set of
// stored entries, grouping them by tag (untagged entries fall into an
// "Untagged" section).
func (s *Store) SyncWorkspace(workspaceDir string) error {
	entries, err := s.allEntries()
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	byTag := map[string][]*Entry{}
	var tagOrder []string
	addTag := func(tag string, e *Entry) {
		if _, ok := byTag[tag]; !ok {
			tagOrder = append(tagOrder, tag)
		}
		byTag[tag] = append(byTag[tag], e)
	}
	for _, e := range entries {
		if len(e.Tags) == 0 {
			addTag("Untagged", e)
			continue
		}
		for _, t := range e.Tags {
			addTag(t, e)
		}
	}
	sort.Strings(tagOrder)

	var sb strings.Builder
	sb.WriteString("# Memory\n\n")
	sb.WriteString("This file is a rebuildable index over the memory store. Sections are\n")
	sb.WriteString("delimited by `##` headings; the memory store's workspace sync regenerates it from\n")
	sb.WriteString("the current set of stored entries, grouped by tag.\n\n")
	if len(tagOrder) == 0 {
		sb.WriteString("## Untagged\n\n(no entries yet)\n")
	}
	for _, tag := range tagOrder {
		sb.WriteString(fmt.Sprintf("## %s\n\n", tag))
		for _, e := range byTag[tag] {
			sb.WriteString(fmt.Sprintf("- **%s**: %s\n", e.Key, snippet(e.Value, 200)))
		}
		sb.WriteString("\n")
	}

	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "create workspace dir", err)
	}
	path := filepath.Join(workspaceDir, bootstrap.MemoryFile)
	tmp, err := os.CreateTemp(workspaceDir, ".memory-*.tmp")
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
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		return bashclawerr.Wrap(bashclawerr.Internal, "write temp file", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "rename temp file", err)
	}
	cleanup = false
	return nil
}
