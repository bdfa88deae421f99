package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// CheckIdleReset clears file and returns true if its newest entry is
// older than minutes. A session with no entries is never idle-reset.
func (s *Store) CheckIdleReset(file string, minutes int) (bool, error) {
	if minutes <= 0 {
		return false, nil
	}
	entries, err := s.Load(file, 1)
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}
	last := entries[len(entries)-1]
	age := time.Since(time.UnixMilli(last.TS))
	if age < time.Duration(minutes)*time.Minute {
		return false, nil
	}
	if err := s.Clear(file); err != nil {
		return false, err
	}
	return true, nil
}

// DetectOverflow reports whether a provider response body indicates
// context-length exhaustion. Malformed JSON is tolerated and treated as
// "no overflow" rather than an error.
func DetectOverflow(responseBody []byte) bool {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return false
	}
	return strings.Contains(parsed.Error.Message, "request_too_large")
}

// Summarizer produces a short prose summary of entries for the given
// model; the agent engine supplies the concrete implementation (an LLM
// call), keeping this package free of a provider dependency.
type Summarizer func(ctx context.Context, model string, entries []Entry) (string, error)

// Compact summarises the older half of file's entries and replaces them
// with a single "[Compacted summary]" system entry, keeping the newer
// half verbatim. Compaction is best-effort: a summarizer error leaves
// the session untouched so it keeps growing and retries on next
// overflow.
func (s *Store) Compact(ctx context.Context, file, model string, summarize Summarizer) error {
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
	if len(entryLines) < 2 {
		return nil
	}

	var entries []Entry
	for _, l := range entryLines {
		var e Entry
		if err := json.Unmarshal([]byte(l), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}

	mid := len(entries) / 2
	older, newer := entries[:mid], entries[mid:]

	summary, err := summarize(ctx, model, older)
	if err != nil {
		slog.Warn("sessions: compaction failed, leaving session uncompacted", "file", file, "error", err)
		return nil
	}

	compacted := Entry{
		Role:    "system",
		Content: fmt.Sprintf("[Compacted summary]\n%s", summary),
		TS:      time.Now().UnixMilli(),
	}

	var out strings.Builder
	if headerLine != "" {
		out.WriteString(headerLine)
		out.WriteByte('\n')
	}
	for _, e := range append([]Entry{compacted}, newer...) {
		line, err := json.Marshal(e)
		if err != nil {
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
	}
	return atomicWriteFile(file, []byte(out.String()))
}
