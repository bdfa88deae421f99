package cron

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// RunFunc invokes the agent engine on behalf of a due job, returning a
// short human-readable summary of what happened.
type RunFunc func(ctx context.Context, job Job) (summary string, err error)

// Runner ticks over the job store, launching due jobs and reaping marker
// files left behind by runs that never completed.
type Runner struct {
	store   *Store
	runsDir string
	stuckMs int64
	run     RunFunc

	tickInterval time.Duration
}

// NewRunner wires a Runner to store, using stateDir/cron/runs for marker
// and run-log files. stuckMs is the age at which an in-progress .run
// marker is considered abandoned (default 10 minutes if 0).
func NewRunner(store *Store, stateDir string, stuckMs int64, run RunFunc) (*Runner, error) {
	if stuckMs <= 0 {
		stuckMs = 10 * 60 * 1000
	}
	runsDir := filepath.Join(stateDir, "cron", "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create cron runs dir", err)
	}
	return &Runner{store: store, runsDir: runsDir, stuckMs: stuckMs, run: run, tickInterval: time.Second}, nil
}

// Start runs the tick loop until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CheckStuck(); err != nil {
				slog.Warn("cron: check_stuck failed", "error", err)
			}
			if err := r.Tick(ctx); err != nil {
				slog.Warn("cron: tick failed", "error", err)
			}
		}
	}
}

// Tick enumerates jobs once, launching every enabled, due job that has no
// in-progress marker.
func (r *Runner) Tick(ctx context.Context) error {
	jobs, err := r.store.List()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for i, job := range jobs {
		if !job.Enabled {
			continue
		}
		if r.hasMarker(job.ID) {
			continue
		}
		due := NextRun(job.Schedule, job.LastRunAt)
		if due == 0 || due > now {
			continue
		}
		r.launch(ctx, i, job)
	}
	return nil
}

func (r *Runner) markerPath(id, nonce string) string {
	return filepath.Join(r.runsDir, util.SafeFilename(id)+"_"+nonce+".run")
}

func (r *Runner) hasMarker(id string) bool {
	prefix := util.SafeFilename(id) + "_"
	entries, err := os.ReadDir(r.runsDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".run") {
			return true
		}
	}
	return false
}

func (r *Runner) launch(ctx context.Context, index int, job Job) {
	nonce := util.NewID()
	marker := r.markerPath(job.ID, nonce)
	startEpoch := time.Now().Unix()
	os.WriteFile(marker, []byte(strconv.FormatInt(startEpoch, 10)), 0644)

	go func() {
		defer os.Remove(marker)
		start := time.Now()
		summary, err := r.run(ctx, job)
		duration := time.Since(start).Milliseconds()

		updated := job
		updated.LastRunAt = time.Now().Unix()
		status := "success"
		errMsg := ""
		if err != nil {
			status = "error"
			errMsg = err.Error()
			updated.Failures++
			updated.LastRunAt = time.Now().Unix() + r.Backoff(updated.Failures)
		} else {
			updated.Failures = 0
		}
		if err := r.store.update(index, updated); err != nil {
			slog.Warn("cron: failed to persist job state", "id", job.ID, "error", err)
		}
		if err := r.LogRun(job.ID, status, errMsg, duration, summary); err != nil {
			slog.Warn("cron: failed to log run", "id", job.ID, "error", err)
		}
	}()
}

// CheckStuck removes .run markers older than stuckMs and logs an error
// entry for each one, returning the number reaped.
func (r *Runner) CheckStuck() (int, error) {
	entries, err := os.ReadDir(r.runsDir)
	if err != nil {
		return 0, bashclawerr.Wrap(bashclawerr.Internal, "read cron runs dir", err)
	}
	now := time.Now().UnixMilli()
	reaped := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".run") {
			continue
		}
		path := filepath.Join(r.runsDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		startEpoch, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			continue
		}
		ageMs := now - startEpoch*1000
		if ageMs < r.stuckMs {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".run")
		if idx := strings.LastIndex(id, "_"); idx >= 0 {
			id = id[:idx]
		}
		id = util.UnsafeFilename(id)
		os.Remove(path)
		reaped++
		r.LogRun(id, "error", "stuck run marker reaped after exceeding cron.stuckRunMs", 0, "")
	}
	return reaped, nil
}

// RemoveStuck deletes every .run marker for id regardless of age — a
// manual operator escape hatch alongside the automatic CheckStuck,
// for when an operator is certain a job's run is dead (process killed,
// host rebooted) before stuckMs has elapsed.
func (r *Runner) RemoveStuck(id string) (int, error) {
	entries, err := os.ReadDir(r.runsDir)
	if err != nil {
		return 0, bashclawerr.Wrap(bashclawerr.Internal, "read cron runs dir", err)
	}
	prefix := util.SafeFilename(id) + "_"
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".run") || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(r.runsDir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		r.LogRun(id, "error", "stuck run marker removed by operator", 0, "")
	}
	return removed, nil
}

// Backoff returns the defer delay, in seconds, after failures consecutive
// failures: min(3600, 30*2^failures).
func (r *Runner) Backoff(failures int) int64 {
	delay := 30 * math.Pow(2, float64(failures))
	if delay > 3600 {
		delay = 3600
	}
	return int64(delay)
}

// RunLogEntry is one line of a job's run log.
type RunLogEntry struct {
	TS         int64  `json:"ts"`
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Summary    string `json:"summary,omitempty"`
}

func (r *Runner) logPath(id string) string {
	return filepath.Join(r.runsDir, util.SafeFilename(id)+".jsonl")
}

const maxRunLogBytes = 5 * 1024 * 1024

// LogRun appends one line to id's run log, rotating in place (keeping the
// newest half) once the file exceeds 5 MiB.
func (r *Runner) LogRun(id, status, errMsg string, durationMs int64, summary string) error {
	entry := RunLogEntry{TS: time.Now().UnixMilli(), JobID: id, Status: status, Error: errMsg, DurationMs: durationMs, Summary: summary}
	line, err := json.Marshal(entry)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode run log entry", err)
	}

	path := r.logPath(id)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "open run log", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return bashclawerr.Wrap(bashclawerr.Internal, "append run log", err)
	}
	f.Close()

	if info, err := os.Stat(path); err == nil && info.Size() > maxRunLogBytes {
		if err := r.rotateLog(path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) rotateLog(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "read run log for rotation", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	keep := lines[len(lines)/2:]
	return os.WriteFile(path, []byte(strings.Join(keep, "\n")+"\n"), 0644)
}

// GetRunHistory returns the last limit entries, oldest-first, or an empty
// slice if the job has never logged a run.
func (r *Runner) GetRunHistory(id string, limit int) ([]RunLogEntry, error) {
	data, err := os.ReadFile(r.logPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunLogEntry{}, nil
		}
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "read run log", err)
	}
	var entries []RunLogEntry
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		var e RunLogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// RunStats summarizes a job's run history.
type RunStats struct {
	Total         int     `json:"total"`
	Success       int     `json:"success"`
	Errors        int     `json:"errors"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// GetRunStats aggregates every logged run for id.
func (r *Runner) GetRunStats(id string) (RunStats, error) {
	entries, err := r.GetRunHistory(id, 0)
	if err != nil {
		return RunStats{}, err
	}
	var stats RunStats
	var totalDuration int64
	for _, e := range entries {
		stats.Total++
		totalDuration += e.DurationMs
		switch e.Status {
		case "success":
			stats.Success++
		case "error":
			stats.Errors++
		}
	}
	if stats.Total > 0 {
		stats.AvgDurationMs = float64(totalDuration) / float64(stats.Total)
	}
	return stats, nil
}

