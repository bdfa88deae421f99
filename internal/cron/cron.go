// Package cron implements the scheduled-job runner (§4.G): a single
// job store file, schedule parsing across three schedule kinds, due-time
// computation, a ticking runner with stuck-run detection and exponential
// backoff, and a per-job rotating run log.
package cron

// ScheduleKind is the closed set of schedule discriminators.
type ScheduleKind string

const (
	KindAt    ScheduleKind = "at"
	KindEvery ScheduleKind = "every"
	KindCron  ScheduleKind = "cron"
)

// ScheduleSpec is the discriminated schedule union: exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type ScheduleSpec struct {
	Kind ScheduleKind `json:"kind"`

	At      string `json:"at,omitempty"`      // ISO-8601, kind "at"
	EveryMs int64  `json:"everyMs,omitempty"` // kind "every"
	Expr    string `json:"expr,omitempty"`    // 5-field crontab, kind "cron"
}

// Job is one scheduled entry. Duplicate ids are permitted: add() appends
// rather than replacing, and the runner evaluates every entry regardless
// of id collisions.
type Job struct {
	ID            string       `json:"id"`
	Schedule      ScheduleSpec `json:"schedule"`
	Prompt        string       `json:"prompt"`
	SessionTarget string       `json:"sessionTarget"`
	Enabled       bool         `json:"enabled"`
	LastRunAt     int64        `json:"lastRunAt"` // epoch seconds
	Failures      int          `json:"failures"`
}

// jobFile is the on-disk store shape: {"version":1,"jobs":[...]}.
type jobFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}
