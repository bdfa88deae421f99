package cron

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ParseSchedule determines a ScheduleSpec's kind: a JSON object carrying a
// non-empty "kind" field wins; otherwise (invalid JSON, or a JSON value
// that isn't an object with "kind") the whole input is treated as a
// five-field crontab expression.
func ParseSchedule(input string) ScheduleSpec {
	var raw map[string]any
	if err := json.Unmarshal([]byte(input), &raw); err == nil {
		if kind, ok := raw["kind"].(string); ok && kind != "" {
			var spec ScheduleSpec
			if b, err := json.Marshal(raw); err == nil {
				if err := json.Unmarshal(b, &spec); err == nil {
					return spec
				}
			}
		}
	}
	return ScheduleSpec{Kind: KindCron, Expr: input}
}

// NextRun computes the next due epoch-seconds for schedule given the
// job's last run time (0 meaning never run). A return of 0 signals an
// invalid or unresolvable schedule.
func NextRun(schedule ScheduleSpec, lastEpochSeconds int64) int64 {
	switch schedule.Kind {
	case KindEvery:
		if schedule.EveryMs <= 0 {
			return 0
		}
		if lastEpochSeconds == 0 {
			return time.Now().Unix()
		}
		return lastEpochSeconds + schedule.EveryMs/1000

	case KindAt:
		t, err := time.Parse(time.RFC3339, schedule.At)
		if err != nil {
			return 0
		}
		return t.Unix()

	case KindCron:
		fields := strings.Fields(schedule.Expr)
		if len(fields) != 5 {
			return 0
		}
		if !gronx.New().IsValid(schedule.Expr) {
			return 0
		}
		start := time.Now()
		if lastEpochSeconds > 0 {
			start = time.Unix(lastEpochSeconds, 0)
		}
		next, err := gronx.NextTickAfter(schedule.Expr, start, false)
		if err != nil {
			return 0
		}
		return next.Unix()

	default:
		return 0
	}
}
