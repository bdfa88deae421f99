package cron

import (
	"testing"
	"time"
)

func TestParseSchedule_JSONKindWins(t *testing.T) {
	spec := ParseSchedule(`{"kind":"every","everyMs":5000}`)
	if spec.Kind != KindEvery || spec.EveryMs != 5000 {
		t.Errorf("ParseSchedule = %+v, want kind=every everyMs=5000", spec)
	}
}

func TestParseSchedule_BareCronExpr(t *testing.T) {
	spec := ParseSchedule("*/5 * * * *")
	if spec.Kind != KindCron || spec.Expr != "*/5 * * * *" {
		t.Errorf("ParseSchedule = %+v, want kind=cron expr=*/5 * * * *", spec)
	}
}

func TestParseSchedule_InvalidJSONFallsThrough(t *testing.T) {
	spec := ParseSchedule("not json at all")
	if spec.Kind != KindCron {
		t.Errorf("ParseSchedule = %+v, want kind=cron", spec)
	}
}

func TestNextRun_Every(t *testing.T) {
	spec := ScheduleSpec{Kind: KindEvery, EveryMs: 60_000}

	now := time.Now().Unix()
	due := NextRun(spec, 0)
	if due < now {
		t.Errorf("first run should be due immediately, got %d < %d", due, now)
	}

	due2 := NextRun(spec, 1000)
	if due2 != 1060 {
		t.Errorf("NextRun(every, last=1000) = %d, want 1060", due2)
	}
}

func TestNextRun_Every_ZeroIsError(t *testing.T) {
	spec := ScheduleSpec{Kind: KindEvery, EveryMs: 0}
	if got := NextRun(spec, 0); got != 0 {
		t.Errorf("NextRun(everyMs=0) = %d, want 0", got)
	}
}

func TestNextRun_At(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	spec := ScheduleSpec{Kind: KindAt, At: ts.Format(time.RFC3339)}
	got := NextRun(spec, 0)
	if got != ts.Unix() {
		t.Errorf("NextRun(at) = %d, want %d", got, ts.Unix())
	}
}

func TestNextRun_At_Unparseable(t *testing.T) {
	spec := ScheduleSpec{Kind: KindAt, At: "not-a-date"}
	if got := NextRun(spec, 0); got != 0 {
		t.Errorf("NextRun(at, bad) = %d, want 0", got)
	}
}

func TestNextRun_Cron_Invalid(t *testing.T) {
	spec := ScheduleSpec{Kind: KindCron, Expr: "not a cron expr"}
	if got := NextRun(spec, 0); got != 0 {
		t.Errorf("NextRun(cron, invalid) = %d, want 0", got)
	}
}

func TestNextRun_Cron_Valid(t *testing.T) {
	spec := ScheduleSpec{Kind: KindCron, Expr: "* * * * *"}
	got := NextRun(spec, 0)
	if got == 0 {
		t.Error("expected a resolvable next run for '* * * * *'")
	}
}
