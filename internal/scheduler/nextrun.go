package scheduler

import (
	"fmt"
	"time"

	"github.com/edgeworks-labs/orbiter/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

// ComputeNext returns the first occurrence of schedule strictly after
// after, evaluated in the schedule's timezone so DST transitions follow
// the zone's actual offset change: a fall-back fold collapses to the
// earliest instant cron/rrule-go would naturally produce (both walk
// time.Time arithmetic, which already resolves the ambiguity that way),
// and a spring-forward gap is skipped to the first valid instant after
// it, since no wall-clock in the gap exists to match against. A once
// schedule returns its literal timestamp, even when that is not after
// after.
func ComputeNext(schedule domain.Schedule, after time.Time) (time.Time, error) {
	switch schedule.Kind {
	case domain.ScheduleCron:
		return computeNextCron(schedule, after)
	case domain.ScheduleRRule:
		return computeNextRRule(schedule, after)
	case domain.ScheduleOnce:
		return computeNextOnce(schedule)
	default:
		return time.Time{}, fmt.Errorf("schedule kind %q has no computable next run", schedule.Kind)
	}
}

func computeNextCron(schedule domain.Schedule, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", schedule.Timezone, err)
	}
	sched, err := cron.ParseStandard(schedule.Expression)
	if err != nil {
		return time.Time{}, domain.ErrInvalidSchedule
	}
	return sched.Next(after.In(loc)), nil
}

func computeNextRRule(schedule domain.Schedule, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", schedule.Timezone, err)
	}
	opt, err := rrule.StrToROption(schedule.Expression)
	if err != nil {
		return time.Time{}, domain.ErrInvalidSchedule
	}
	opt.Dtstart = after.In(loc)
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, domain.ErrInvalidSchedule
	}
	next := rule.After(after.In(loc), false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("rrule has no further occurrences after %s", after)
	}
	return next, nil
}

func computeNextOnce(schedule domain.Schedule) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, schedule.Expression)
	if err != nil {
		return time.Time{}, domain.ErrInvalidSchedule
	}
	return t, nil
}
