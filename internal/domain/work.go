package domain

import "time"

// DueWork is a single scheduled occurrence awaiting a worker lease,
// per spec §3.
type DueWork struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	RunAt       time.Time  `json:"run_at"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	LeaseOwner  *string    `json:"lease_owner,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	Attempt     int        `json:"attempt"`
}

// Available reports whether the row is eligible for leasing at now:
// run_at <= now and it is not currently held, per spec §3 invariant.
func (d *DueWork) Available(now time.Time) bool {
	if d.RunAt.After(now) {
		return false
	}
	if d.LeaseOwner == nil {
		return true
	}
	return d.LockedUntil == nil || d.LockedUntil.Before(now)
}

// Run is an immutable record of one execution attempt of a DueWork,
// per spec §3. Never updated after FinishedAt is set.
type Run struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	DueWorkID   string     `json:"due_work_id"`
	LeaseOwner  string     `json:"lease_owner"`
	LeasedUntil time.Time  `json:"leased_until"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Success     bool       `json:"success"`
	Skipped     bool       `json:"skipped,omitempty"`
	Attempt     int        `json:"attempt"`
	Error       *string    `json:"error,omitempty"`
	ErrorKind   *string    `json:"error_kind,omitempty"`
	Output      *Value     `json:"output,omitempty"`
}

// Event is a transient record read from the event bus, matched against
// event-kind Task schedules by topic equality (spec §3, §4.1).
type Event struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	Payload Value     `json:"payload"`
	Source  string    `json:"source"`
	AtTime  time.Time `json:"-"`
}
