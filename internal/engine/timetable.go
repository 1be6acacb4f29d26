package engine

import (
	"time"

	"github.com/example/goods-scheduler/internal/exchange"
)

type JobState string

const (
	JobPending JobState = "pending"
	JobFired   JobState = "fired"
)

// job is a timetable entry binding one plan to its fire time. One-shot: it is
// marked fired at dispatch and never re-armed, so a plan gets at most one
// attempt across the engine's lifetime.
type job struct {
	plan   exchange.Plan
	fireAt time.Time
	state  JobState
}

// JobView is a read-only snapshot row of the timetable, safe to hand to a
// display layer while the driver keeps mutating live state.
type JobView struct {
	Plan   exchange.Plan
	FireAt time.Time
	State  JobState
}
