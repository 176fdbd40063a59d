// Package job implements the per-run state machine: a bounded pipeline from
// RECEIVE through DELIVER or ABORT with a single permitted RESCUE pass and
// fingerprint-based loop detection. The machine performs no I/O; the engine
// drives it and owns every side effect.
package job

import (
	"fmt"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
)

// State is a stage of the content pipeline.
type State string

const (
	// StateReceive is the initial state: the request has been accepted.
	StateReceive State = "receive"
	// StatePreflight gathers and validates the job context.
	StatePreflight State = "preflight"
	// StateWrite invokes the content generator.
	StateWrite State = "write"
	// StateQC runs the quality gate.
	StateQC State = "qc"
	// StateRescue is the single-shot automatic remediation pass.
	StateRescue State = "rescue"
	// StateDeliver is terminal: the article passed the gate.
	StateDeliver State = "deliver"
	// StateAbort is terminal: no deliverable article was produced, or the
	// article is parked for human review.
	StateAbort State = "abort"
)

// RescueLimit caps how many times a job may enter RESCUE.
const RescueLimit = 1

// legal maps each state to its permitted successors. Terminal states have
// no successors.
var legal = map[State][]State{
	StateReceive:   {StatePreflight, StateAbort},
	StatePreflight: {StateWrite, StateAbort},
	StateWrite:     {StateQC, StateAbort},
	StateQC:        {StateDeliver, StateRescue, StateAbort},
	StateRescue:    {StateQC, StateAbort},
	StateDeliver:   {},
	StateAbort:     {},
}

// Transition records one state change, immutable once appended.
type Transition struct {
	From     State             `json:"from"`
	To       State             `json:"to"`
	At       time.Time         `json:"at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Job is one pipeline run. A Job is exclusively owned by the run that
// created it: it is driven linearly by one goroutine and requires no
// locking. Once terminal it is immutable.
type Job struct {
	draftgate.Entity

	ID          id.JobID          `json:"id"`
	RequestID   id.RequestID      `json:"request_id"`
	State       State             `json:"state"`
	RescueCount int               `json:"rescue_count"`
	History     []Transition      `json:"history"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`

	// Fingerprints maps a state label to the fingerprint of the content
	// last produced at that stage, for loop detection.
	Fingerprints map[State]string `json:"fingerprints,omitempty"`

	now func() time.Time
}

// New creates a Job in the RECEIVE state for the given request.
func New(requestID id.RequestID) *Job {
	j := &Job{
		Entity:       draftgate.NewEntity(),
		ID:           id.NewJobID(),
		RequestID:    requestID,
		State:        StateReceive,
		Fingerprints: make(map[State]string),
		now:          func() time.Time { return time.Now().UTC() },
	}
	j.StartedAt = j.now()
	return j
}

// Terminal reports whether the job has reached DELIVER or ABORT.
func (j *Job) Terminal() bool {
	return j.State == StateDeliver || j.State == StateAbort
}

// CanTransition reports whether target is a legal successor of the current
// state. It does not consider the rescue cap.
func (j *Job) CanTransition(target State) bool {
	for _, s := range legal[j.State] {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves the job to target, appending to the history. It fails
// with ErrInvalidTransition when target is not a legal successor (including
// any move out of a terminal state) and with ErrRescueLimit when RESCUE has
// already been used. On failure the job is unchanged.
func (j *Job) Transition(target State, metadata map[string]string) error {
	if !j.CanTransition(target) {
		return fmt.Errorf("%w: %s -> %s", draftgate.ErrInvalidTransition, j.State, target)
	}
	if target == StateRescue {
		if j.RescueCount >= RescueLimit {
			return fmt.Errorf("%w: job %s", draftgate.ErrRescueLimit, j.ID)
		}
		j.RescueCount++
	}
	j.move(target, metadata)
	return nil
}

// ForceAbort moves the job to ABORT from any non-terminal state. This is
// the engine's failure path and is legal regardless of the current state;
// on an already-terminal job it is a no-op.
func (j *Job) ForceAbort(reason string) {
	if j.Terminal() {
		return
	}
	j.move(StateAbort, map[string]string{"reason": reason})
}

func (j *Job) move(target State, metadata map[string]string) {
	at := j.clock()()
	j.History = append(j.History, Transition{
		From:     j.State,
		To:       target,
		At:       at,
		Metadata: metadata,
	})
	j.State = target
	j.UpdatedAt = at
	if j.Terminal() {
		j.CompletedAt = &at
	}
}

// CheckLoop fingerprints content and compares it to the fingerprint stored
// for label. It returns true — without updating — when the fingerprints are
// identical, meaning a retried stage reproduced byte-identical output and
// further retries cannot help. Otherwise the new fingerprint is stored and
// it returns false. The fingerprint is computed over a canonical
// serialization, so map and field ordering never affect it.
func (j *Job) CheckLoop(content any, label State) (bool, error) {
	fp, err := Fingerprint(content)
	if err != nil {
		return false, err
	}
	if j.Fingerprints == nil {
		j.Fingerprints = make(map[State]string)
	}
	if prev, ok := j.Fingerprints[label]; ok && prev == fp {
		return true, nil
	}
	j.Fingerprints[label] = fp
	return false, nil
}

// Duration returns how long the run took, or took so far.
func (j *Job) Duration() time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.StartedAt)
	}
	return j.clock()().Sub(j.StartedAt)
}

// SetClock overrides the job's time source. Tests only.
func (j *Job) SetClock(now func() time.Time) { j.now = now }

func (j *Job) clock() func() time.Time {
	if j.now == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return j.now
}
