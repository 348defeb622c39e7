// Package task coordinates long-running background runs. State is held in
// memory only: a restart loses it, and callers re-trigger work as needed.
package task

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Type names a kind of background run. One run per type at a time.
type Type string

const (
	TypeCollect Type = "collect"
	TypeAnalyze Type = "analyze"
)

// ValidType reports whether t is a known task type.
func ValidType(t Type) bool {
	return t == TypeCollect || t == TypeAnalyze
}

// Phase is the lifecycle state of a task slot.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// Status is a poll snapshot of a task slot.
type Status struct {
	Status  Phase  `json:"status"`
	Message string `json:"message"`
	Percent int    `json:"percent"`
}

// ErrAlreadyRunning is returned by Start when a run of the same type is in
// flight. The second start is rejected, never queued or interleaved;
// callers retry after the current run finishes.
var ErrAlreadyRunning = eris.New("task already running")

type entry struct {
	phase      Phase
	message    string
	current    int
	total      int
	finishedAt time.Time
}

// Tracker holds one slot per task type behind a single mutex.
type Tracker struct {
	mu     sync.Mutex
	tasks  map[Type]*entry
	expiry time.Duration
	now    func() time.Time
}

// DefaultExpiry is how long a finished status remains visible before the
// slot reads as idle again.
const DefaultExpiry = 10 * time.Minute

// NewTracker creates a Tracker. expiry <= 0 uses DefaultExpiry.
func NewTracker(expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		tasks:  make(map[Type]*entry),
		expiry: expiry,
		now:    time.Now,
	}
}

// Start claims the slot for t. total is the expected number of work items
// (0 when unknown). Returns ErrAlreadyRunning if a run of this type is
// still in flight.
func (tr *Tracker) Start(t Type, total int, message string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if e, ok := tr.tasks[t]; ok && e.phase == PhaseRunning {
		return ErrAlreadyRunning
	}
	tr.tasks[t] = &entry{
		phase:   PhaseRunning,
		message: message,
		total:   total,
	}
	zap.L().Debug("task started", zap.String("type", string(t)), zap.Int("total", total))
	return nil
}

// SetTotal adjusts the expected item count after Start, for runs that only
// learn their workload size once underway.
func (tr *Tracker) SetTotal(t Type, total int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if e, ok := tr.tasks[t]; ok && e.phase == PhaseRunning {
		e.total = total
	}
}

// Update records progress for a running task.
func (tr *Tracker) Update(t Type, current int, message string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	e, ok := tr.tasks[t]
	if !ok || e.phase != PhaseRunning {
		zap.L().Warn("progress update for task that is not running", zap.String("type", string(t)))
		return
	}
	e.current = current
	if message != "" {
		e.message = message
	}
}

// Complete finalizes a run as completed.
func (tr *Tracker) Complete(t Type, message string) {
	tr.finish(t, PhaseCompleted, message)
}

// Fail finalizes a run as failed. Reserved for systemic faults; per-item
// failures are reported in the completion message instead.
func (tr *Tracker) Fail(t Type, message string) {
	tr.finish(t, PhaseFailed, message)
}

func (tr *Tracker) finish(t Type, phase Phase, message string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	e, ok := tr.tasks[t]
	if !ok {
		return
	}
	e.phase = phase
	e.message = message
	e.finishedAt = tr.now()
	if phase == PhaseCompleted {
		e.current = e.total
	}
	zap.L().Debug("task finished", zap.String("type", string(t)), zap.String("phase", string(phase)))
}

// Status returns the current snapshot for t. A type that never ran, or
// whose finished result has expired, reads as idle.
func (tr *Tracker) Status(t Type) Status {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	e, ok := tr.tasks[t]
	if !ok {
		return Status{Status: PhaseIdle}
	}
	if e.phase != PhaseRunning && tr.now().Sub(e.finishedAt) > tr.expiry {
		delete(tr.tasks, t)
		return Status{Status: PhaseIdle}
	}

	percent := 0
	switch {
	case e.phase == PhaseCompleted:
		percent = 100
	case e.total > 0:
		percent = e.current * 100 / e.total
	}
	return Status{Status: e.phase, Message: e.message, Percent: percent}
}
