package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Outcome is the result of one journaled step.
type Outcome string

const (
	OutcomeDone     Outcome = "done"
	OutcomeNotFound Outcome = "not found"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeWarning  Outcome = "warning"
	OutcomeFailed   Outcome = "failed"
)

// Step is a single journal entry.
type Step struct {
	Name    string
	Outcome Outcome
	Err     error
	At      time.Time
}

func (s Step) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", s.Name, s.Outcome, s.Err)
	}
	return fmt.Sprintf("%s: %s", s.Name, s.Outcome)
}

// Journal records the steps of one install or uninstall run
type Journal struct {
	RunID string

	mu          sync.RWMutex
	steps       []Step
	subscribers []func(Step)
	now         func() time.Time
}

func NewJournal() *Journal {
	return &Journal{
		RunID: uuid.NewString(),
		now:   time.Now,
	}
}

// Subscribe registers a listener that sees every step as it is recorded.
func (j *Journal) Subscribe(fn func(Step)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subscribers = append(j.subscribers, fn)
}

// Record appends a step and notifies subscribers.
func (j *Journal) Record(name string, outcome Outcome, err error) Step {
	step := Step{Name: name, Outcome: outcome, Err: err, At: j.now()}

	j.mu.Lock()
	j.steps = append(j.steps, step)
	subs := append([]func(Step){}, j.subscribers...)
	j.mu.Unlock()

	for _, fn := range subs {
		fn(step)
	}
	return step
}

// Steps returns a copy of the recorded steps in order.
func (j *Journal) Steps() []Step {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Step(nil), j.steps...)
}

// Lookup returns the last step recorded under name.
func (j *Journal) Lookup(name string) (Step, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for i := len(j.steps) - 1; i >= 0; i-- {
		if j.steps[i].Name == name {
			return j.steps[i], true
		}
	}
	return Step{}, false
}

// Err aggregates every failed step, or returns nil.
func (j *Journal) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result *multierror.Error
	for _, s := range j.steps {
		if s.Outcome == OutcomeFailed {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Name, s.Err))
		}
	}
	return result.ErrorOrNil()
}
