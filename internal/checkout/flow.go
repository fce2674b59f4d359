package checkout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/brandcart/internal/partition"
)

// State is a step of the checkout flow.
type State string

const (
	StateCollecting State = "collecting"
	StateReviewing  State = "reviewing"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
)

// ErrInvalidTransition is returned when a flow step is not allowed from the current state.
var ErrInvalidTransition = errors.New("checkout: invalid state transition")

// Review is the frozen snapshot shown to the shopper before submission.
type Review struct {
	SessionID  string              `json:"sessionId"`
	Allow      []string            `json:"allow,omitempty"`
	Summaries  []partition.Summary `json:"summaries"`
	Result     Result              `json:"result"`
	CartAt     time.Time           `json:"cartUpdatedAt"`
	ReviewedAt time.Time           `json:"reviewedAt"`
}

// Flow tracks one checkout: Collecting -> Reviewing -> Submitting -> Completed,
// with Submitting -> Reviewing when a submission fails and Reviewing ->
// Collecting when the shopper goes back to the cart.
type Flow struct {
	mu     sync.Mutex
	state  State
	review *Review
}

// NewFlow starts a flow in Collecting.
func NewFlow() *Flow {
	return &Flow{state: StateCollecting}
}

// State returns the current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current()
}

// Snapshot returns the frozen review, if any.
func (f *Flow) Snapshot() (Review, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.review == nil {
		return Review{}, false
	}
	return *f.review, true
}

// Review freezes r. Allowed from Collecting, and from Reviewing to refresh.
func (f *Flow) Review(r Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StateCollecting, StateReviewing); err != nil {
		return err
	}
	f.state = StateReviewing
	f.review = &r
	return nil
}

// Edit returns to Collecting and drops the snapshot.
func (f *Flow) Edit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StateReviewing); err != nil {
		return err
	}
	f.state = StateCollecting
	f.review = nil
	return nil
}

// BeginSubmit moves to Submitting and hands out the frozen review.
func (f *Flow) BeginSubmit() (Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StateReviewing); err != nil {
		return Review{}, err
	}
	f.state = StateSubmitting
	return *f.review, nil
}

// Fail returns to Reviewing with a refreshed snapshot.
func (f *Flow) Fail(r Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StateSubmitting); err != nil {
		return err
	}
	f.state = StateReviewing
	f.review = &r
	return nil
}

// Complete ends the flow.
func (f *Flow) Complete() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.expect(StateSubmitting); err != nil {
		return err
	}
	f.state = StateCompleted
	return nil
}

func (f *Flow) current() State {
	if f.state == "" {
		return StateCollecting
	}
	return f.state
}

func (f *Flow) expect(allowed ...State) error {
	cur := f.current()
	for _, s := range allowed {
		if cur == s {
			return nil
		}
	}
	return fmt.Errorf("%w: from %s", ErrInvalidTransition, cur)
}
