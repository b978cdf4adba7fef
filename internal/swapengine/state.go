package swapengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
)

// SwapState is where a swap attempt is in its lifecycle
type SwapState string

const (
	StateIdle        SwapState = "idle"
	StateEstimating  SwapState = "estimating"
	StateReady       SwapState = "ready"
	StateRegistering SwapState = "registering"
	StateSwapping    SwapState = "swapping"
	StateConfirmed   SwapState = "confirmed"
	StateFailed      SwapState = "failed"
	StateCancelled   SwapState = "cancelled"
)

var transitions = map[SwapState][]SwapState{
	StateIdle:        {StateEstimating},
	StateEstimating:  {StateReady, StateIdle, StateFailed},
	StateReady:       {StateEstimating, StateRegistering, StateSwapping, StateIdle},
	StateRegistering: {StateSwapping, StateFailed, StateCancelled},
	StateSwapping:    {StateConfirmed, StateFailed, StateCancelled},
	StateConfirmed:   {StateIdle},
	StateFailed:      {StateIdle},
	StateCancelled:   {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge
func CanTransition(from, to SwapState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends an attempt
func (s SwapState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateCancelled
}

// Attempt tracks one swap from estimate to settlement. Estimate and Plan are
// replaced, never mutated.
type Attempt struct {
	mu        sync.RWMutex
	id        string
	state     SwapState
	history   []SwapState
	estimate  *models.SwapEstimate
	plan      *models.TransactionPlan
	lastErr   error
	updatedAt time.Time
}

func NewAttempt(id string) *Attempt {
	return &Attempt{
		id:        id,
		state:     StateIdle,
		history:   []SwapState{StateIdle},
		updatedAt: time.Now(),
	}
}

func (a *Attempt) ID() string { return a.id }

// Transition moves the attempt to next or returns ErrIllegalTransition
func (a *Attempt) Transition(next SwapState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !CanTransition(a.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.state, next)
	}
	a.state = next
	a.history = append(a.history, next)
	a.updatedAt = time.Now()
	return nil
}

// Fail moves to StateFailed, recording err
func (a *Attempt) Fail(err error) error {
	if tErr := a.Transition(StateFailed); tErr != nil {
		return tErr
	}
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	return nil
}

func (a *Attempt) State() SwapState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *Attempt) History() []SwapState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]SwapState(nil), a.history...)
}

func (a *Attempt) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

func (a *Attempt) SetEstimate(e *models.SwapEstimate) {
	a.mu.Lock()
	a.estimate = e
	a.updatedAt = time.Now()
	a.mu.Unlock()
}

func (a *Attempt) Estimate() *models.SwapEstimate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.estimate
}

func (a *Attempt) SetPlan(p *models.TransactionPlan) {
	a.mu.Lock()
	a.plan = p
	a.updatedAt = time.Now()
	a.mu.Unlock()
}

func (a *Attempt) Plan() *models.TransactionPlan {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plan
}

func (a *Attempt) UpdatedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.updatedAt
}
