package service

import (
	"errors"
	"sync"
)

// State of the generation pipeline. Only one pipeline, or one manual slide
// retry, may run at a time.
type State string

const (
	StateIdle             State = "idle"
	StateGeneratingText   State = "generating_text"
	StateGeneratingImages State = "generating_images"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBusy              = errors.New("a presentation is already being generated")
)

// ValidTransitions lists the allowed moves. Idle goes straight to
// GeneratingImages for a manual slide retry.
var ValidTransitions = map[State][]State{
	StateIdle:             {StateGeneratingText, StateGeneratingImages},
	StateGeneratingText:   {StateGeneratingImages, StateFailed},
	StateGeneratingImages: {StateDone, StateFailed},
	StateDone:             {StateIdle},
	StateFailed:           {StateIdle},
}

// IsActive reports whether work is in flight.
func (s State) IsActive() bool {
	return s == StateGeneratingText || s == StateGeneratingImages
}

// IsTerminal reports whether a run has ended.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) String() string {
	return string(s)
}

func (s State) CanTransitionTo(target State) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s State) TransitionTo(target State) (State, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

// machine guards the single generation slot.
type machine struct {
	mu          sync.Mutex
	state       State
	lastOutcome State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

// acquire moves Idle to first, or fails with ErrBusy.
func (m *machine) acquire(first State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrBusy
	}
	next, err := m.state.TransitionTo(first)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

func (m *machine) advance(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.state.TransitionTo(target)
	if err != nil {
		return err
	}
	m.state = next
	return nil
}

// release ends a run with outcome and frees the slot.
func (m *machine) release(outcome State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next, err := m.state.TransitionTo(outcome); err == nil {
		m.state = next
	}
	m.lastOutcome = m.state
	m.state = StateIdle
}

func (m *machine) snapshot() (State, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastOutcome
}
