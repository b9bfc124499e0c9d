package run

import (
	"context"
	"sync"
	"time"
)

// CommandKind is the type of an out-of-band request.
type CommandKind string

const (
	CmdResurrect      CommandKind = "resurrect"
	CmdUseAbility     CommandKind = "use_ability"
	CmdEngageOptional CommandKind = "engage_optional"
)

// Command is one queued request from outside the run.
type Command struct {
	Kind      CommandKind `json:"kind"`
	ActorID   string      `json:"actor_id,omitempty"`
	AbilityID string      `json:"ability_id,omitempty"`
	PackID    string      `json:"pack_id,omitempty"`
}

// pausePoll bounds how long a paused run waits before re-checking its flags.
const pausePoll = 50 * time.Millisecond

// ControlSignals is the control surface shared between a run and its
// observers. It is safe for concurrent use; every other piece of run state
// is owned by the run goroutine.
type ControlSignals struct {
	mu       sync.Mutex
	paused   bool
	queue    []Command
	done     chan struct{}
	stopOnce sync.Once
}

// NewControlSignals returns signals in the running, unpaused state.
func NewControlSignals() *ControlSignals {
	return &ControlSignals{done: make(chan struct{})}
}

// Stop requests termination. Calling Stop more than once is harmless.
func (s *ControlSignals) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Stopped reports whether Stop has been called.
func (s *ControlSignals) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed by Stop.
func (s *ControlSignals) Done() <-chan struct{} { return s.done }

// Pause freezes tick advancement. Cancellation is still honored while paused.
func (s *ControlSignals) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume lifts a pause.
func (s *ControlSignals) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// Paused reports whether the run is paused.
func (s *ControlSignals) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Enqueue adds a command to be drained at the start of the next tick.
func (s *ControlSignals) Enqueue(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, cmd)
}

// Resurrect queues a resurrection of member id.
func (s *ControlSignals) Resurrect(id string) {
	s.Enqueue(Command{Kind: CmdResurrect, ActorID: id})
}

// UseAbility queues a forced ability use.
func (s *ControlSignals) UseAbility(memberID, abilityID string) {
	s.Enqueue(Command{Kind: CmdUseAbility, ActorID: memberID, AbilityID: abilityID})
}

// EngageOptional queues an unrouted pack as the next pull.
func (s *ControlSignals) EngageOptional(packID string) {
	s.Enqueue(Command{Kind: CmdEngageOptional, PackID: packID})
}

// Drain removes and returns every queued command in arrival order.
func (s *ControlSignals) Drain() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// waitWhilePaused blocks while the run is paused. It returns false if the
// run was stopped or ctx was cancelled.
func (s *ControlSignals) waitWhilePaused(ctx context.Context) bool {
	for {
		if ctx.Err() != nil || s.Stopped() {
			return false
		}
		if !s.Paused() {
			return true
		}
		t := time.NewTimer(pausePoll)
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-t.C:
		}
		t.Stop()
	}
}

// sleep waits d unless ctx is cancelled or the run is stopped first.
func (s *ControlSignals) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-s.done:
	case <-t.C:
	}
}
