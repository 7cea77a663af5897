package dashboard

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ConnState is the push connection lifecycle state.
type ConnState string

const (
	StateIdle         ConnState = "IDLE"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
	StateTerminated   ConnState = "TERMINATED" // no further reconnects
)

// Allowed moves. Terminated is reachable from everywhere (Stop).
var transitions = map[ConnState][]ConnState{
	StateIdle:         {StateConnecting, StateTerminated},
	StateConnecting:   {StateConnected, StateDisconnected, StateTerminated},
	StateConnected:    {StateDisconnected, StateTerminated},
	StateDisconnected: {StateReconnecting, StateTerminated},
	StateReconnecting: {StateConnecting, StateTerminated},
	StateTerminated:   {},
}

// StateMachine guards connection state changes and logs each of them.
type StateMachine struct {
	mu      sync.RWMutex
	current ConnState
	logger  *zap.Logger
}

func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{current: StateIdle, logger: logger}
}

// Transition moves to next. Staying in the same state is a no-op; a move the
// lifecycle does not allow is rejected and the state is left unchanged.
func (sm *StateMachine) Transition(next ConnState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if next == sm.current {
		return nil
	}
	if !slices.Contains(transitions[sm.current], next) {
		return fmt.Errorf("illegal transition %s -> %s", sm.current, next)
	}

	sm.logger.Info("State Transition",
		zap.String("From", string(sm.current)),
		zap.String("To", string(next)))
	sm.current = next
	return nil
}

func (sm *StateMachine) Current() ConnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
