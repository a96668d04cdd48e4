package engine

import "fmt"

// CaptureError wraps a failed feed fetch. The engine logs it and retries
// next cycle.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// ActuatorError wraps a single failed interaction. The engine skips the
// candidate and continues the cycle.
type ActuatorError struct {
	Op  string
	Err error
}

func (e *ActuatorError) Error() string { return fmt.Sprintf("actuator %s: %v", e.Op, e.Err) }
func (e *ActuatorError) Unwrap() error { return e.Err }

// GenerationError wraps a failed reply draft. The reply step is skipped
// for that candidate; a completed like still counts.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a failed state write. The engine continues with
// in-memory state and accepts the durability loss.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence: %v", e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }
