package colloquy

import (
	"fmt"
	"time"
)

// ConfigError reports a malformed specification document: unreadable YAML,
// a missing top-level section, or a duplicate flow name.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Reason
}

// ValidationError reports a per-variant step violation found at parse time,
// such as a say step without a message or an unknown step type.
type ValidationError struct {
	Flow   string
	Step   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("flow %q: %s", e.Flow, e.Reason)
	}
	return fmt.Sprintf("flow %q step %q: %s", e.Flow, e.Step, e.Reason)
}

// GraphBuildError reports a step-name reference that does not resolve during
// compilation: a jump_to, branch case, confirm edge, while body member, or a
// link/call flow target.
type GraphBuildError struct {
	Flow   string
	Step   string
	Target string
	Reason string
}

func (e *GraphBuildError) Error() string {
	return fmt.Sprintf("flow %q step %q: %s %q", e.Flow, e.Step, e.Reason, e.Target)
}

// TimeoutError reports that the per-turn deadline expired before the turn
// finished. State is left at the last committed checkpoint.
type TimeoutError struct {
	SessionID string
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session %s: turn deadline exceeded after %s", e.SessionID, e.Elapsed)
}

// ActionError wraps a failure from a registered action handler. The action
// step is left pending so the user can retry on the next turn.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
