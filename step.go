package colloquy

import "fmt"

// StepType discriminates the step union. Every step in a flow specification
// carries a `type` tag; per-variant required fields are enforced at parse time.
type StepType string

const (
	// StepSay emits an interpolated message and advances.
	StepSay StepType = "say"
	// StepCollect fills a slot from the user, suspending if it is unset.
	StepCollect StepType = "collect"
	// StepAction invokes a registered handler at most once per flow lifetime.
	StepAction StepType = "action"
	// StepSet assigns a computed value to a slot.
	StepSet StepType = "set"
	// StepBranch evaluates an expression and routes to the matching case.
	StepBranch StepType = "branch"
	// StepWhile is a loop; it exists only in source form and is desugared
	// into guard/body/jump-back nodes at compile time.
	StepWhile StepType = "while"
	// StepConfirm drives a yes/no confirmation state machine.
	StepConfirm StepType = "confirm"
	// StepLink completes the current flow and transfers control to another.
	StepLink StepType = "link"
	// StepCall pushes a child flow and resumes the caller when it finishes.
	StepCall StepType = "call"
)

// Step is one node of a flow program. Variant fields beyond Name, Type, and
// JumpTo are meaningful only for the matching Type; Validate enforces the
// per-variant contract.
type Step struct {
	Name   string   `yaml:"step"`
	Type   StepType `yaml:"type"`
	JumpTo string   `yaml:"jump_to,omitempty"` // overrides sequential fall-through

	// say
	Message string `yaml:"message,omitempty"`

	// collect
	Slot              string `yaml:"slot,omitempty"` // also set/confirm
	Prompt            string `yaml:"prompt,omitempty"`
	Validator         string `yaml:"validator,omitempty"`
	ValidationMessage string `yaml:"validation_message,omitempty"`

	// action
	Call       string            `yaml:"call,omitempty"`
	MapOutputs map[string]string `yaml:"map_outputs,omitempty"` // also call

	// set
	Value      any    `yaml:"value,omitempty"`
	Expression string `yaml:"expression,omitempty"`

	// branch
	Evaluate string            `yaml:"evaluate,omitempty"`
	Cases    map[string]string `yaml:"cases,omitempty"`
	Default  string            `yaml:"default,omitempty"`

	// while
	Condition string   `yaml:"condition,omitempty"`
	Do        []string `yaml:"do,omitempty"`
	ExitTo    string   `yaml:"exit_to,omitempty"`

	// confirm
	OnConfirm string `yaml:"on_confirm,omitempty"`
	OnDeny    string `yaml:"on_deny,omitempty"`

	// link / call
	Flow   string            `yaml:"flow,omitempty"`
	Inputs map[string]string `yaml:"inputs,omitempty"`
}

// Validate checks the per-variant contract. flow is used only for error text.
func (s *Step) Validate(flow string) error {
	if s.Name == "" {
		return &ValidationError{Flow: flow, Reason: "step missing required field step (name)"}
	}
	bad := func(reason string) error {
		return &ValidationError{Flow: flow, Step: s.Name, Reason: reason}
	}
	switch s.Type {
	case StepSay:
		if s.Message == "" {
			return bad("say step requires non-empty message")
		}
	case StepCollect:
		if s.Slot == "" {
			return bad("collect step requires slot")
		}
		if s.Prompt == "" {
			return bad("collect step requires prompt")
		}
	case StepAction:
		if s.Call == "" {
			return bad("action step requires call")
		}
	case StepSet:
		if s.Slot == "" {
			return bad("set step requires slot")
		}
		if s.Value == nil && s.Expression == "" {
			return bad("set step requires value or expression")
		}
	case StepBranch:
		if s.Evaluate == "" {
			return bad("branch step requires evaluate")
		}
		if len(s.Cases) == 0 {
			return bad("branch step requires at least one case")
		}
	case StepWhile:
		if s.Condition == "" {
			return bad("while step requires condition")
		}
		if len(s.Do) == 0 {
			return bad("while step requires do (body step names)")
		}
	case StepConfirm:
		if s.Message == "" {
			return bad("confirm step requires message")
		}
		if s.OnConfirm == "" || s.OnDeny == "" {
			return bad("confirm step requires on_confirm and on_deny")
		}
	case StepLink:
		if s.Flow == "" {
			return bad("link step requires flow")
		}
	case StepCall:
		if s.Flow == "" {
			return bad("call step requires flow")
		}
	case "":
		return bad("step missing required field type")
	default:
		return bad(fmt.Sprintf("unknown step type %q", s.Type))
	}
	return nil
}

// IsSuspensionPoint reports whether this step variant may set a pending task.
func (t StepType) IsSuspensionPoint() bool {
	return t == StepCollect || t == StepConfirm
}
