package colloquy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// --- Specification model ---

// Spec is the validated in-memory representation of a flow specification
// document: flows, slot declarations, response templates, and settings.
type Spec struct {
	Flows     []FlowSpec          `yaml:"flows"`
	Slots     map[string]SlotSpec `yaml:"slots,omitempty"`
	Actions   []string            `yaml:"actions,omitempty"` // when present, action steps must call one of these
	Responses map[string]string   `yaml:"responses,omitempty"`
	Settings  Settings            `yaml:"settings,omitempty"`

	flowByName map[string]*FlowSpec
}

// FlowSpec is one named, ordered step program describing a user task.
type FlowSpec struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description,omitempty"`
	TriggerExamples []string `yaml:"trigger_examples,omitempty"`
	Steps           []Step   `yaml:"steps"`
}

// SlotSpec declares a slot's type and description. Types are advisory for
// the normalizer ("string", "number", "bool", "date").
type SlotSpec struct {
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Settings carries runtime tunables from the specification document.
// Zero values are replaced by defaults during parsing.
type Settings struct {
	Durability         string `yaml:"durability,omitempty"`           // sync | async | exit
	MaxStackDepth      int    `yaml:"max_stack_depth,omitempty"`      // default 5
	MaxConfirmAttempts int    `yaml:"max_confirm_attempts,omitempty"` // default 3
	HistoryWindow      int    `yaml:"history_window,omitempty"`       // default 10
	MaxNodeExecutions  int    `yaml:"max_node_executions,omitempty"`  // default 20
	OverflowStrategy   string `yaml:"overflow_strategy,omitempty"`    // reject_new | cancel_oldest
	DefaultResponse    string `yaml:"default_response,omitempty"`
}

// Durability modes for checkpoint writes.
const (
	DurabilitySync  = "sync"  // write before the turn result is returned
	DurabilityAsync = "async" // write concurrently with the next turn (default)
	DurabilityExit  = "exit"  // write only on graceful shutdown
)

// Stack depth overflow strategies.
const (
	OverflowRejectNew    = "reject_new"
	OverflowCancelOldest = "cancel_oldest"
)

const (
	defaultMaxStackDepth      = 5
	defaultMaxConfirmAttempts = 3
	defaultHistoryWindow      = 10
	defaultMaxNodeExecutions  = 20
)

// defaultResponses are the built-in templates for dispatcher and error
// surfaces. A spec's responses section overrides by key.
var defaultResponses = map[string]string{
	"default":           "Okay.",
	"not_understood":    "Sorry, I didn't understand that.",
	"correction_ack":    "Got it, updated {slot} to {value}.",
	"modification_ack":  "Changed {slot} to {value}.",
	"cancellation":      "Cancelled.",
	"clarification":     "Let me clarify: {prompt}",
	"handoff":           "Transferring you to a human agent.",
	"chitchat":          "Let's get back to it.",
	"confirm_retry":     "Sorry, I need a yes or no. {prompt}",
	"confirm_exhausted": "I couldn't get a clear answer, let's move on.",
	"action_failed":     "Something went wrong, please try again.",
	"reject_new":        "Let's finish what we're doing first.",
}

// ParseSpec decodes and validates a YAML flow specification.
// Unknown document fields and unknown step types are rejected. Per-variant
// step requirements are enforced here so a miswired spec fails at startup,
// not mid-conversation.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("decode yaml: %v", err)}
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	spec.applyDefaults()
	return &spec, nil
}

func (s *Spec) validate() error {
	if len(s.Flows) == 0 {
		return &ConfigError{Reason: "specification has no flows"}
	}
	s.flowByName = make(map[string]*FlowSpec, len(s.Flows))
	for i := range s.Flows {
		f := &s.Flows[i]
		if f.Name == "" {
			return &ConfigError{Reason: "flow missing required field name"}
		}
		if _, dup := s.flowByName[f.Name]; dup {
			return &ConfigError{Reason: fmt.Sprintf("duplicate flow name %q", f.Name)}
		}
		s.flowByName[f.Name] = f

		if len(f.Steps) == 0 {
			return &ValidationError{Flow: f.Name, Reason: "flow has no steps"}
		}
		seen := make(map[string]bool, len(f.Steps))
		for j := range f.Steps {
			st := &f.Steps[j]
			if err := st.Validate(f.Name); err != nil {
				return err
			}
			if seen[st.Name] {
				return &ValidationError{Flow: f.Name, Step: st.Name, Reason: "duplicate step name"}
			}
			seen[st.Name] = true
		}
	}

	// A declared actions list makes action step targets checkable here, so a
	// typoed call fails at startup instead of mid-conversation.
	if len(s.Actions) > 0 {
		declared := make(map[string]bool, len(s.Actions))
		for _, name := range s.Actions {
			declared[name] = true
		}
		for i := range s.Flows {
			f := &s.Flows[i]
			for j := range f.Steps {
				st := &f.Steps[j]
				if st.Type == StepAction && !declared[st.Call] {
					return &ValidationError{Flow: f.Name, Step: st.Name,
						Reason: fmt.Sprintf("action step calls undeclared action %q", st.Call)}
				}
			}
		}
	}

	switch s.Settings.Durability {
	case "", DurabilitySync, DurabilityAsync, DurabilityExit:
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown durability %q", s.Settings.Durability)}
	}
	switch s.Settings.OverflowStrategy {
	case "", OverflowRejectNew, OverflowCancelOldest:
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown overflow_strategy %q", s.Settings.OverflowStrategy)}
	}
	return nil
}

func (s *Spec) applyDefaults() {
	if s.Settings.Durability == "" {
		s.Settings.Durability = DurabilityAsync
	}
	if s.Settings.MaxStackDepth <= 0 {
		s.Settings.MaxStackDepth = defaultMaxStackDepth
	}
	if s.Settings.MaxConfirmAttempts <= 0 {
		s.Settings.MaxConfirmAttempts = defaultMaxConfirmAttempts
	}
	if s.Settings.HistoryWindow <= 0 {
		s.Settings.HistoryWindow = defaultHistoryWindow
	}
	if s.Settings.MaxNodeExecutions <= 0 {
		s.Settings.MaxNodeExecutions = defaultMaxNodeExecutions
	}
	if s.Settings.OverflowStrategy == "" {
		s.Settings.OverflowStrategy = OverflowRejectNew
	}
	if s.Responses == nil {
		s.Responses = make(map[string]string, len(defaultResponses))
	}
	for k, v := range defaultResponses {
		if _, ok := s.Responses[k]; !ok {
			s.Responses[k] = v
		}
	}
	if s.Settings.DefaultResponse != "" {
		s.Responses["default"] = s.Settings.DefaultResponse
	}
}

// Flow returns the named flow, or nil when it does not exist.
func (s *Spec) Flow(name string) *FlowSpec {
	return s.flowByName[name]
}

// FlowNames returns all flow names in declaration order.
func (s *Spec) FlowNames() []string {
	names := make([]string, len(s.Flows))
	for i := range s.Flows {
		names[i] = s.Flows[i].Name
	}
	return names
}

// Response returns the template registered under key, falling back to the
// built-in default for that key and then to the blanket default response.
func (s *Spec) Response(key string) string {
	if v, ok := s.Responses[key]; ok {
		return v
	}
	if v, ok := defaultResponses[key]; ok {
		return v
	}
	return s.Responses["default"]
}
