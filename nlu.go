package colloquy

import "context"

// NLURequest carries everything an understanding provider needs to interpret
// one utterance against the current dialogue state. Flow and action names
// are provided unprefixed.
type NLURequest struct {
	Utterance        string         `json:"utterance"`
	History          []Turn         `json:"history"`
	ActiveFlow       string         `json:"active_flow,omitempty"`
	CurrentSlots     map[string]any `json:"current_slots,omitempty"`
	AvailableFlows   []string       `json:"available_flows"`
	AvailableActions []string       `json:"available_actions,omitempty"`
	// ExpectedSlots lists the slots the active step is waiting on, so the
	// provider can bind a bare answer ("Madrid") to the right slot.
	ExpectedSlots []string `json:"expected_slots,omitempty"`
}

// NLU turns a raw utterance plus dialogue context into a structured
// interpretation. Implementations are treated as stateless by the engine;
// the engine retries a failed call once with the same input before failing
// the turn.
type NLU interface {
	Interpret(ctx context.Context, req NLURequest) (Interpretation, error)
}
