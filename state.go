package colloquy

// --- Flow context ---

// PushReason records why a flow context was created. Digression contexts
// return control to their parent on completion; call contexts additionally
// map outputs back into the caller's slots.
type PushReason string

const (
	PushTrigger    PushReason = "trigger"
	PushCall       PushReason = "call"
	PushDigression PushReason = "digression"
	PushLink       PushReason = "link"
)

// FlowContext is a live instance of a flow on the stack. Contexts refer to
// each other only by stack position; there are no cross-references.
type FlowContext struct {
	FlowID           string     `json:"flow_id"`
	FlowName         string     `json:"flow_name"`
	State            FlowState  `json:"flow_state"`
	CurrentStepIndex int        `json:"current_step_index"`
	StartedAt        int64      `json:"started_at"`
	PausedAt         int64      `json:"paused_at,omitempty"`
	CompletedAt      int64      `json:"completed_at,omitempty"`
	Inputs           map[string]any `json:"inputs,omitempty"`
	Reason           PushReason `json:"reason,omitempty"`
	// MapOutputs renames this flow's slots into the caller's slots when a
	// call-pushed flow completes. Empty for non-call contexts.
	MapOutputs map[string]string `json:"map_outputs,omitempty"`
}

// CompletedFlow is one entry in the bounded terminal-flows log.
type CompletedFlow struct {
	FlowID      string    `json:"flow_id"`
	FlowName    string    `json:"flow_name"`
	State       FlowState `json:"flow_state"`
	CompletedAt int64     `json:"completed_at"`
}

// maxCompletedFlows bounds the terminal-flows log.
const maxCompletedFlows = 10

// --- Dialogue state ---

// DialogueState is the per-session dialogue state container. It is fully
// serialisable: a checkpointed state round-trips losslessly through JSON and
// the next turn reconstructs everything from it. Nodes never mutate state
// directly; they produce Delta values that the engine applies.
type DialogueState struct {
	SessionID     string                    `json:"session_id"`
	FlowStack     []FlowContext             `json:"flow_stack"`
	FlowSlots     map[string]map[string]any `json:"flow_slots"`
	ExecutedSteps map[string][]int          `json:"executed_steps"`
	Pending       *PendingTask              `json:"pending_task,omitempty"`
	LastNLU       *Interpretation           `json:"last_nlu,omitempty"`
	Messages      []Turn                    `json:"messages"`
	Metadata      map[string]any            `json:"metadata,omitempty"`
	TurnCount     int                       `json:"turn_count"`
	LastResponse  string                    `json:"last_response,omitempty"`
	Conversation  ConversationState         `json:"conversation_state"`
	Completed     []CompletedFlow           `json:"completed_flows,omitempty"`
}

// NewDialogueState creates an empty state for a session key.
func NewDialogueState(sessionID string) *DialogueState {
	return &DialogueState{
		SessionID:     sessionID,
		FlowSlots:     make(map[string]map[string]any),
		ExecutedSteps: make(map[string][]int),
		Metadata:      make(map[string]any),
		Conversation:  ConversationIdle,
	}
}

// ActiveContext returns the top of the flow stack, or nil when idle.
func (s *DialogueState) ActiveContext() *FlowContext {
	if len(s.FlowStack) == 0 {
		return nil
	}
	return &s.FlowStack[len(s.FlowStack)-1]
}

// ParentContext returns the context below the active one, or nil.
func (s *DialogueState) ParentContext() *FlowContext {
	if len(s.FlowStack) < 2 {
		return nil
	}
	return &s.FlowStack[len(s.FlowStack)-2]
}

// ActiveSlots returns the active flow's slot map, never nil.
func (s *DialogueState) ActiveSlots() map[string]any {
	ctx := s.ActiveContext()
	if ctx == nil {
		return map[string]any{}
	}
	if m := s.FlowSlots[ctx.FlowID]; m != nil {
		return m
	}
	return map[string]any{}
}

// Slot reads one slot from the active flow.
func (s *DialogueState) Slot(name string) (any, bool) {
	v, ok := s.ActiveSlots()[name]
	return v, ok
}

// StepExecuted reports whether the step index is recorded for the flow.
func (s *DialogueState) StepExecuted(flowID string, index int) bool {
	for _, i := range s.ExecutedSteps[flowID] {
		if i == index {
			return true
		}
	}
	return false
}

// trimMessages drops the oldest history entries beyond the window.
func (s *DialogueState) trimMessages(window int) {
	if window > 0 && len(s.Messages) > window {
		s.Messages = append([]Turn(nil), s.Messages[len(s.Messages)-window:]...)
	}
}

// recordCompleted appends a terminal context to the bounded completed log.
func (s *DialogueState) recordCompleted(ctx FlowContext) {
	s.Completed = append(s.Completed, CompletedFlow{
		FlowID:      ctx.FlowID,
		FlowName:    ctx.FlowName,
		State:       ctx.State,
		CompletedAt: ctx.CompletedAt,
	})
	if len(s.Completed) > maxCompletedFlows {
		s.Completed = append([]CompletedFlow(nil), s.Completed[len(s.Completed)-maxCompletedFlows:]...)
	}
}

// Clone returns a deep copy. Slot and metadata values are treated as
// immutable and shared; all containers are copied.
func (s *DialogueState) Clone() *DialogueState {
	c := *s
	c.FlowStack = make([]FlowContext, len(s.FlowStack))
	for i, fc := range s.FlowStack {
		c.FlowStack[i] = fc
		if fc.Inputs != nil {
			c.FlowStack[i].Inputs = copyMap(fc.Inputs)
		}
		if fc.MapOutputs != nil {
			m := make(map[string]string, len(fc.MapOutputs))
			for k, v := range fc.MapOutputs {
				m[k] = v
			}
			c.FlowStack[i].MapOutputs = m
		}
	}
	c.FlowSlots = make(map[string]map[string]any, len(s.FlowSlots))
	for id, slots := range s.FlowSlots {
		c.FlowSlots[id] = copyMap(slots)
	}
	c.ExecutedSteps = make(map[string][]int, len(s.ExecutedSteps))
	for id, idxs := range s.ExecutedSteps {
		c.ExecutedSteps[id] = append([]int(nil), idxs...)
	}
	if s.Pending != nil {
		p := *s.Pending
		p.Options = append([]string(nil), s.Pending.Options...)
		c.Pending = &p
	}
	if s.LastNLU != nil {
		n := *s.LastNLU
		n.Slots = append([]SlotValue(nil), s.LastNLU.Slots...)
		c.LastNLU = &n
	}
	c.Messages = append([]Turn(nil), s.Messages...)
	c.Metadata = copyMap(s.Metadata)
	c.Completed = append([]CompletedFlow(nil), s.Completed...)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
