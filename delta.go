package colloquy

// Reserved metadata keys. Keys prefixed "_" are never user-visible.
const (
	metaBranchTarget    = "_branch_target"
	metaConfirmAttempts = "_confirm_attempts"
	metaAck             = "_ack"
	metaEscalated       = "_escalated"
)

// Delta is a partial description of state changes produced by a node or
// dispatcher handler and merged into state by the engine. Deltas are applied
// in production order: scalar fields are last-writer-wins within a turn,
// executed-step sets union, and messages/say fragments concatenate in order.
type Delta struct {
	// Stack replaces the whole flow stack when StackSet is true.
	Stack    []FlowContext
	StackSet bool
	// Slots replaces the named flows' slot maps.
	Slots map[string]map[string]any
	// Executed adds step indices to the named flows' executed sets.
	Executed map[string][]int
	// ClearExecuted wipes the named flows' executed sets (flow exit).
	ClearExecuted []string
	// ClearSlots wipes the named flows' slot maps (flow exit).
	ClearSlots []string
	// Pending sets the pending task; ClearPending removes it. Setting wins
	// when both are present in one delta.
	Pending      *PendingTask
	ClearPending bool
	// Messages are appended to the history window in order.
	Messages []Turn
	// Say fragments accumulate into the turn's response.
	Say []string
	// BranchTarget records the step a branch routed to (metadata-backed).
	BranchTarget string
	// Metadata entries are merged key-by-key; a nil value deletes the key.
	Metadata map[string]any
	// Conversation updates the conversation-state classification.
	Conversation ConversationState
	// CompletedFlows appends to the bounded terminal-flows log.
	CompletedFlows []FlowContext
}

// setSlot is a convenience for single-slot deltas against a flow.
func (d *Delta) setSlot(state *DialogueState, flowID, name string, value any) {
	if d.Slots == nil {
		d.Slots = make(map[string]map[string]any)
	}
	slots, ok := d.Slots[flowID]
	if !ok {
		slots = copyMap(state.FlowSlots[flowID])
		d.Slots[flowID] = slots
	}
	slots[name] = value
}

// markExecuted records a step index for a flow.
func (d *Delta) markExecuted(flowID string, index int) {
	if d.Executed == nil {
		d.Executed = make(map[string][]int)
	}
	d.Executed[flowID] = append(d.Executed[flowID], index)
}

// Apply merges the delta into state. The engine owns the state value during
// a turn, so mutation here is safe; determinism comes from application order.
func (d *Delta) Apply(state *DialogueState) {
	if d.StackSet {
		state.FlowStack = d.Stack
	}
	for flowID, slots := range d.Slots {
		state.FlowSlots[flowID] = slots
	}
	for flowID, idxs := range d.Executed {
		for _, idx := range idxs {
			if !state.StepExecuted(flowID, idx) {
				state.ExecutedSteps[flowID] = append(state.ExecutedSteps[flowID], idx)
			}
		}
	}
	for _, flowID := range d.ClearExecuted {
		delete(state.ExecutedSteps, flowID)
	}
	for _, flowID := range d.ClearSlots {
		delete(state.FlowSlots, flowID)
	}
	switch {
	case d.Pending != nil:
		state.Pending = d.Pending
	case d.ClearPending:
		state.Pending = nil
	}
	state.Messages = append(state.Messages, d.Messages...)
	if d.BranchTarget != "" {
		state.Metadata[metaBranchTarget] = d.BranchTarget
	}
	for k, v := range d.Metadata {
		if v == nil {
			delete(state.Metadata, k)
		} else {
			state.Metadata[k] = v
		}
	}
	if d.Conversation != "" {
		state.Conversation = d.Conversation
	}
	for _, ctx := range d.CompletedFlows {
		state.recordCompleted(ctx)
	}
}
