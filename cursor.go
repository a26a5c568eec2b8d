package colloquy

import "fmt"

// flowEndIndex is the cursor sentinel meaning "past the last step". The node
// loop treats a context parked here as a completed flow.
const flowEndIndex = -1

// activeGraph returns the compiled graph and context for the active flow.
func (e *Engine) activeGraph(state *DialogueState) (*Graph, *FlowContext) {
	ctx := state.ActiveContext()
	if ctx == nil {
		return nil, nil
	}
	return e.graphs[ctx.FlowName], ctx
}

// CurrentStep returns the step the active flow is parked on.
func (e *Engine) CurrentStep(state *DialogueState) (*Step, bool) {
	g, ctx := e.activeGraph(state)
	if g == nil || ctx.CurrentStepIndex == flowEndIndex {
		return nil, false
	}
	n, ok := g.NodeAt(ctx.CurrentStepIndex)
	if !ok {
		return nil, false
	}
	return &n.Step, true
}

// stepComplete reports variant-specific completeness: a collect is complete
// iff its slot is set, an action iff it is in executed_steps; the remaining
// variants use the execution flag.
func (e *Engine) stepComplete(node *Node, state *DialogueState) bool {
	ctx := state.ActiveContext()
	if ctx == nil {
		return false
	}
	switch node.Step.Type {
	case StepCollect:
		// An empty string counts as unset so a loop body can re-collect by
		// clearing the slot with a set step.
		v, ok := state.FlowSlots[ctx.FlowID][node.Step.Slot]
		return ok && v != nil && v != ""
	default:
		return state.StepExecuted(ctx.FlowID, node.Index)
	}
}

// clearExecutedFrom removes execution flags at or beyond fromIndex in the
// active flow, keeping action flags intact. Backward cursor movement (loop
// jump-back, correction rewind, deny edges) routes through here so say,
// set, branch, and confirm steps re-execute on the next pass while actions
// stay at-most-once per flow lifetime.
func (e *Engine) clearExecutedFrom(state *DialogueState, fromIndex int) {
	g, ctx := e.activeGraph(state)
	if g == nil {
		return
	}
	executed := state.ExecutedSteps[ctx.FlowID]
	kept := executed[:0]
	for _, idx := range executed {
		if idx < fromIndex {
			kept = append(kept, idx)
			continue
		}
		if n, ok := g.NodeAt(idx); ok && n.Step.Type == StepAction {
			kept = append(kept, idx)
		}
	}
	state.ExecutedSteps[ctx.FlowID] = kept
}

// successorIndex resolves the index the cursor moves to after a completed
// node. Branch nodes re-evaluate their expression (deterministic, so the
// result matches what execution recorded); everything else follows the
// sequential or jump_to edge. end is true when the edge terminates the flow.
func (e *Engine) successorIndex(g *Graph, node *Node, state *DialogueState) (next int, end bool, err error) {
	target := ""
	switch node.Step.Type {
	case StepBranch:
		val, evalErr := evalString(node.Step.Evaluate, state.ActiveSlots())
		if evalErr != nil {
			return 0, false, fmt.Errorf("step %s: %w", node.Step.Name, evalErr)
		}
		t, ok := node.Step.Cases[val]
		if !ok {
			t = node.Step.Default
		}
		if t == "" {
			return 0, false, fmt.Errorf("step %s: no branch case for %q and no default", node.Step.Name, val)
		}
		target = t
	default:
		target = node.Next
	}

	if target == "" || target == EndName {
		return 0, true, nil
	}
	n, ok := g.Node(target)
	if !ok {
		return 0, false, &GraphBuildError{Flow: g.Flow, Step: node.Step.Name, Target: target, Reason: "edge references unknown step"}
	}
	return n.Index, false, nil
}

// advanceThroughCompleted moves the cursor forward over already-complete
// steps: when several slots were filled in one utterance the cursor may skip
// several collect steps at once. Stops at the first incomplete step and
// classifies the conversation state from that step's type. The iteration cap
// guards against a mis-wired graph and is logged as a defect when hit.
func (e *Engine) advanceThroughCompleted(state *DialogueState) error {
	for iter := 0; iter < e.spec.Settings.MaxNodeExecutions; iter++ {
		g, ctx := e.activeGraph(state)
		if g == nil || ctx.State != FlowActive || ctx.CurrentStepIndex == flowEndIndex {
			return nil
		}
		node, ok := g.NodeAt(ctx.CurrentStepIndex)
		if !ok {
			ctx.CurrentStepIndex = flowEndIndex
			return nil
		}
		if !e.stepComplete(node, state) {
			state.Conversation = classifyStep(node.Step.Type)
			return nil
		}
		next, end, err := e.successorIndex(g, node, state)
		if err != nil {
			return err
		}
		if end {
			ctx.CurrentStepIndex = flowEndIndex
			return nil
		}
		if next <= node.Index {
			e.clearExecutedFrom(state, next)
		}
		ctx.CurrentStepIndex = next
	}
	e.logger.Error("step advance cap reached, graph may be mis-wired",
		"session", state.SessionID, "cap", e.spec.Settings.MaxNodeExecutions)
	return fmt.Errorf("step advance cap (%d) reached", e.spec.Settings.MaxNodeExecutions)
}

// classifyStep maps a step variant to the conversation state the session
// reports while parked on it.
func classifyStep(t StepType) ConversationState {
	switch t {
	case StepCollect:
		return ConversationWaitingSlot
	case StepAction:
		return ConversationReadyAction
	case StepConfirm:
		return ConversationReadyConfirm
	default:
		return ConversationInternal
	}
}

// rewindTo moves the active flow's cursor back to the given step index.
// Used by correction handling; never moves the cursor forward.
func (e *Engine) rewindTo(state *DialogueState, index int) {
	ctx := state.ActiveContext()
	if ctx == nil {
		return
	}
	if ctx.CurrentStepIndex == flowEndIndex || index < ctx.CurrentStepIndex {
		ctx.CurrentStepIndex = index
		e.clearExecutedFrom(state, index)
	}
}

// collectIndexFor returns the index of the collect step that fills the named
// slot in the active flow, or -1 when no such step exists.
func (e *Engine) collectIndexFor(state *DialogueState, slot string) int {
	g, _ := e.activeGraph(state)
	if g == nil {
		return -1
	}
	for _, name := range g.order {
		n := g.nodes[name]
		if n.Step.Type == StepCollect && n.Step.Slot == slot {
			return n.Index
		}
	}
	return -1
}
