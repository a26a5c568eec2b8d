package colloquy

import "errors"

// errStackFull is returned by push when the stack is at its depth limit and
// the overflow strategy is reject_new. The caller turns it into a
// user-visible response; it never escapes a turn.
var errStackFull = errors.New("flow stack depth limit reached")

// flowManager owns stack operations. All operations are delta-producing:
// they describe the stack change without touching state, and the engine
// applies the delta at its merge point.
type flowManager struct {
	maxDepth int
	strategy string // OverflowRejectNew or OverflowCancelOldest
}

// push creates a fresh flow context on top of the stack, pausing the current
// top. On depth overflow the configured strategy decides: reject_new returns
// errStackFull, cancel_oldest cancels the bottom-most context to make room.
func (m *flowManager) push(state *DialogueState, flowName string, inputs map[string]any, reason PushReason, mapOutputs map[string]string) (Delta, error) {
	var d Delta
	stack := append([]FlowContext(nil), state.FlowStack...)

	if len(stack) >= m.maxDepth {
		if m.strategy != OverflowCancelOldest {
			return Delta{}, errStackFull
		}
		oldest := stack[0]
		oldest.State = FlowCancelled
		oldest.CompletedAt = NowUnix()
		d.ClearSlots = append(d.ClearSlots, oldest.FlowID)
		d.ClearExecuted = append(d.ClearExecuted, oldest.FlowID)
		d.CompletedFlows = append(d.CompletedFlows, oldest)
		stack = append([]FlowContext(nil), stack[1:]...)
	}

	if len(stack) > 0 {
		top := &stack[len(stack)-1]
		top.State = FlowPaused
		top.PausedAt = NowUnix()
	}

	ctx := FlowContext{
		FlowID:     NewID(),
		FlowName:   flowName,
		State:      FlowActive,
		StartedAt:  NowUnix(),
		Inputs:     inputs,
		Reason:     reason,
		MapOutputs: mapOutputs,
	}
	stack = append(stack, ctx)

	d.Stack = stack
	d.StackSet = true
	if len(inputs) > 0 {
		d.Slots = map[string]map[string]any{ctx.FlowID: copyMap(inputs)}
	}
	return d, nil
}

// pop removes the active context with the given terminal result. The parent
// (if any) resumes; a completed call context maps its outputs back into the
// caller's slots before the popped flow's slots and executed steps are
// pruned.
func (m *flowManager) pop(state *DialogueState, result FlowState) Delta {
	var d Delta
	if len(state.FlowStack) == 0 {
		return d
	}

	stack := append([]FlowContext(nil), state.FlowStack...)
	popped := stack[len(stack)-1]
	popped.State = result
	popped.CompletedAt = NowUnix()
	stack = stack[:len(stack)-1]

	if len(stack) > 0 {
		parent := &stack[len(stack)-1]
		parent.State = FlowActive
		parent.PausedAt = 0

		if popped.Reason == PushCall && result == FlowCompleted && len(popped.MapOutputs) > 0 {
			childSlots := state.FlowSlots[popped.FlowID]
			for outKey, slotName := range popped.MapOutputs {
				if v, ok := childSlots[outKey]; ok {
					d.setSlot(state, parent.FlowID, slotName, v)
				}
			}
		}
	}

	d.Stack = stack
	d.StackSet = true
	d.ClearSlots = append(d.ClearSlots, popped.FlowID)
	d.ClearExecuted = append(d.ClearExecuted, popped.FlowID)
	d.CompletedFlows = append(d.CompletedFlows, popped)
	return d
}
