package colloquy

import (
	"context"
	"errors"
)

// dispatch turns an NLU interpretation into state deltas. It owns the full
// command table: slot fills, corrections, modifications, digressions,
// cancellation, confirmation forwarding, handoff, and chitchat. turn.stop is
// set when the dispatcher fully handles the turn and the node loop must not
// run (clarification, chitchat, handoff, validation retry).
func (e *Engine) dispatch(ctx context.Context, state *DialogueState, turn *turnScratch, pending *PendingTask, interp Interpretation) error {
	active := state.ActiveContext()

	// No active flow: only a flow trigger does anything.
	if active == nil {
		if interp.Command != "" && e.spec.Flow(interp.Command) != nil {
			return e.startFlow(state, turn, interp.Command, PushTrigger)
		}
		switch interp.MessageType {
		case MessageChitchat:
			turn.addSay(e.spec.Response("chitchat"))
		case MessageHandoff:
			e.markHandoff(state, turn)
		default:
			turn.addSay(e.spec.Response("default"))
		}
		turn.stop = true
		return nil
	}

	switch interp.MessageType {
	case MessageSlotValue, MessageContinuation:
		return e.applySlots(state, turn, pending, interp, SlotProvide)

	case MessageCorrection:
		return e.applySlots(state, turn, pending, interp, SlotCorrect)

	case MessageModification:
		return e.applySlots(state, turn, pending, interp, SlotModify)

	case MessageInterruption, MessageDigression:
		if interp.Command == "" || e.spec.Flow(interp.Command) == nil {
			turn.addSay(e.spec.Response("default"))
			turn.stop = true
			return nil
		}
		return e.startFlow(state, turn, interp.Command, PushDigression)

	case MessageClarify:
		prompt := ""
		if pending != nil {
			prompt = pending.Prompt
		} else if step, ok := e.CurrentStep(state); ok && step.Type == StepCollect {
			prompt = Render(step.Prompt, state.ActiveSlots())
		}
		turn.addSay(Render(e.spec.Response("clarification"), map[string]any{"prompt": prompt}))
		// Do not advance: restore the suspension the clarification answered.
		if pending != nil {
			e.apply(state, turn, Delta{Pending: pending})
		}
		turn.stop = true
		return nil

	case MessageCancellation:
		d := e.stack.pop(state, FlowCancelled)
		d.Say = []string{e.spec.Response("cancellation")}
		d.Metadata = map[string]any{metaConfirmAttempts: nil}
		e.apply(state, turn, d)
		if state.ActiveContext() == nil {
			state.Conversation = ConversationIdle
		}
		return nil

	case MessageConfirmation:
		return e.handleConfirmation(state, turn, interp)

	case MessageHandoff:
		e.markHandoff(state, turn)
		if pending != nil {
			e.apply(state, turn, Delta{Pending: pending})
		}
		turn.stop = true
		return nil

	case MessageChitchat:
		turn.addSay(e.spec.Response("chitchat"))
		if pending != nil {
			e.apply(state, turn, Delta{Pending: pending})
		}
		turn.stop = true
		return nil

	default:
		// Unknown types behave like continuation: any slots still land.
		return e.applySlots(state, turn, pending, interp, SlotProvide)
	}
}

// startFlow pushes a new flow. Depth overflow with reject_new produces the
// rejection response instead of a push.
func (e *Engine) startFlow(state *DialogueState, turn *turnScratch, flowName string, reason PushReason) error {
	d, err := e.stack.push(state, flowName, nil, reason, nil)
	if err != nil {
		if errors.Is(err, errStackFull) {
			turn.addSay(e.spec.Response("reject_new"))
			turn.stop = true
			return nil
		}
		return err
	}
	e.apply(state, turn, d)
	return nil
}

// markHandoff flags the session for escalation.
func (e *Engine) markHandoff(state *DialogueState, turn *turnScratch) {
	e.apply(state, turn, Delta{
		Say:          []string{e.spec.Response("handoff")},
		Metadata:     map[string]any{metaEscalated: true},
		Conversation: ConversationEscalated,
	})
}

// applySlots applies every extracted slot in source order. Per-slot
// correction/modification flags override the blanket action derived from the
// message type; a fallback slot (synthesised at confidence 0.5 when nothing
// was extracted) is never treated as a correction. Corrections rewind the
// cursor to the earliest corrected slot's collect step; modifications update
// in place.
func (e *Engine) applySlots(state *DialogueState, turn *turnScratch, pending *PendingTask, interp Interpretation, blanket SlotAction) error {
	fctx := state.ActiveContext()
	rewindIndex := -1

	for _, sv := range interp.Slots {
		action := blanket
		if sv.Action == SlotCorrect || sv.Action == SlotModify {
			action = sv.Action
		}
		if sv.Confidence == FallbackConfidence && action == SlotCorrect {
			action = SlotProvide
		}

		name := sv.Name
		if name == "" && pending != nil && pending.Kind == TaskCollect {
			name = pending.Slot
		}
		if name == "" {
			continue
		}

		value, err := e.normalizer.Normalize(e.spec.Slots[name], sv.Value)
		if err != nil {
			e.collectRetry(state, turn, name, err.Error())
			return nil
		}
		if !e.validateSlot(state, turn, name, value) {
			return nil
		}

		var d Delta
		d.setSlot(state, fctx.FlowID, name, value)
		ackValues := map[string]any{"slot": name, "value": value}
		switch action {
		case SlotCorrect:
			d.Say = []string{Render(e.spec.Response("correction_ack"), ackValues)}
			d.Metadata = map[string]any{metaAck: "correction", metaConfirmAttempts: nil}
			if idx := e.collectIndexFor(state, name); idx >= 0 && (rewindIndex < 0 || idx < rewindIndex) {
				rewindIndex = idx
			}
		case SlotModify:
			d.Say = []string{Render(e.spec.Response("modification_ack"), ackValues)}
			d.Metadata = map[string]any{metaAck: "modification", metaConfirmAttempts: nil}
		}
		e.apply(state, turn, d)
	}

	if rewindIndex >= 0 {
		// A correction received while a confirm prompt is open re-enters the
		// prompt with updated values, unless the corrected slot's collect
		// step is upstream of it.
		e.rewindTo(state, rewindIndex)
	}
	return nil
}

// validateSlot runs the collect step's validator expression against the
// candidate value. On failure it emits a collect-retry suspension with the
// configured validation message and ends the turn.
func (e *Engine) validateSlot(state *DialogueState, turn *turnScratch, name string, value any) bool {
	g, _ := e.activeGraph(state)
	if g == nil {
		return true
	}
	idx := e.collectIndexFor(state, name)
	if idx < 0 {
		return true
	}
	node, _ := g.NodeAt(idx)
	if node == nil || node.Step.Validator == "" {
		return true
	}

	scope := copyMap(state.ActiveSlots())
	scope["value"] = value
	scope[name] = value
	ok, err := evalCondition(node.Step.Validator, scope)
	if err != nil {
		e.logger.Warn("validator error", "slot", name, "error", err)
		return true
	}
	if ok {
		return true
	}

	msg := node.Step.ValidationMessage
	if msg == "" {
		msg = e.spec.Response("not_understood")
	}
	e.collectRetry(state, turn, name, Render(msg, scope))
	return false
}

// collectRetry re-suspends on the named slot with a retry message.
func (e *Engine) collectRetry(state *DialogueState, turn *turnScratch, slot, message string) {
	e.apply(state, turn, Delta{
		Pending: &PendingTask{
			Kind:   TaskCollect,
			Slot:   slot,
			Prompt: message,
		},
		Conversation: ConversationWaitingSlot,
	})
	turn.stop = true
}
