package colloquy

// Confirmation state machine: prompt_needed -> awaiting_reply ->
// affirmed / denied / unclear_retry / exhausted. The attempt counter lives in
// transient metadata so it survives checkpointing but never leaks into
// user-visible output.

// confirmAttempts reads the retry counter from metadata.
func confirmAttempts(state *DialogueState) int {
	switch v := state.Metadata[metaConfirmAttempts].(type) {
	case int:
		return v
	case float64: // JSON round-trip widens ints
		return int(v)
	default:
		return 0
	}
}

// promptConfirm suspends on a confirm step: the interpolated message becomes
// the pending prompt and the session waits for a yes/no reply. All
// active-flow slots are available to the message template.
func (e *Engine) promptConfirm(state *DialogueState, turn *turnScratch, node *Node) bool {
	e.apply(state, turn, Delta{
		Pending: &PendingTask{
			Kind:    TaskConfirm,
			Prompt:  Render(node.Step.Message, state.ActiveSlots()),
			Options: []string{"yes", "no"},
		},
		Conversation: ConversationReadyConfirm,
	})
	return true
}

// handleConfirmation resolves a confirmation interpretation against the
// confirm step the flow is parked on. A true/false value routes to
// on_confirm/on_deny and clears the attempt counter; an unclear value
// re-prompts until the configured attempt limit, then emits the exhausted
// response and resets.
func (e *Engine) handleConfirmation(state *DialogueState, turn *turnScratch, interp Interpretation) error {
	step, ok := e.CurrentStep(state)
	if !ok || step.Type != StepConfirm {
		// Not awaiting confirmation; treat like a continuation so any slots
		// carried by the interpretation still land.
		return e.applySlots(state, turn, nil, interp, SlotProvide)
	}

	g, fctx := e.activeGraph(state)
	node, _ := g.NodeAt(fctx.CurrentStepIndex)

	if interp.Confirmation == nil {
		attempts := confirmAttempts(state) + 1
		if attempts >= e.spec.Settings.MaxConfirmAttempts {
			e.apply(state, turn, Delta{
				Say:          []string{e.spec.Response("confirm_exhausted")},
				Metadata:     map[string]any{metaConfirmAttempts: nil},
				Conversation: ConversationReadyConfirm,
			})
			turn.stop = true
			return nil
		}
		prompt := Render(node.Step.Message, state.ActiveSlots())
		e.apply(state, turn, Delta{
			Pending: &PendingTask{
				Kind:    TaskConfirm,
				Prompt:  Render(e.spec.Response("confirm_retry"), map[string]any{"prompt": prompt}),
				Options: []string{"yes", "no"},
			},
			Metadata:     map[string]any{metaConfirmAttempts: attempts},
			Conversation: ConversationReadyConfirm,
		})
		turn.stop = true
		return nil
	}

	target := node.Step.OnDeny
	if *interp.Confirmation {
		target = node.Step.OnConfirm
	}

	var d Delta
	d.markExecuted(fctx.FlowID, node.Index)
	d.BranchTarget = target
	d.Metadata = map[string]any{metaConfirmAttempts: nil}
	e.apply(state, turn, d)

	if target == EndName {
		fctx.CurrentStepIndex = flowEndIndex
		return nil
	}
	targetNode, ok := g.Node(target)
	if !ok {
		return &GraphBuildError{Flow: g.Flow, Step: node.Step.Name, Target: target, Reason: "confirm edge references unknown step"}
	}
	if targetNode.Index <= node.Index {
		e.clearExecutedFrom(state, targetNode.Index)
	}
	fctx.CurrentStepIndex = targetNode.Index
	return nil
}
