package colloquy

import "testing"

// loopSpecYAML exercises while desugaring at runtime: the loop body clears
// its collect slots with set steps so each pass re-prompts, and the guard
// routes to the exit step when the continue slot stops matching.
const loopSpecYAML = `
slots:
  item:
    type: string
  more:
    type: string
flows:
  - name: order_items
    trigger_examples:
      - order some items
    steps:
      - step: start
        type: set
        slot: more
        value: "yes"
      - step: loop
        type: while
        condition: more == "yes"
        do: [clear_item, ask_item, clear_more, ask_more]
        exit_to: finish
      - step: clear_item
        type: set
        slot: item
        value: ""
      - step: ask_item
        type: collect
        slot: item
        prompt: What item?
      - step: clear_more
        type: set
        slot: more
        value: ""
      - step: ask_more
        type: collect
        slot: more
        prompt: Add another?
      - step: finish
        type: say
        message: Order complete.
`

func newLoopEngine(t *testing.T, nlu NLU) *Engine {
	t.Helper()
	spec := mustParseSpec(t, loopSpecYAML)
	e, err := New(spec, WithNLU(nlu))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestLoopCollectsUntilGuardFails(t *testing.T) {
	nlu := &scriptedNLU{}
	nlu.enqueue(
		triggerFlow("order_items"),
		provideSlot("item", "apples"),
		provideSlot("more", "yes"),
		provideSlot("item", "pears"),
		provideSlot("more", "no"),
	)
	e := newLoopEngine(t, nlu)
	session := "s-loop"

	steps := []struct {
		utterance string
		want      string
	}{
		{"I'd like to order some items", "What item?"},
		{"apples", "Add another?"},
		{"yes", "What item?"}, // jump-back cleared the slot, so we re-prompt
		{"pears", "Add another?"},
		{"no", "Order complete."},
	}
	var last *TurnResult
	for i, s := range steps {
		last = turn(t, e, session, s.utterance)
		if last.Response != s.want {
			t.Fatalf("turn %d response = %q, want %q", i+1, last.Response, s.want)
		}
	}

	if last.State.Conversation != ConversationIdle {
		t.Errorf("conversation = %q, want %q", last.State.Conversation, ConversationIdle)
	}
	if len(last.State.Completed) != 1 || last.State.Completed[0].State != FlowCompleted {
		t.Errorf("completed log = %+v, want one completed entry", last.State.Completed)
	}
}

func TestLoopWithoutExitCompletesWhenGuardFalse(t *testing.T) {
	// No exit_to and the body declared after the loop: a guard that is false
	// from the start must end the flow cleanly instead of falling through
	// into the body.
	const doc = `
slots:
  item:
    type: string
  more:
    type: string
flows:
  - name: add_items
    trigger_examples:
      - add items
    steps:
      - step: loop
        type: while
        condition: more == "yes"
        do: [ask_item]
      - step: ask_item
        type: collect
        slot: item
        prompt: What item?
`
	nlu := &scriptedNLU{}
	nlu.enqueue(triggerFlow("add_items"))
	spec := mustParseSpec(t, doc)
	e, err := New(spec, WithNLU(nlu))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result := turn(t, e, "s-loop-noexit", "add items please")
	if want := "Okay."; result.Response != want {
		t.Errorf("response = %q, want %q", result.Response, want)
	}
	if result.State.Conversation != ConversationIdle {
		t.Errorf("conversation = %q, want %q", result.State.Conversation, ConversationIdle)
	}
	if len(result.State.Completed) != 1 || result.State.Completed[0].State != FlowCompleted {
		t.Errorf("completed log = %+v, want one completed entry", result.State.Completed)
	}
}

func TestLoopZeroIterations(t *testing.T) {
	// A start value that fails the guard immediately routes straight to the
	// exit step without ever prompting.
	nlu := &scriptedNLU{}
	nlu.enqueue(triggerFlow("order_items"))
	spec := mustParseSpec(t, loopSpecYAML)
	spec.Flows[0].Steps[0].Value = "no"
	e, err := New(spec, WithNLU(nlu))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result := turn(t, e, "s-loop-zero", "order some items please")
	if want := "Order complete."; result.Response != want {
		t.Errorf("response = %q, want %q", result.Response, want)
	}
}
