package colloquy

import (
	"context"
	"testing"
)

func ruleNLURequest(utterance string) NLURequest {
	return NLURequest{Utterance: utterance}
}

func TestRuleNLUClassification(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)
	ctx := context.Background()

	tests := []struct {
		name string
		req  NLURequest
		want MessageType
	}{
		{"cancel phrase", ruleNLURequest("never mind, forget it"), MessageCancellation},
		{"handoff phrase", ruleNLURequest("I want a real person"), MessageHandoff},
		{"yes", ruleNLURequest("yes please"), MessageConfirmation},
		{"no", ruleNLURequest("nope"), MessageConfirmation},
		{"flow trigger", ruleNLURequest("I need a plane ticket"), MessageInterruption},
		{"chitchat fallback", ruleNLURequest("lovely weather"), MessageChitchat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nlu.Interpret(ctx, tt.req)
			if err != nil {
				t.Fatalf("Interpret() error = %v", err)
			}
			if got.MessageType != tt.want {
				t.Errorf("message type = %q, want %q", got.MessageType, tt.want)
			}
		})
	}
}

func TestRuleNLUConfirmationValue(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)
	ctx := context.Background()

	got, err := nlu.Interpret(ctx, ruleNLURequest("yeah, go ahead"))
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if got.Confirmation == nil || !*got.Confirmation {
		t.Errorf("confirmation = %v, want true", got.Confirmation)
	}

	got, _ = nlu.Interpret(ctx, ruleNLURequest("no way"))
	if got.Confirmation == nil || *got.Confirmation {
		t.Errorf("confirmation = %v, want false", got.Confirmation)
	}
}

func TestRuleNLUFlowTriggerBecomesDigressionMidFlow(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)

	req := NLURequest{Utterance: "check my balance", ActiveFlow: "book_flight"}
	got, err := nlu.Interpret(context.Background(), req)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if got.MessageType != MessageDigression {
		t.Errorf("message type = %q, want %q", got.MessageType, MessageDigression)
	}
	if got.Command != "check_balance" {
		t.Errorf("command = %q, want check_balance", got.Command)
	}
}

func TestRuleNLUActiveFlowNotRetriggered(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)

	// Re-mentioning the active flow's trigger words is not a digression; with
	// an expected slot the utterance binds to it instead.
	req := NLURequest{
		Utterance:     "book a flight",
		ActiveFlow:    "book_flight",
		ExpectedSlots: []string{"origin"},
	}
	got, err := nlu.Interpret(context.Background(), req)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if got.MessageType != MessageSlotValue {
		t.Errorf("message type = %q, want %q", got.MessageType, MessageSlotValue)
	}
}

func TestRuleNLUCorrection(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)

	req := NLURequest{
		Utterance:     "I meant Boston not Austin",
		ActiveFlow:    "book_flight",
		ExpectedSlots: []string{"origin"},
	}
	got, err := nlu.Interpret(context.Background(), req)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if got.MessageType != MessageCorrection {
		t.Fatalf("message type = %q, want %q", got.MessageType, MessageCorrection)
	}
	if len(got.Slots) != 1 || got.Slots[0].Name != "origin" || got.Slots[0].Value != "Boston" {
		t.Errorf("slots = %+v, want origin=Boston", got.Slots)
	}
	if got.Slots[0].Action != SlotCorrect {
		t.Errorf("action = %q, want %q", got.Slots[0].Action, SlotCorrect)
	}
}

func TestRuleNLUFromToExtraction(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)

	req := NLURequest{Utterance: "from Oslo to Bergen", ActiveFlow: "book_flight"}
	got, err := nlu.Interpret(context.Background(), req)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if got.MessageType != MessageSlotValue {
		t.Fatalf("message type = %q, want %q", got.MessageType, MessageSlotValue)
	}
	values := map[string]any{}
	for _, sv := range got.Slots {
		values[sv.Name] = sv.Value
	}
	if values["origin"] != "Oslo" || values["destination"] != "Bergen" {
		t.Errorf("slots = %v, want origin=Oslo destination=Bergen", values)
	}
}

func TestRuleNLUExpectedSlotFallback(t *testing.T) {
	spec := mustParseSpec(t, testSpecYAML)
	nlu := NewRuleNLU(spec)

	req := NLURequest{
		Utterance:     "Reykjavik",
		ActiveFlow:    "book_flight",
		ExpectedSlots: []string{"destination"},
	}
	got, err := nlu.Interpret(context.Background(), req)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if len(got.Slots) != 1 || got.Slots[0].Name != "destination" || got.Slots[0].Value != "Reykjavik" {
		t.Fatalf("slots = %+v, want destination=Reykjavik", got.Slots)
	}
	if got.Slots[0].Confidence != FallbackConfidence {
		t.Errorf("confidence = %v, want %v (fallback)", got.Slots[0].Confidence, FallbackConfidence)
	}
}
