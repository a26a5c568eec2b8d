package colloquy

import (
	"context"
	"regexp"
	"strings"
)

// RuleNLU is a deterministic, keyword-driven understanding provider. It keeps
// the runtime usable end-to-end — the CLI, demos, and smoke tests — without
// an external model. Production deployments implement NLU against a real
// provider; the engine does not care which.
//
// Interpretation rules, in precedence order: cancellation phrases, handoff
// phrases, yes/no confirmations, flow triggers (token overlap with
// trigger_examples), corrections ("actually", "i meant"), origin/destination
// extraction ("from X to Y"), and finally binding the whole utterance to the
// expected slot.
type RuleNLU struct {
	spec *Spec
}

var _ NLU = (*RuleNLU)(nil)

// NewRuleNLU creates a rule-based NLU over the given specification.
func NewRuleNLU(spec *Spec) *RuleNLU {
	return &RuleNLU{spec: spec}
}

var (
	cancelWords  = []string{"cancel", "never mind", "nevermind", "forget it", "stop this"}
	handoffWords = []string{"human", "real person", "representative", "speak to an agent"}
	yesWords     = []string{"yes", "yeah", "yep", "sure", "correct", "confirm", "that's right", "ok", "okay"}
	noWords      = []string{"no", "nope", "nah", "wrong", "don't", "negative"}

	fromToPattern    = regexp.MustCompile(`(?i)\bfrom\s+(.+?)\s+to\s+(.+?)(?:\s*$|[.,!?])`)
	correctedPattern = regexp.MustCompile(`(?i)\bmeant\s+(.+?)(?:\s+not\s+|\s*$|[.,!?])`)
)

// Interpret implements NLU.
func (r *RuleNLU) Interpret(_ context.Context, req NLURequest) (Interpretation, error) {
	utterance := strings.TrimSpace(req.Utterance)
	lower := strings.ToLower(utterance)

	if containsAny(lower, cancelWords) {
		return Interpretation{MessageType: MessageCancellation, Confidence: 0.9}, nil
	}
	if containsAny(lower, handoffWords) {
		return Interpretation{MessageType: MessageHandoff, Confidence: 0.9}, nil
	}

	if v, ok := yesNo(lower); ok {
		return Interpretation{MessageType: MessageConfirmation, Confirmation: &v, Confidence: 0.9}, nil
	}

	// Flow triggers beat slot binding so a digression mid-flow is detected.
	if flow := r.matchFlow(lower); flow != "" && flow != req.ActiveFlow {
		mt := MessageInterruption
		if req.ActiveFlow != "" {
			mt = MessageDigression
		}
		return Interpretation{MessageType: mt, Command: flow, Confidence: 0.8}, nil
	}

	if m := correctedPattern.FindStringSubmatch(utterance); m != nil {
		slot := r.correctionTarget(req)
		if slot != "" {
			return Interpretation{
				MessageType: MessageCorrection,
				Slots: []SlotValue{{
					Name: slot, Value: strings.TrimSpace(m[1]),
					Action: SlotCorrect, Confidence: 0.8,
				}},
				Confidence: 0.8,
			}, nil
		}
	}

	if m := fromToPattern.FindStringSubmatch(utterance); m != nil {
		if _, hasOrigin := r.spec.Slots["origin"]; hasOrigin {
			if _, hasDest := r.spec.Slots["destination"]; hasDest {
				return Interpretation{
					MessageType: MessageSlotValue,
					Slots: []SlotValue{
						{Name: "origin", Value: strings.TrimSpace(m[1]), Action: SlotProvide, Confidence: 0.8},
						{Name: "destination", Value: strings.TrimSpace(m[2]), Action: SlotProvide, Confidence: 0.8},
					},
					Confidence: 0.8,
				}, nil
			}
		}
	}

	if len(req.ExpectedSlots) > 0 && utterance != "" {
		return Interpretation{
			MessageType: MessageSlotValue,
			Slots: []SlotValue{{
				Name: req.ExpectedSlots[0], Value: utterance,
				Action: SlotProvide, Confidence: FallbackConfidence,
			}},
			Confidence: FallbackConfidence,
		}, nil
	}

	return Interpretation{MessageType: MessageChitchat, Confidence: 0.3}, nil
}

// matchFlow scores trigger-example token overlap and returns the best flow,
// or "" when nothing clears the threshold.
func (r *RuleNLU) matchFlow(lower string) string {
	tokens := tokenSet(lower)
	best := ""
	bestScore := 0
	for i := range r.spec.Flows {
		f := &r.spec.Flows[i]
		for _, example := range f.TriggerExamples {
			score := 0
			for tok := range tokenSet(strings.ToLower(example)) {
				if tokens[tok] {
					score++
				}
			}
			if score > bestScore {
				bestScore = score
				best = f.Name
			}
		}
	}
	if bestScore < 2 {
		return ""
	}
	return best
}

// correctionTarget picks the slot a correction refers to: the expected slot
// when one is pending, otherwise the only filled slot, otherwise nothing.
func (r *RuleNLU) correctionTarget(req NLURequest) string {
	if len(req.ExpectedSlots) > 0 {
		return req.ExpectedSlots[0]
	}
	if len(req.CurrentSlots) == 1 {
		for name := range req.CurrentSlots {
			return name
		}
	}
	return ""
}

func yesNo(lower string) (value bool, ok bool) {
	for _, w := range yesWords {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+",") {
			return true, true
		}
	}
	for _, w := range noWords {
		if lower == w || strings.HasPrefix(lower, w+" ") || strings.HasPrefix(lower, w+",") {
			return false, true
		}
	}
	return false, false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var stopTokens = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "to": true, "of": true,
	"my": true, "me": true, "is": true, "it": true, "in": true, "for": true,
	"want": true, "need": true, "please": true, "like": true, "would": true,
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if !stopTokens[tok] {
			set[tok] = true
		}
	}
	return set
}
