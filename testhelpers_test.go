package colloquy

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// testSpecYAML is the shared fixture spec: a multi-slot booking flow with
// confirmation and an action, a short lookup flow for digressions, and a
// validated collect.
const testSpecYAML = `
settings:
  durability: sync
  max_stack_depth: 3
slots:
  origin:
    type: string
  destination:
    type: string
  travel_date:
    type: string
  passengers:
    type: number
flows:
  - name: book_flight
    description: Book a flight
    trigger_examples:
      - book a flight
      - I need a plane ticket
    steps:
      - step: greet
        type: say
        message: Happy to help with your booking.
      - step: ask_origin
        type: collect
        slot: origin
        prompt: Where are you flying from?
      - step: ask_destination
        type: collect
        slot: destination
        prompt: Where are you flying to?
      - step: ask_date
        type: collect
        slot: travel_date
        prompt: What date do you want to travel?
      - step: confirm_booking
        type: confirm
        message: Book {origin} to {destination} on {travel_date}?
        on_confirm: do_booking
        on_deny: ask_origin
      - step: do_booking
        type: action
        call: search_flights
        map_outputs:
          booking_ref: booking_ref
      - step: done
        type: say
        message: Booked! Reference {booking_ref}.
  - name: check_balance
    description: Check account balance
    trigger_examples:
      - check my balance
    steps:
      - step: fetch
        type: action
        call: fetch_balance
        map_outputs:
          balance: balance
      - step: tell
        type: say
        message: Your balance is {balance}.
  - name: book_table
    description: Reserve a table
    trigger_examples:
      - book a table
    steps:
      - step: ask_party
        type: collect
        slot: passengers
        prompt: How many people?
        validator: value >= 1
        validation_message: Party size must be at least 1.
      - step: table_done
        type: say
        message: Table for {passengers}.
`

func mustParseSpec(t *testing.T, yaml string) *Spec {
	t.Helper()
	spec, err := ParseSpec([]byte(yaml))
	if err != nil {
		t.Fatalf("ParseSpec() error = %v", err)
	}
	return spec
}

// scriptedNLU returns queued interpretations in order and records every
// request it sees. When the queue runs dry it reports chitchat, which keeps
// an over-long script visible as a test failure instead of a panic.
type scriptedNLU struct {
	mu    sync.Mutex
	queue []Interpretation
	reqs  []NLURequest
	err   error
}

func (s *scriptedNLU) enqueue(interps ...Interpretation) {
	s.mu.Lock()
	s.queue = append(s.queue, interps...)
	s.mu.Unlock()
}

func (s *scriptedNLU) Interpret(_ context.Context, req NLURequest) (Interpretation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return Interpretation{}, s.err
	}
	if len(s.queue) == 0 {
		return Interpretation{MessageType: MessageChitchat, Confidence: 0.3}, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next, nil
}

func (s *scriptedNLU) lastRequest() NLURequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reqs) == 0 {
		return NLURequest{}
	}
	return s.reqs[len(s.reqs)-1]
}

var errNLUDown = errors.New("nlu backend unavailable")

// --- Interpretation builders ---

func triggerFlow(name string) Interpretation {
	return Interpretation{MessageType: MessageInterruption, Command: name, Confidence: 0.9}
}

func provideSlot(name string, value any) Interpretation {
	return Interpretation{
		MessageType: MessageSlotValue,
		Slots:       []SlotValue{{Name: name, Value: value, Action: SlotProvide, Confidence: 0.9}},
		Confidence:  0.9,
	}
}

func provideSlots(slots ...SlotValue) Interpretation {
	return Interpretation{MessageType: MessageSlotValue, Slots: slots, Confidence: 0.9}
}

func correctSlot(name string, value any) Interpretation {
	return Interpretation{
		MessageType: MessageCorrection,
		Slots:       []SlotValue{{Name: name, Value: value, Action: SlotCorrect, Confidence: 0.9}},
		Confidence:  0.9,
	}
}

func modifySlot(name string, value any) Interpretation {
	return Interpretation{
		MessageType: MessageModification,
		Slots:       []SlotValue{{Name: name, Value: value, Action: SlotModify, Confidence: 0.9}},
		Confidence:  0.9,
	}
}

func confirmReply(v bool) Interpretation {
	return Interpretation{MessageType: MessageConfirmation, Confirmation: &v, Confidence: 0.9}
}

func confirmUnclear() Interpretation {
	return Interpretation{MessageType: MessageConfirmation, Confidence: 0.4}
}

func cancel() Interpretation {
	return Interpretation{MessageType: MessageCancellation, Confidence: 0.9}
}

// --- Engine builders ---

// testActions registers the fixture action handlers.
func testActions() *ActionRegistry {
	r := NewActionRegistry()
	r.Register("search_flights", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"booking_ref": "BK-1"}, nil
	})
	r.Register("fetch_balance", func(_ context.Context, _ map[string]any) (map[string]any, error) {
		return map[string]any{"balance": 42.5}, nil
	})
	return r
}

func newTestEngine(t *testing.T, nlu NLU, opts ...Option) *Engine {
	t.Helper()
	spec := mustParseSpec(t, testSpecYAML)
	base := []Option{WithNLU(nlu), WithActions(testActions())}
	engine, err := New(spec, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return engine
}

// turn runs one turn and fails the test on error.
func turn(t *testing.T, e *Engine, session, utterance string) *TurnResult {
	t.Helper()
	result, err := e.HandleTurn(context.Background(), session, utterance)
	if err != nil {
		t.Fatalf("HandleTurn(%q) error = %v", utterance, err)
	}
	return result
}
