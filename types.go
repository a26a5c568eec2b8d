package colloquy

// --- Interpretation types ---

// MessageType classifies a user utterance into one of the closed set of
// dialogue commands the dispatcher understands.
type MessageType string

const (
	MessageSlotValue    MessageType = "slot_value"
	MessageCorrection   MessageType = "correction"
	MessageModification MessageType = "modification"
	MessageInterruption MessageType = "interruption"
	MessageDigression   MessageType = "digression"
	MessageClarify      MessageType = "clarification"
	MessageCancellation MessageType = "cancellation"
	MessageConfirmation MessageType = "confirmation"
	MessageContinuation MessageType = "continuation"
	MessageHandoff      MessageType = "handoff"
	MessageChitchat     MessageType = "chitchat"
)

// SlotAction describes how an extracted slot value relates to the dialogue:
// a first-time provision, a correction of an earlier value, or a modification.
type SlotAction string

const (
	SlotProvide SlotAction = "provide"
	SlotCorrect SlotAction = "correct"
	SlotModify  SlotAction = "modify"
)

// SlotValue is one extracted slot from a user utterance.
type SlotValue struct {
	Name       string     `json:"name"`
	Value      any        `json:"value"`
	Action     SlotAction `json:"action"`
	Confidence float64    `json:"confidence"`
}

// FallbackConfidence marks a slot value synthesised by an NLU provider when
// no slot was explicitly extracted. Fallback slots are never treated as
// corrections by the dispatcher.
const FallbackConfidence = 0.5

// Interpretation is the structured result of understanding one utterance.
// Produced by an NLU provider, consumed by the pattern dispatcher, and kept
// on state for the duration of the turn.
type Interpretation struct {
	MessageType  MessageType `json:"message_type"`
	Command      string      `json:"command,omitempty"` // flow or action name, unprefixed
	Slots        []SlotValue `json:"slots,omitempty"`
	Confirmation *bool       `json:"confirmation_value,omitempty"` // nil = unclear
	Confidence   float64     `json:"confidence"`
	Reasoning    string      `json:"reasoning,omitempty"`
}

// --- Conversation history ---

// Turn is one entry in the bounded trailing conversation window.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
	At      int64  `json:"at"`
}

// UserTurn builds a user history entry stamped with the current time.
func UserTurn(text string) Turn {
	return Turn{Role: "user", Content: text, At: NowUnix()}
}

// AssistantTurn builds an assistant history entry stamped with the current time.
func AssistantTurn(text string) Turn {
	return Turn{Role: "assistant", Content: text, At: NowUnix()}
}

// --- Pending task (suspension record) ---

// TaskKind discriminates the pending-task union.
type TaskKind string

const (
	TaskCollect TaskKind = "collect"
	TaskConfirm TaskKind = "confirm"
	TaskInform  TaskKind = "inform"
)

// PendingTask is the single out-of-band "I need input from the user" record
// carried across turns. At most one exists at a time; its presence means the
// previous turn ended at a suspension point.
type PendingTask struct {
	Kind    TaskKind `json:"kind"`
	Slot    string   `json:"slot,omitempty"` // collect: target slot
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Wait    bool     `json:"wait,omitempty"` // inform: require acknowledgement
}

// --- Conversation state classification ---

// ConversationState summarises what the session is waiting on, derived from
// the first incomplete step after cursor advancement.
type ConversationState string

const (
	ConversationIdle         ConversationState = "idle"
	ConversationWaitingSlot  ConversationState = "waiting_for_slot"
	ConversationReadyAction  ConversationState = "ready_for_action"
	ConversationReadyConfirm ConversationState = "ready_for_confirmation"
	ConversationInternal     ConversationState = "internal"
	ConversationEscalated    ConversationState = "escalated"
)

// --- Flow lifecycle ---

// FlowState is the lifecycle state of a flow context on the stack.
type FlowState string

const (
	FlowActive    FlowState = "active"
	FlowPaused    FlowState = "paused"
	FlowCompleted FlowState = "completed"
	FlowCancelled FlowState = "cancelled"
	FlowError     FlowState = "error"
)

// IsTerminal reports whether the state is final (completed, cancelled, or error).
func (s FlowState) IsTerminal() bool {
	return s == FlowCompleted || s == FlowCancelled || s == FlowError
}
