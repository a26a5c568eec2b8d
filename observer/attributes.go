package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for dialogue observability spans and metrics.
var (
	AttrSessionID   = attribute.Key("dialogue.session_id")
	AttrMessageType = attribute.Key("dialogue.message_type")
	AttrConvState   = attribute.Key("dialogue.conversation_state")

	AttrFlowName  = attribute.Key("flow.name")
	AttrFlowState = attribute.Key("flow.state")

	AttrNLUConfidence = attribute.Key("nlu.confidence")
	AttrNLUSlotCount  = attribute.Key("nlu.slot_count")

	AttrActionName   = attribute.Key("action.name")
	AttrActionStatus = attribute.Key("action.status")
)
