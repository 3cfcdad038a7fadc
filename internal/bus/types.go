package bus

// InboundGroupMessage is one user message arriving in a shared group room,
// after upstream text analysis (mention extraction happens there, not here).
type InboundGroupMessage struct {
	GroupID         string   `json:"group_id"`
	MessageID       string   `json:"message_id,omitempty"`
	UserID          string   `json:"user_id"`
	UserName        string   `json:"user_name,omitempty"`
	Content         string   `json:"content"`
	MentionedAgents []string `json:"mentioned_agents,omitempty"`
}

// Event names published by the orchestrator.
const (
	EventTypingStart       = "typing.start"
	EventTypingStop        = "typing.stop"
	EventResponderSelected = "responder.selected"
	EventStatesCleared     = "states.cleared"
)

// Event is a server-side event broadcast to subscribers (WebSocket clients,
// downstream generation workers).
type Event struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	GroupID string      `json:"group_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// TypingPayload accompanies typing.start / typing.stop events.
type TypingPayload struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name,omitempty"`
}

// SelectionPayload accompanies responder.selected events.
type SelectionPayload struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription. The orchestrator
// publishes; the gateway and tests subscribe.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
