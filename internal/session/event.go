package session

// EventType names an event published to the observers of a session. The
// values double as the wire message types.
type EventType string

const (
	EventLog     EventType = "log"      // payload: stamped line (string)
	EventStatus  EventType = "status"   // payload: Status
	EventBotInfo EventType = "bot_info" // payload: BotInfo
	EventConfig  EventType = "config"   // payload: Options
)

// Event carries one observer-facing update.
type Event struct {
	Type    EventType
	Payload any
}

// Publisher fans an event out to every observer currently subscribed to
// sessionID. Implementations must not call back into the session.
type Publisher interface {
	Publish(sessionID string, ev Event)
}

// Status is the coarse connection state shown to observers.
type Status string

const (
	StatusConnected    Status = "Connected"
	StatusDisconnected Status = "Disconnected"
	StatusReconnecting Status = "Reconnecting…"
	StatusStopped      Status = "Stopped"
)

// BotInfo identifies the remote account once a connection is established.
type BotInfo struct {
	Username string `json:"username"`
}

// LogEvent wraps a stamped line.
func LogEvent(line string) Event {
	return Event{Type: EventLog, Payload: line}
}

type discardPublisher struct{}

func (discardPublisher) Publish(string, Event) {}
