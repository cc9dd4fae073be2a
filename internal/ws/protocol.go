package ws

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/afk-console/backend/internal/session"
)

type MessageType string

const (
	// Inbound commands.
	MsgJoin     MessageType = "join"
	MsgStartBot MessageType = "start_bot"
	MsgStopBot  MessageType = "stop_bot"
	MsgSendChat MessageType = "send_chat"

	// Outbound events.
	MsgLog     MessageType = MessageType(session.EventLog)
	MsgStatus  MessageType = MessageType(session.EventStatus)
	MsgBotInfo MessageType = MessageType(session.EventBotInfo)
	MsgConfig  MessageType = MessageType(session.EventConfig)
)

// WSMessage is the envelope of every outbound frame.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// InboundMessage is the envelope of every frame a browser sends. Payload
// is decoded once the type is known.
type InboundMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StartPayload carries the optional overrides of a start_bot command.
type StartPayload struct {
	Host     flexString `json:"host"`
	Port     flexString `json:"port"`
	Username flexString `json:"username"`
	Version  flexString `json:"version"`
}

// Overrides converts the payload for Session.Start.
func (p StartPayload) Overrides() session.Overrides {
	return session.Overrides{
		Host:     string(p.Host),
		Port:     string(p.Port),
		Username: string(p.Username),
		Version:  string(p.Version),
	}
}

// flexString accepts a JSON string, number, boolean or null. Form fields
// arrive as strings or numbers depending on the page.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*f = flexString(strconv.FormatBool(b))
	return nil
}

// decodeString reads a payload that should be a string. Anything else
// yields "".
func decodeString(raw json.RawMessage) string {
	var s flexString
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return string(s)
}

func encode(t MessageType, payload interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{Type: t, Payload: payload})
}
