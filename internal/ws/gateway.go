package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/afk-console/backend/internal/eventlog"
	"github.com/afk-console/backend/internal/session"
)

const (
	msgAlreadyRunning = "Bot is already running. Stop it first."
	msgNotConnected   = "Bot is not connected."
	msgJoined         = "Web client joined session."
)

// Gateway turns browser commands into session operations.
type Gateway struct {
	store  *session.Store
	hub    *Hub
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewGateway returns a Gateway. The hub must be the store's Publisher.
func NewGateway(store *session.Store, hub *Hub, clock clockwork.Clock, logger *slog.Logger) *Gateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, hub: hub, clock: clock, logger: logger}
}

// Dispatch handles one inbound frame from c. It must only be called from
// c's read loop.
func (g *Gateway) Dispatch(c *client, data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		g.logger.Warn("ws malformed frame", "error", err)
		return
	}

	if msg.Type == MsgJoin {
		id := strings.TrimSpace(decodeString(msg.Payload))
		if id == "" {
			g.logger.Warn("ws join without session id")
			return
		}
		g.join(c, id)
		return
	}

	s := c.joined
	if s == nil {
		g.logger.Debug("ws command before join ignored", "type", msg.Type)
		return
	}

	switch msg.Type {
	case MsgStartBot:
		var p StartPayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				g.logger.Warn("ws malformed start payload", "error", err)
				return
			}
		}
		if err := s.Start(p.Overrides()); errors.Is(err, session.ErrAlreadyRunning) {
			g.tell(c, msgAlreadyRunning)
		}
	case MsgStopBot:
		s.Stop()
	case MsgSendChat:
		text := decodeString(msg.Payload)
		if strings.TrimSpace(text) == "" {
			return
		}
		switch err := s.Chat(text); {
		case errors.Is(err, session.ErrNotConnected):
			g.tell(c, msgNotConnected)
		case err != nil:
			g.tell(c, "Error: "+err.Error())
		}
	default:
		g.logger.Warn("ws unknown message type", "type", msg.Type)
	}
}

// join subscribes c to the session and replays its state to c alone. The
// session stays locked while c is subscribed and caught up, so c sees the
// history before any live event.
func (g *Gateway) join(c *client, id string) {
	s := g.store.GetOrCreate(id)
	c.joined = s

	s.Attach(func(snap session.Snapshot) {
		g.hub.Join(c, id)
		for _, line := range snap.History {
			g.hub.Send(c, MsgLog, line)
		}
		g.hub.Send(c, MsgStatus, snap.Status)
		if snap.Identity != "" {
			g.hub.Send(c, MsgBotInfo, session.BotInfo{Username: snap.Identity})
		}
		g.hub.Send(c, MsgConfig, snap.Options)
	})
	s.Logf(msgJoined)
}

// tell sends a stamped line to c only. It is not added to the session log.
func (g *Gateway) tell(c *client, msg string) {
	g.hub.Send(c, MsgLog, eventlog.Stamp(g.clock.Now(), msg))
}
