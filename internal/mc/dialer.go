// Package mc connects sessions to real game servers through go-mc.
package mc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/basic"
	"github.com/Tnze/go-mc/bot/msg"
	"github.com/Tnze/go-mc/bot/playerlist"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/offline"

	"github.com/afk-console/backend/internal/session"
)

// SupportedVersion is the only protocol version the client library speaks.
const SupportedVersion = "1.20.2"

// Dialer opens go-mc client connections. Only offline authentication is
// supported.
type Dialer struct {
	Logger *slog.Logger
}

// Dial prepares a client and starts joining in the background. Errors
// returned here are configuration problems; network failures are reported
// through l.Lost.
func (d *Dialer) Dial(opts session.Options, l session.Listener) (session.Conn, error) {
	if v := strings.TrimSpace(opts.Version); v != "" && v != SupportedVersion {
		return nil, fmt.Errorf("unsupported game version %s (want %s)", v, SupportedVersion)
	}
	if opts.Auth != "" && opts.Auth != session.AuthOffline {
		return nil, fmt.Errorf("unsupported auth mode %q", opts.Auth)
	}
	if opts.Username == "" {
		return nil, fmt.Errorf("username is required")
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := bot.NewClient()
	client.Auth.Name = opts.Username
	client.Auth.UUID = offline.NameToUUID(opts.Username).String()

	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		client:   client,
		listener: l,
		logger:   logger.With("addr", opts.Addr(), "username", opts.Username),
		cancel:   cancel,
	}
	c.player = basic.NewPlayer(client, basic.DefaultSettings, basic.EventsListener{
		GameStart:    c.onGameStart,
		Disconnect:   c.onDisconnect,
		HealthChange: c.onHealth,
		Death:        c.onDeath,
		Teleported:   c.onTeleported,
	})
	c.chat = msg.New(client, c.player, playerlist.New(client), msg.EventsHandler{
		SystemChat: func(m chat.Message, overlay bool) error {
			if !overlay {
				c.onMessage(m)
			}
			return nil
		},
		PlayerChatMessage: func(m chat.Message, _ bool) error {
			c.onMessage(m)
			return nil
		},
		DisguisedChat: func(m chat.Message) error {
			c.onMessage(m)
			return nil
		},
	})

	go c.run(ctx, opts.Addr())
	return c, nil
}
