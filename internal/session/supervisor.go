package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// link is the session's view of one connection attempt. It is the
// Listener handed to the Dialer, so every signal can be checked against
// the session's current link: once a link is torn down its signals are
// ignored.
type link struct {
	s           *Session
	conn        Conn
	established bool
	identity    string

	idle    clockwork.Timer
	idleSeq uint64
	jump    clockwork.Timer
	jumpSeq uint64

	food   int
	eating clockwork.Timer
	eatSeq uint64
}

// connectLocked opens a new connection with the current options. A
// synchronous Dial failure takes the same path as a lost connection.
func (s *Session) connectLocked() {
	if s.link != nil {
		s.logf("Bot is already running.")
		return
	}
	s.cancelReconnectLocked()

	opts := s.opts
	s.logf("Connecting to %s:%d as %s...", opts.Host, opts.Port, opts.Username)

	l := &link{s: s}
	conn, err := s.cfg.Dialer.Dial(opts, l)
	if err != nil {
		s.logf("Failed to create bot: %v", err)
		s.scheduleReconnectLocked()
		return
	}
	l.conn = conn
	s.link = l
}

// teardownLocked stops the idle loop, closes the connection and forgets it.
func (s *Session) teardownLocked() {
	l := s.link
	if l == nil {
		return
	}
	s.link = nil
	s.stopIdleLocked(l)
	s.stopEatingLocked(l)
	if err := l.conn.Close(); err != nil {
		s.cfg.Logger.Debug("closing connection", "session", s.logID, "error", err)
	}
}

// scheduleReconnectLocked arms the single reconnect timer if the user still
// wants the bot running, replacing any timer already pending.
func (s *Session) scheduleReconnectLocked() {
	if !s.desired {
		return
	}
	delay := s.cfg.Timing.ReconnectDelay
	s.logf("Reconnecting in %s...", describeDelay(delay))
	s.publish(EventStatus, StatusReconnecting)

	s.cancelReconnectLocked()
	seq := s.reconnectSeq
	s.reconnect = s.cfg.Clock.AfterFunc(delay, func() { s.reconnectFired(seq) })
}

func (s *Session) cancelReconnectLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.reconnectSeq++
}

func (s *Session) reconnectFired(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.reconnectSeq || s.reconnect == nil {
		return
	}
	s.reconnect = nil
	if !s.desired {
		return
	}
	s.connectLocked()
}

// current locks the session and reports whether l is still its live link.
// The caller must unlock when ok is true.
func (l *link) current() bool {
	l.s.mu.Lock()
	if l.s.link != l {
		l.s.mu.Unlock()
		return false
	}
	return true
}

func (l *link) Established(identity string) {
	if !l.current() {
		return
	}
	s := l.s
	defer s.mu.Unlock()

	l.established = true
	l.identity = identity
	s.logf("Bot logged in!")
	s.publish(EventStatus, StatusConnected)
	s.publish(EventBotInfo, BotInfo{Username: identity})
}

func (l *link) Spawned() {
	if !l.current() {
		return
	}
	s := l.s
	defer s.mu.Unlock()

	s.logf("Bot spawned. Starting AFK routine.")
	s.startIdleLocked(l)
}

func (l *link) Message(text string) {
	if !l.current() {
		return
	}
	s := l.s
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return
	}
	s.logf("[CHAT] %s", text)
}

func (l *link) Lost(cause Loss) {
	if !l.current() {
		return
	}
	s := l.s
	defer s.mu.Unlock()

	switch cause.Kind {
	case LossKicked:
		s.logf("Kicked: %s", cause.Reason)
	case LossError:
		s.logf("Error: %v", cause.Err)
	default:
		s.logf("Bot disconnected.")
		s.publish(EventStatus, StatusDisconnected)
	}
	s.teardownLocked()
	s.scheduleReconnectLocked()
}

func describeDelay(d time.Duration) string {
	if d >= time.Second && d%time.Second == 0 {
		n := int(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
