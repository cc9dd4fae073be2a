package session

import (
	"fmt"
	"sync"

	"github.com/afk-console/backend/internal/eventlog"
	"github.com/jonboulle/clockwork"
)

// Session is the isolated state of one bot: what the user wants, the live
// connection if any, its timers, and its recent log. All fields below mu
// are guarded by it; every handler leaves them consistent before
// unlocking.
type Session struct {
	id    string
	cfg   *Config
	logID string

	mu        sync.Mutex
	desired   bool
	opts      Options
	link      *link
	reconnect clockwork.Timer
	// reconnectSeq invalidates a reconnect callback that already fired but
	// is still waiting for mu when its timer is cancelled.
	reconnectSeq uint64
	history      *eventlog.Log
}

// Snapshot is a consistent view of a session for observers.
type Snapshot struct {
	Status   Status
	Running  bool   // desired-running flag
	Identity string // empty until a connection is established
	Options  Options
	History  []string
}

func newSession(id string, cfg *Config, opts Options) *Session {
	s := &Session{
		id:    id,
		cfg:   cfg,
		logID: cfg.Privacy.LogID(id),
		opts:  opts,
	}
	s.history = eventlog.New(cfg.History, cfg.Clock.Now, s.emitLine)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Attach runs fn with a snapshot while the session is locked. No event can
// be published for this session while fn runs, so an observer subscribed
// inside fn sees the replayed history strictly before any live event.
func (s *Session) Attach(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.snapshotLocked())
}

// Connected reports whether the session currently owns a connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

// Logf appends a line to the session log and publishes it.
func (s *Session) Logf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logf(format, args...)
}

// Start records the user's intent to be connected, merges ov into the
// connect options and opens a connection. It returns ErrAlreadyRunning,
// and changes nothing, if a connection already exists.
func (s *Session) Start(ov Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link != nil {
		return ErrAlreadyRunning
	}
	s.opts = s.opts.Merge(ov)
	s.desired = true
	s.connectLocked()
	return nil
}

// Stop clears the desired-running flag, cancels any pending reconnect,
// quits and tears down the connection if there is one, and publishes
// StatusStopped regardless of the previous state.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.desired = false
	s.cancelReconnectLocked()
	if s.link != nil {
		s.link.conn.Quit()
		s.teardownLocked()
	}
	s.logf("Bot stopped by user.")
	s.publish(EventStatus, StatusStopped)
}

// Close is Stop for process shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.desired = false
	s.cancelReconnectLocked()
	if s.link == nil {
		return
	}
	s.link.conn.Quit()
	s.teardownLocked()
	s.logf("Server shutting down.")
	s.publish(EventStatus, StatusStopped)
}

// Chat sends text to the remote server and logs it as outbound. It
// returns ErrNotConnected when there is no connection.
func (s *Session) Chat(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.link == nil {
		return ErrNotConnected
	}
	if err := s.link.conn.Chat(text); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	s.logf("[YOU]: %s", text)
	return nil
}

// Options returns the current connect options.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Running: s.desired,
		Options: s.opts,
		History: s.history.Replay(),
	}
	switch {
	case s.link != nil && s.link.established:
		snap.Status = StatusConnected
		snap.Identity = s.link.identity
	case s.desired:
		snap.Status = StatusReconnecting
	default:
		snap.Status = StatusStopped
	}
	return snap
}

func (s *Session) logf(format string, args ...any) {
	s.history.Append(fmt.Sprintf(format, args...))
}

// emitLine is the history sink: it runs for every appended line, in order.
func (s *Session) emitLine(line string) {
	s.cfg.Logger.Info("session log", "session", s.logID, "line", line)
	s.cfg.Publisher.Publish(s.id, LogEvent(line))
}

func (s *Session) publish(t EventType, payload any) {
	s.cfg.Publisher.Publish(s.id, Event{Type: t, Payload: payload})
}
