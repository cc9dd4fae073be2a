package session

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/afk-console/backend/internal/eventlog"
	"github.com/jonboulle/clockwork"
)

// Timing holds the supervisor's delays.
type Timing struct {
	ReconnectDelay time.Duration // wait between a lost connection and the next attempt
	IdleMin        time.Duration // shortest idle-activity interval (inclusive)
	IdleMax        time.Duration // longest idle-activity interval (exclusive)
	JumpHold       time.Duration // how long the jump control stays pressed
	EatCooldown    time.Duration // minimum gap between two attempts to eat
}

// DefaultTiming returns the stock delays.
func DefaultTiming() Timing {
	return Timing{
		ReconnectDelay: 5 * time.Second,
		IdleMin:        5 * time.Second,
		IdleMax:        10 * time.Second,
		JumpHold:       500 * time.Millisecond,
		EatCooldown:    3 * time.Second,
	}
}

// Config wires a Store to its collaborators. Zero fields get defaults in
// NewStore, except Dialer, which is required.
type Config struct {
	Dialer    Dialer
	Publisher Publisher
	Clock     clockwork.Clock
	Timing    Timing
	// Defaults seeds the options of every new session. An empty Username is
	// replaced by UsernamePrefix followed by a random number below 1000.
	Defaults       Options
	UsernamePrefix string
	History        int
	Logger         *slog.Logger
	Privacy        *PrivacyFilter
	// Rand returns uniformly distributed values in [0, 1). It must be safe
	// for concurrent use.
	Rand func() float64
}

// Store is the session registry. Sessions are created lazily on first
// reference and live for the lifetime of the process.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	cfg      *Config
}

// NewStore returns an empty registry.
func NewStore(cfg Config) *Store {
	if cfg.Publisher == nil {
		cfg.Publisher = discardPublisher{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Timing.EatCooldown <= 0 {
		cfg.Timing.EatCooldown = DefaultTiming().EatCooldown
	}
	if cfg.Defaults.Port == 0 {
		cfg.Defaults.Port = DefaultPort
	}
	if cfg.Defaults.Auth == "" {
		cfg.Defaults.Auth = AuthOffline
	}
	if cfg.History <= 0 {
		cfg.History = eventlog.DefaultCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Privacy == nil {
		cfg.Privacy = &PrivacyFilter{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	return &Store{
		sessions: make(map[string]*Session),
		cfg:      &cfg,
	}
}

// GetOrCreate returns the session for id, creating it with default options,
// no connection and an empty log on first use. Concurrent first calls for
// the same id observe the same instance.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := newSession(id, st.cfg, st.defaultOptions())
	st.sessions[id] = s
	return s
}

// Get returns an existing session without creating one.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// All returns every session ordered by id.
func (st *Store) All() []*Session {
	st.mu.Lock()
	result := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		result = append(result, s)
	}
	st.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].id < result[j].id })
	return result
}

// Len returns the number of sessions ever referenced.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// ActiveCount returns the number of sessions that currently own a
// connection.
func (st *Store) ActiveCount() int {
	count := 0
	for _, s := range st.All() {
		if s.Connected() {
			count++
		}
	}
	return count
}

// Shutdown closes every session's connection and cancels its timers.
func (st *Store) Shutdown() {
	for _, s := range st.All() {
		s.Close()
	}
}

func (st *Store) defaultOptions() Options {
	opts := st.cfg.Defaults
	if opts.Username == "" {
		opts.Username = st.cfg.UsernamePrefix + strconv.Itoa(int(st.cfg.Rand()*1000))
	}
	return opts
}
