// Package mock provides a simulated game server for demos and UI work. It
// implements session.Dialer without touching the network.
package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/afk-console/backend/internal/session"
)

// Patterns shape how a simulated connection behaves over time.
const (
	PatternSteady = "steady" // stays online and chats
	PatternKick   = "kick"   // is kicked for idling after KickAfter ticks
	PatternFlaky  = "flaky"  // drops with a transport error after KickAfter ticks
)

// Dialer hands out simulated connections. Hosts ending in ".invalid" are
// refused at dial time.
type Dialer struct {
	Clock clockwork.Clock
	// Tick is the pace of the simulation. Zero means one second.
	Tick time.Duration
	// Pattern selects the behaviour of every connection. Empty means
	// PatternSteady.
	Pattern string
	// KickAfter is the tick on which kick and flaky connections end. Zero
	// means 30.
	KickAfter int
	// HungerEvery is how many ticks the avatar takes to lose one food
	// point once spawned. Zero means 10.
	HungerEvery int
}

const fullFood = 20

var serverChat = []string{
	"<Alex> anyone selling diamonds?",
	"[Server] Restart scheduled in 2 hours.",
	"<Steve> brb",
	"<Notch> hello world",
	"[Server] Remember to vote for the server!",
	"<Herobrine> ...",
}

// Dial starts a simulated connection for opts.
func (d *Dialer) Dial(opts session.Options, l session.Listener) (session.Conn, error) {
	if strings.HasSuffix(opts.Host, ".invalid") {
		return nil, fmt.Errorf("dial tcp %s: connection refused", opts.Addr())
	}

	clock := d.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tick := d.Tick
	if tick <= 0 {
		tick = time.Second
	}
	kickAfter := d.KickAfter
	if kickAfter <= 0 {
		kickAfter = 30
	}
	hungerEvery := d.HungerEvery
	if hungerEvery <= 0 {
		hungerEvery = 10
	}
	pattern := d.Pattern
	if pattern == "" {
		pattern = PatternSteady
	}

	c := &Conn{
		username:  opts.Username,
		listener:  l,
		pattern:   pattern,
		kickAfter:   kickAfter,
		hungerEvery: hungerEvery,
		food:        fullFood,
		done:        make(chan struct{}),
	}
	ticker := clock.NewTicker(tick)
	go c.run(ticker)
	return c, nil
}

// Conn is a simulated connection. It records the actions the session asks
// for so demos and tests can inspect them.
type Conn struct {
	username    string
	listener    session.Listener
	pattern     string
	kickAfter   int
	hungerEvery int

	mu      sync.Mutex
	placed  bool
	pose    session.Pose
	jumping bool
	swings  int
	said    []string
	food    int
	meals   int
	closed  bool
	done    chan struct{}
}

func (c *Conn) run(ticker clockwork.Ticker) {
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-c.done:
			return
		case <-ticker.Chan():
			select {
			case <-c.done:
				return
			default:
			}
			tick++
			if !c.advance(tick) {
				return
			}
		}
	}
}

// advance runs one simulation step and reports whether the connection is
// still alive. A closed connection never signals.
func (c *Conn) advance(tick int) bool {
	if c.isClosed() {
		return false
	}
	switch {
	case tick == 1:
		c.listener.Established(c.username)
		return true
	case tick == 2:
		c.mu.Lock()
		c.placed = true
		c.mu.Unlock()
		c.listener.Spawned()
		return true
	}

	if tick >= c.kickAfter {
		switch c.pattern {
		case PatternKick:
			c.end(session.Kicked("You have been idle for too long!"))
			return false
		case PatternFlaky:
			c.end(session.Failed(fmt.Errorf("read tcp: connection reset by peer")))
			return false
		}
	}

	if (tick-2)%c.hungerEvery == 0 {
		c.mu.Lock()
		if c.food > 0 {
			c.food--
		}
		food := c.food
		c.mu.Unlock()
		c.listener.Vitals(fullFood, food)
	}
	if tick%5 == 0 {
		c.listener.Message(serverChat[(tick/5-1)%len(serverChat)])
	}
	return true
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) end(loss session.Loss) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.listener.Lost(loss)
}

func (c *Conn) Pose() (session.Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose, c.placed
}

func (c *Conn) Look(yaw, pitch float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = session.Pose{Yaw: yaw, Pitch: pitch}
	return nil
}

func (c *Conn) SetJump(held bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jumping = held
	return nil
}

func (c *Conn) SwingArm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swings++
	return nil
}

// Chat echoes text back as if the server relayed it.
func (c *Conn) Chat(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.ErrNotConnected
	}
	c.said = append(c.said, text)
	c.mu.Unlock()
	go c.listener.Message(fmt.Sprintf("<%s> %s", c.username, text))
	return nil
}

// Eat refills the food bar at once and reports the new vitals.
func (c *Conn) Eat() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return session.ErrNotConnected
	}
	c.food = fullFood
	c.meals++
	c.mu.Unlock()
	go c.listener.Vitals(fullFood, fullFood)
	return nil
}

func (c *Conn) Quit() { _ = c.Close() }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// Said returns the chat lines sent through this connection.
func (c *Conn) Said() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.said...)
}

// Jumping reports whether the jump control is held.
func (c *Conn) Jumping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jumping
}

// Swings returns how many times the arm was swung.
func (c *Conn) Swings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.swings
}

// Meals returns how many times the avatar ate.
func (c *Conn) Meals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meals
}

// Food returns the current food level.
func (c *Conn) Food() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.food
}
