package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// recorder is a Publisher that keeps every event per session.
type recorder struct {
	mu     sync.Mutex
	events map[string][]Event
}

func newRecorder() *recorder {
	return &recorder{events: make(map[string][]Event)}
}

func (r *recorder) Publish(id string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[id] = append(r.events[id], ev)
}

func (r *recorder) of(id string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events[id]...)
}

func (r *recorder) statuses(id string) []Status {
	var out []Status
	for _, ev := range r.of(id) {
		if ev.Type == EventStatus {
			out = append(out, ev.Payload.(Status))
		}
	}
	return out
}

func (r *recorder) lines(id string) []string {
	var out []string
	for _, ev := range r.of(id) {
		if ev.Type == EventLog {
			out = append(out, ev.Payload.(string))
		}
	}
	return out
}

// fakeConn records what the supervisor asked the connection to do.
type fakeConn struct {
	mu         sync.Mutex
	pose       Pose
	spawned    bool
	looks      []Pose
	jumps      []bool
	swings     int
	chats      []string
	chatErr    error
	releaseErr error // returned by every SetJump(false)
	meals      int
	quit       bool
	closed     int
}

func (c *fakeConn) Pose() (Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose, c.spawned
}

func (c *fakeConn) setSpawned(p Pose) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = p
	c.spawned = true
}

func (c *fakeConn) Look(yaw, pitch float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.looks = append(c.looks, Pose{Yaw: yaw, Pitch: pitch})
	return nil
}

func (c *fakeConn) SetJump(held bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jumps = append(c.jumps, held)
	if !held {
		return c.releaseErr
	}
	return nil
}

func (c *fakeConn) SwingArm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swings++
	return nil
}

func (c *fakeConn) Chat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatErr != nil {
		return c.chatErr
	}
	c.chats = append(c.chats, text)
	return nil
}

func (c *fakeConn) Eat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meals++
	return nil
}

func (c *fakeConn) eaten() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meals
}

func (c *fakeConn) Quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quit = true
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) counts() (looks int, jumps []bool, swings int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.looks), append([]bool(nil), c.jumps...), c.swings
}

type dial struct {
	opts     Options
	listener Listener
	conn     *fakeConn
}

// fakeDialer hands out fakeConns and remembers each attempt.
type fakeDialer struct {
	mu    sync.Mutex
	dials []dial
	// failures is consumed one error per Dial before any dial succeeds.
	failures []error
}

func (d *fakeDialer) Dial(opts Options, l Listener) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		d.dials = append(d.dials, dial{opts: opts, listener: l})
		return nil, err
	}
	c := &fakeConn{}
	d.dials = append(d.dials, dial{opts: opts, listener: l, conn: c})
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) last() dial {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[len(d.dials)-1]
}

// scriptedRand replays values in order and then repeats the last one.
type scriptedRand struct {
	mu     sync.Mutex
	values []float64
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return 0
	}
	v := r.values[0]
	if len(r.values) > 1 {
		r.values = r.values[1:]
	}
	return v
}

func (r *scriptedRand) push(values ...float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, values...)
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	store  *Store
	dialer *fakeDialer
	pub    *recorder
	clock  *clockwork.FakeClock
	rand   *scriptedRand
	logs   *syncBuffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		pub:    newRecorder(),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 9, 30, 0, 0, time.Local)),
		rand:   &scriptedRand{values: []float64{0}},
		logs:   &syncBuffer{},
	}
	h.store = NewStore(Config{
		Dialer:    h.dialer,
		Publisher: h.pub,
		Clock:     h.clock,
		Defaults:  Options{Host: "localhost", Username: "tester"},
		Logger:    slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Rand:      h.rand.Float64,
	})
	return h
}

// waitTimers blocks until the fake clock has n pending timers.
func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("waiting for %d pending timers: %v", n, err)
	}
}

// waitFor polls cond until it holds or the deadline passes. Timer callbacks
// of the fake clock run on their own goroutines.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives stray timer goroutines a chance to run before asserting
// that nothing happened.
func settle() {
	time.Sleep(50 * time.Millisecond)
}

var errRefused = errors.New("connection refused")
