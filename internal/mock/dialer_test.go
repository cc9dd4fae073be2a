package mock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/afk-console/backend/internal/session"
)

// listener records every signal as a string.
type listener struct {
	mu      sync.Mutex
	signals []string
}

func (l *listener) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, s)
}

func (l *listener) Established(id string) { l.add("established " + id) }
func (l *listener) Spawned()              { l.add("spawned") }
func (l *listener) Message(text string)   { l.add("message " + text) }
func (l *listener) Vitals(health float64, food int) {
	l.add(fmt.Sprintf("vitals %g %d", health, food))
}
func (l *listener) Lost(loss session.Loss) {
	l.add(fmt.Sprintf("lost %d %s", loss.Kind, loss.Reason))
}

func (l *listener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.signals...)
}

func waitSignals(t *testing.T, l *listener, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := l.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d signals, have %v", n, l.snapshot())
	return nil
}

// step advances the fake clock one tick once the ticker is waiting.
func step(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
}

func TestDialRefusesInvalidHost(t *testing.T) {
	d := &Dialer{Clock: clockwork.NewFakeClock()}
	_, err := d.Dial(session.Options{Host: "nowhere.invalid", Port: 25565, Username: "bot"}, &listener{})
	if err == nil {
		t.Fatal("Dial() to an .invalid host succeeded")
	}
}

func TestLoginThenSpawn(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &Dialer{Clock: clock}
	l := &listener{}
	conn, err := d.Dial(session.Options{Host: "localhost", Port: 25565, Username: "bot"}, l)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, ok := conn.Pose(); ok {
		t.Error("avatar exists before spawn")
	}
	if got := l.snapshot(); len(got) != 0 {
		t.Fatalf("Dial delivered signals synchronously: %v", got)
	}

	step(t, clock)
	waitSignals(t, l, 1)
	step(t, clock)
	got := waitSignals(t, l, 2)

	if got[0] != "established bot" || got[1] != "spawned" {
		t.Errorf("signals = %v", got)
	}
	if _, ok := conn.Pose(); !ok {
		t.Error("avatar missing after spawn")
	}
}

func TestKickPattern(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &Dialer{Clock: clock, Pattern: PatternKick, KickAfter: 3}
	l := &listener{}
	if _, err := d.Dial(session.Options{Host: "localhost", Username: "bot"}, l); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		step(t, clock)
		waitSignals(t, l, i+1)
	}
	got := l.snapshot()
	want := fmt.Sprintf("lost %d You have been idle for too long!", session.LossKicked)
	if got[2] != want {
		t.Errorf("third signal = %q, want %q", got[2], want)
	}
}

func TestClosedConnIsSilent(t *testing.T) {
	// A tick that is already due when Close runs must not be acted on.
	for i := 0; i < 100; i++ {
		clock := clockwork.NewFakeClock()
		d := &Dialer{Clock: clock, Pattern: PatternFlaky, KickAfter: 1}
		l := &listener{}
		conn, err := d.Dial(session.Options{Host: "localhost", Username: "bot"}, l)
		if err != nil {
			t.Fatal(err)
		}

		if err := conn.Close(); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Minute)
		time.Sleep(time.Millisecond)

		if got := l.snapshot(); len(got) != 0 {
			t.Fatalf("run %d: closed connection signalled %v", i, got)
		}
		if err := conn.Chat("hi"); err == nil {
			t.Fatal("Chat on a closed connection succeeded")
		}
	}
}

func TestCloseAfterLoginStopsSignals(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &Dialer{Clock: clock}
	l := &listener{}
	conn, err := d.Dial(session.Options{Host: "localhost", Username: "bot"}, l)
	if err != nil {
		t.Fatal(err)
	}
	step(t, clock)
	waitSignals(t, l, 1)

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(time.Second)
	}
	time.Sleep(50 * time.Millisecond)

	if got := l.snapshot(); len(got) != 1 {
		t.Errorf("signals after Close = %v", got[1:])
	}
}

func TestChatIsEchoed(t *testing.T) {
	d := &Dialer{Clock: clockwork.NewFakeClock()}
	l := &listener{}
	c, err := d.Dial(session.Options{Host: "localhost", Username: "bot"}, l)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Chat("hello"); err != nil {
		t.Fatal(err)
	}
	got := waitSignals(t, l, 1)
	if got[0] != "message <bot> hello" {
		t.Errorf("echo = %q", got[0])
	}
	if said := c.(*Conn).Said(); len(said) != 1 || said[0] != "hello" {
		t.Errorf("Said() = %v", said)
	}
}

func TestMockDrivesSession(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := session.NewStore(session.Config{
		Dialer:   &Dialer{Clock: clock},
		Clock:    clock,
		Defaults: session.Options{Host: "localhost", Username: "demo"},
	})
	s := store.GetOrCreate("demo")
	if err := s.Start(session.Overrides{}); err != nil {
		t.Fatal(err)
	}

	step(t, clock)
	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Status != session.StatusConnected {
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want Connected", s.Snapshot().Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}

func TestHungerDrainsAndEatingRefills(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := &Dialer{Clock: clock, HungerEvery: 1}
	l := &listener{}
	conn, err := d.Dial(session.Options{Host: "localhost", Username: "bot"}, l)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	for i := 0; i < 4; i++ {
		step(t, clock)
		waitSignals(t, l, i+1)
	}
	got := l.snapshot()
	if got[2] != "vitals 20 19" || got[3] != "vitals 20 18" {
		t.Errorf("signals = %v", got)
	}

	if err := conn.Eat(); err != nil {
		t.Fatal(err)
	}
	got = waitSignals(t, l, 5)
	if got[4] != "vitals 20 20" {
		t.Errorf("after eating = %q", got[4])
	}
	if m := conn.(*Conn).Meals(); m != 1 {
		t.Errorf("Meals() = %d, want 1", m)
	}
}

// capture remembers the last connection its Dialer handed out.
type capture struct {
	d    *Dialer
	mu   sync.Mutex
	last *Conn
}

func (c *capture) Dial(opts session.Options, l session.Listener) (session.Conn, error) {
	conn, err := c.d.Dial(opts, l)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.last = conn.(*Conn)
	c.mu.Unlock()
	return conn, nil
}

func (c *capture) conn() *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func TestSessionFeedsHungryMock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dialer := &capture{d: &Dialer{Clock: clock, HungerEvery: 1}}
	store := session.NewStore(session.Config{
		Dialer:   dialer,
		Clock:    clock,
		Defaults: session.Options{Host: "localhost", Username: "demo"},
	})
	s := store.GetOrCreate("demo")
	if err := s.Start(session.Overrides{}); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for dialer.conn().Meals() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("never ate, food = %d", dialer.conn().Food())
		}
		clock.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}
}
