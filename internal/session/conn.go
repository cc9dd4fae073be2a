package session

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the session already owns a
	// connection.
	ErrAlreadyRunning = errors.New("bot is already running")
	// ErrNotConnected is returned by Chat when there is no connection.
	ErrNotConnected = errors.New("bot is not connected")
)

// Dialer opens connections to the remote server. Dial must not block on
// the network and must not invoke l before it returns; every lifecycle
// signal is delivered later, from another goroutine.
type Dialer interface {
	Dial(opts Options, l Listener) (Conn, error)
}

// Conn is one live remote connection. Its methods are called with the
// owning session locked, so they must never call the Listener
// synchronously.
type Conn interface {
	// Pose reports the avatar's look direction. ok is false until the
	// avatar exists in the world.
	Pose() (pose Pose, ok bool)
	// Look turns the avatar and commits the rotation immediately.
	Look(yaw, pitch float64) error
	// SetJump presses or releases the jump control.
	SetJump(held bool) error
	// SwingArm plays the attack animation once.
	SwingArm() error
	// Chat sends text to the server verbatim.
	Chat(text string) error
	// Eat starts using the held item.
	Eat() error
	// Quit asks the server for a graceful disconnect.
	Quit()
	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Pose is an avatar look direction in radians.
type Pose struct {
	Yaw   float64
	Pitch float64
}

// Listener receives the normalised lifecycle signals of one connection.
type Listener interface {
	// Established fires once the server accepted the login.
	Established(identity string)
	// Spawned fires when the avatar is placed in the world.
	Spawned()
	// Message delivers an inbound chat or system line.
	Message(text string)
	// Vitals reports the avatar's health and food level (0 to 20) whenever
	// either changes.
	Vitals(health float64, food int)
	// Lost fires when the connection ends for any reason.
	Lost(cause Loss)
}

// LossKind classifies why a connection ended.
type LossKind int

const (
	LossEnded  LossKind = iota // closed without an error
	LossKicked                 // the server disconnected us with a reason
	LossError                  // transport or protocol failure
)

// Loss describes the end of a connection.
type Loss struct {
	Kind   LossKind
	Reason string
	Err    error
}

// Ended reports a clean close.
func Ended() Loss { return Loss{Kind: LossEnded} }

// Kicked reports a server-side disconnect.
func Kicked(reason string) Loss { return Loss{Kind: LossKicked, Reason: reason} }

// Failed reports an error.
func Failed(err error) Loss { return Loss{Kind: LossError, Err: err} }
