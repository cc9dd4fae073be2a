package mc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"sync"

	"github.com/Tnze/go-mc/bot"
	"github.com/Tnze/go-mc/bot/basic"
	"github.com/Tnze/go-mc/bot/msg"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/Tnze/go-mc/net/queue"

	"github.com/afk-console/backend/internal/session"
)

// ErrNotJoined is returned by actions attempted before the login finished
// or after the connection was closed.
var ErrNotJoined = errors.New("not joined to a server")

// jumpHeight lifts the avatar while the jump control is held.
const jumpHeight = 1.25

// relative-position flags of ClientboundPlayerPosition.
const (
	relX     = 0x01
	relY     = 0x02
	relZ     = 0x04
	relYaw   = 0x08
	relPitch = 0x10
)

type position struct {
	x, y, z    float64
	yaw, pitch float64 // degrees, as on the wire
}

// writeQueueSize bounds the packets waiting for the socket. Writes never
// block; a full queue fails the write instead.
const writeQueueSize = 256

type conn struct {
	client   *bot.Client
	player   *basic.Player
	chat     *msg.Manager
	listener session.Listener
	logger   *slog.Logger
	cancel   context.CancelFunc

	mu         sync.Mutex
	joined     bool
	closed     bool
	placed     bool
	respawning bool
	pos        position
	useSeq     int32
	kick       string
	lost       sync.Once
}

func joinOptions(ctx context.Context) bot.JoinOptions {
	return bot.JoinOptions{
		Context:    ctx,
		QueueWrite: queue.NewChannelQueue[pk.Packet](writeQueueSize),
	}
}

func (c *conn) run(ctx context.Context, addr string) {
	err := c.client.JoinServerWithOptions(addr, joinOptions(ctx))
	if err == nil {
		c.mu.Lock()
		closed := c.closed
		c.joined = !closed
		c.mu.Unlock()
		if closed {
			_ = c.client.Close()
			return
		}
		c.logger.Debug("joined server")
		err = c.client.HandleGame()
	}
	c.report(err)
}

// report delivers the single Lost signal unless we closed the connection
// ourselves.
func (c *conn) report(err error) {
	c.mu.Lock()
	closed, kick := c.closed, c.kick
	c.joined = false
	c.mu.Unlock()
	if closed {
		return
	}
	c.lost.Do(func() {
		c.logger.Debug("connection lost", "error", err)
		c.listener.Lost(classify(err, kick))
	})
}

// classify maps the end of a game loop to a session loss.
func classify(err error, kickReason string) session.Loss {
	switch {
	case kickReason != "":
		return session.Kicked(kickReason)
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return session.Ended()
	default:
		return session.Failed(err)
	}
}

func (c *conn) onGameStart() error {
	c.listener.Established(c.client.Auth.Name)
	return nil
}

func (c *conn) onDisconnect(reason chat.Message) error {
	c.mu.Lock()
	c.kick = reason.ClearString()
	if c.kick == "" {
		c.kick = "disconnected by server"
	}
	c.mu.Unlock()
	return nil
}

func (c *conn) onMessage(m chat.Message) {
	if text := m.ClearString(); text != "" {
		c.listener.Message(text)
	}
}

func (c *conn) onHealth(health float32, food int32, _ float32) error {
	c.listener.Vitals(float64(health), int(food))
	return nil
}

func (c *conn) onDeath() error {
	c.mu.Lock()
	c.respawning = true
	c.mu.Unlock()
	c.logger.Debug("died, respawning")
	return c.player.Respawn()
}

// onTeleported tracks the server's authoritative position. The first one
// after login or respawn places the avatar.
func (c *conn) onTeleported(x, y, z float64, yaw, pitch float32, flags byte, teleportID int32) error {
	c.mu.Lock()
	c.pos = applyTeleport(c.pos, x, y, z, float64(yaw), float64(pitch), flags)
	spawned := !c.placed || c.respawning
	c.placed = true
	c.respawning = false
	c.mu.Unlock()

	if err := c.player.AcceptTeleportation(pk.VarInt(teleportID)); err != nil {
		return err
	}
	if spawned {
		c.listener.Spawned()
	}
	return nil
}

func applyTeleport(cur position, x, y, z, yaw, pitch float64, flags byte) position {
	next := position{x: x, y: y, z: z, yaw: yaw, pitch: pitch}
	if flags&relX != 0 {
		next.x += cur.x
	}
	if flags&relY != 0 {
		next.y += cur.y
	}
	if flags&relZ != 0 {
		next.z += cur.z
	}
	if flags&relYaw != 0 {
		next.yaw += cur.yaw
	}
	if flags&relPitch != 0 {
		next.pitch += cur.pitch
	}
	return next
}

func (c *conn) Pose() (session.Pose, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.placed {
		return session.Pose{}, false
	}
	return session.Pose{Yaw: degToRad(c.pos.yaw), Pitch: degToRad(c.pos.pitch)}, true
}

func (c *conn) Look(yaw, pitch float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	c.pos.yaw = radToDeg(yaw)
	c.pos.pitch = math.Max(-90, math.Min(90, radToDeg(pitch)))
	return c.client.Conn.WritePacket(pk.Marshal(
		packetid.ServerboundMovePlayerRot,
		pk.Float(c.pos.yaw),
		pk.Float(c.pos.pitch),
		pk.Boolean(true),
	))
}

func (c *conn) SetJump(held bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	y := c.pos.y
	if held {
		y += jumpHeight
	}
	return c.client.Conn.WritePacket(pk.Marshal(
		packetid.ServerboundMovePlayerPos,
		pk.Double(c.pos.x),
		pk.Double(y),
		pk.Double(c.pos.z),
		pk.Boolean(!held),
	))
}

func (c *conn) SwingArm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	return c.client.Conn.WritePacket(pk.Marshal(packetid.ServerboundSwing, pk.VarInt(0)))
}

func (c *conn) Chat(text string) error {
	c.mu.Lock()
	joined := c.joined
	c.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	return c.chat.SendMessage(text)
}

// Eat uses the item in the main hand. The server finishes eating on its
// own once the item is food.
func (c *conn) Eat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return ErrNotJoined
	}
	c.useSeq++
	return c.client.Conn.WritePacket(pk.Marshal(
		packetid.ServerboundUseItem,
		pk.VarInt(0), // main hand
		pk.VarInt(c.useSeq),
	))
}

// Quit closes the connection. The protocol has no client-side disconnect
// packet, so a graceful quit is a clean close.
func (c *conn) Quit() {
	_ = c.Close()
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	joined := c.joined
	c.joined = false
	c.mu.Unlock()
	c.cancel()

	if joined {
		return c.client.Close()
	}
	return nil
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }
