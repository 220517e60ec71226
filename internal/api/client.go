package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	xrate "golang.org/x/time/rate"

	"tankwar/internal/game"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxFrameBytes = 8192
)

// Client is one game socket: a registered player identity, a bounded send
// queue drained by writePump, and a readPump dispatching inbound frames.
type Client struct {
	srv      *Server
	conn     *websocket.Conn
	ip       string
	playerID string
	name     string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// welcomed flips when the hub queues this socket's welcome packet.
	// Broadcast fan-out skips the socket until then.
	welcomed atomic.Bool

	inputLimiter *xrate.Limiter
	sendDropped  atomic.Uint64
	limitedInput atomic.Uint64
}

func newClient(srv *Server, conn *websocket.Conn, ip, playerID, name string) *Client {
	perSec := srv.limits.MaxInputsPerSecond
	return &Client{
		srv:          srv,
		conn:         conn,
		ip:           ip,
		playerID:     playerID,
		name:         name,
		send:         make(chan []byte, srv.limits.SendBufferPer),
		done:         make(chan struct{}),
		inputLimiter: xrate.NewLimiter(xrate.Limit(perSec), perSec),
	}
}

// queueFrame enqueues outbound bytes without blocking. False means the
// queue was full and the frame is lost to this client.
func (c *Client) queueFrame(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		if n := c.sendDropped.Add(1); n%256 == 1 {
			log.Printf("⚠️ Send queue full for %s, %d frames dropped so far", c.playerID, n)
		}
		return false
	}
}

// closeSend wakes writePump for teardown. Safe to call from any goroutine,
// any number of times. Hub tests build clients with no socket.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// writePump owns all writes on the socket, including pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound frames until the socket dies.
func (c *Client) readPump() {
	defer c.closeSend()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ Socket error for %s: %v", c.playerID, err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch routes one inbound frame to the room or the chat service.
// Malformed frames are dropped; the simulation validates semantics.
func (c *Client) dispatch(data []byte) {
	env, err := decodeFrame(data)
	if err != nil {
		return
	}
	IncrementWSMessages()

	switch env.E {
	case game.MsgInput:
		if !c.inputLimiter.Allow() {
			c.limitedInput.Add(1)
			return
		}
		var cmd game.InputCommand
		if json.Unmarshal(env.D, &cmd) != nil {
			return
		}
		c.srv.room.SubmitInput(c.playerID, cmd)

	case game.MsgFire:
		var f fireFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.Fire(c.playerID, f.Power, f.TurretAngle)

	case game.MsgChoosePortal:
		var f portalFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.ChoosePortal(c.playerID, f.Tile)

	case game.MsgProfile:
		var f profileFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.UpdateProfile(c.playerID, f.Badges, f.Title, f.TotalCrypto)

	case game.MsgChat:
		var f chatFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		if c.srv.chat != nil {
			c.srv.chat.Submit(c.playerID, f.Text, f.Mode)
		}

	case game.MsgFactionChange:
		var f factionFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.ChangeFaction(c.playerID, game.Faction(strings.ToLower(f.Faction)))

	case game.MsgCommanderPing:
		var f pingFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.CommanderPing(c.playerID, f.X, f.Y, f.Z)

	case game.MsgCommanderDraw:
		var f drawFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.CommanderDraw(c.playerID, f.Points, f.Done)

	case game.MsgTip:
		var f tipFrame
		if json.Unmarshal(env.D, &f) != nil {
			return
		}
		c.srv.room.Tip(c.playerID, f.ToID, f.Amount)

	default:
		RecordConnectionRejected("invalid")
	}
}

// resolveIdentity pulls the player identity from handshake query params. A
// missing or malformed id gets a generated one; the welcome packet tells
// the client what it was assigned.
func resolveIdentity(r *http.Request) (pid, name string, faction game.Faction) {
	q := r.URL.Query()

	pid = q.Get("pid")
	if !validPlayerID(pid) {
		pid = generatePlayerID()
	}

	name = strings.TrimSpace(q.Get("name"))
	if runes := []rune(name); len(runes) > 24 {
		name = string(runes[:24])
	}
	if name == "" {
		name = "Tank-" + pid[len(pid)-4:]
	}

	faction = game.Faction(strings.ToLower(strings.TrimSpace(q.Get("faction"))))
	return pid, name, faction
}

// validPlayerID accepts 1..32 chars of [A-Za-z0-9_-].
func validPlayerID(id string) bool {
	if len(id) == 0 || len(id) > 32 {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}

func generatePlayerID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "p-" + hex.EncodeToString([]byte(time.Now().Format("150405.000000")))[:16]
	}
	return "p-" + hex.EncodeToString(buf[:])
}
