// Package api is the transport edge of the server: the websocket game
// protocol, the admin REST surface and the debug/metrics listener.
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"tankwar/internal/game"
	"tankwar/internal/world"
)

// Envelope is the wire frame both directions: a short event name and a
// JSON payload.
type Envelope struct {
	E string          `json:"e"`
	D json.RawMessage `json:"d,omitempty"`
}

// encodeFrame marshals an outbound event.
func encodeFrame(event string, payload interface{}) ([]byte, error) {
	var d json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		d = raw
	}
	return json.Marshal(Envelope{E: event, D: d})
}

// decodeFrame parses an inbound frame.
func decodeFrame(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.E == "" {
		return Envelope{}, fmt.Errorf("frame missing event name")
	}
	return env, nil
}

// Client to server payloads. Key names are fixed by the client protocol.

type fireFrame struct {
	Power       float64 `json:"power"`
	TurretAngle float64 `json:"turretAngle"`
}

type portalFrame struct {
	Tile int `json:"tileIndex"`
}

type profileFrame struct {
	Badges      []string `json:"badges"`
	TotalCrypto int64    `json:"totalCrypto"`
	Title       string   `json:"title"`
}

type chatFrame struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type factionFrame struct {
	Faction string `json:"faction"`
}

type pingFrame struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type drawFrame struct {
	Points [][3]float64 `json:"points"`
	Done   bool         `json:"done"`
}

type tipFrame struct {
	ToID   string `json:"toId"`
	Amount int64  `json:"amount"`
}

// welcomeWire is the welcome packet as actually sent: the world description
// rides as an lz4-compressed base64 blob instead of plain JSON. At the
// default subdivision the description is a few hundred KB of tile indices;
// compressed it is a fraction of that. The shadow field drops the embedded
// plain world from the encoding.
type welcomeWire struct {
	game.WelcomePacket
	World    interface{} `json:"world,omitempty"`
	WorldLZ4 string      `json:"worldLz4"`
}

// wireWelcome compresses the world description inside a welcome packet.
func wireWelcome(wp game.WelcomePacket) (welcomeWire, error) {
	raw, err := json.Marshal(wp.World)
	if err != nil {
		return welcomeWire{}, fmt.Errorf("marshal world description: %w", err)
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return welcomeWire{}, fmt.Errorf("compress world description: %w", err)
	}
	if err := zw.Close(); err != nil {
		return welcomeWire{}, fmt.Errorf("compress world description: %w", err)
	}
	return welcomeWire{
		WelcomePacket: wp,
		WorldLZ4:      base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// decodeWorldLZ4 reverses wireWelcome's world encoding. Clients do the same.
func decodeWorldLZ4(blob string) (*world.Description, error) {
	packed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("decode world blob: %w", err)
	}
	zr := lz4.NewReader(bytes.NewReader(packed))
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress world blob: %w", err)
	}
	var desc world.Description
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("unmarshal world description: %w", err)
	}
	return &desc, nil
}
