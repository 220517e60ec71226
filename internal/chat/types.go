// Package chat routes player chat between lobby, proximity and global
// channels and hosts Tusk, the server announcer.
package chat

import (
	"strings"

	"tankwar/internal/game"
)

// Mode selects who hears a message.
type Mode string

const (
	// ModeLobby reaches the sender's whole faction, deployed or waiting.
	ModeLobby Mode = "lobby"
	// ModeProximity reaches tanks within earshot on the planet surface.
	ModeProximity Mode = "proximity"
	// ModeGlobal reaches every connected player.
	ModeGlobal Mode = "global"
)

// ParseMode normalizes a client-supplied mode string. Unknown or empty
// strings fall back to lobby, the least noisy channel.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeProximity:
		return ModeProximity
	case ModeGlobal:
		return ModeGlobal
	default:
		return ModeLobby
	}
}

// Message is the chat-message payload fanned out to recipients.
type Message struct {
	FromID  string       `json:"fromId"`
	Name    string       `json:"name"`
	Faction game.Faction `json:"faction"`
	Mode    Mode         `json:"mode"`
	Text    string       `json:"text"`
}

// TuskMessage is a server-authored tusk-chat line.
type TuskMessage struct {
	Kind string `json:"kind"` // capture, commander
	Text string `json:"text"`
}

// MaxTextLen is the rune limit on a single chat line.
const MaxTextLen = 256

// Sanitize trims, strips control characters and clamps a chat line. Returns
// the empty string when nothing printable remains.
func Sanitize(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	n := 0
	for _, r := range text {
		if r < 0x20 || r == 0x7f {
			r = ' '
		}
		b.WriteRune(r)
		n++
		if n >= MaxTextLen {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
