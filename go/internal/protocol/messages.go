package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType is the discriminator carried by every push-channel frame.
type MessageType string

const (
	// Client -> server
	MessageTypeClaim    MessageType = "claim"
	MessageTypeStart    MessageType = "start"
	MessageTypePlayCard MessageType = "play_card"

	// Server -> client
	MessageTypeWelcome MessageType = "welcome"
	MessageTypeClaimOK MessageType = "claim_ok"
	MessageTypeState   MessageType = "state"
	MessageTypeError   MessageType = "error"
)

const (
	// MaxNameLength is the longest display name the server accepts, in runes.
	MaxNameLength = 20
	// DefaultPlayerName replaces a blank display name.
	DefaultPlayerName = "Player"
)

// ClaimMessage asks the server for a seat.
type ClaimMessage struct {
	Type MessageType `json:"type"`
	Name string      `json:"name"`
}

// NewClaimMessage builds a claim frame with a normalized name.
func NewClaimMessage(name string) ClaimMessage {
	return ClaimMessage{Type: MessageTypeClaim, Name: NormalizeName(name)}
}

// StartMessage starts (or restarts) a run.
type StartMessage struct {
	Type MessageType `json:"type"`
}

// NewStartMessage builds a start frame.
func NewStartMessage() StartMessage {
	return StartMessage{Type: MessageTypeStart}
}

// PlayCardMessage plays one card from the player's hand.
type PlayCardMessage struct {
	Type     MessageType `json:"type"`
	PlayerID int         `json:"player_id"`
	Token    string      `json:"token"`
	Card     string      `json:"card"`
	Target   string      `json:"target"`
}

// NewPlayCardMessage builds a play_card frame.
func NewPlayCardMessage(playerID int, token, card, target string) PlayCardMessage {
	return PlayCardMessage{
		Type:     MessageTypePlayCard,
		PlayerID: playerID,
		Token:    token,
		Card:     card,
		Target:   target,
	}
}

// ClaimResult is the body of both a claim_ok frame and a POST /claim response.
type ClaimResult struct {
	PlayerID int      `json:"player_id"`
	Token    string   `json:"token"`
	Hand     []string `json:"hand"`
}

// ServerMessage is a decoded server -> client frame. The payload field that
// matches Type is set; the others are zero.
type ServerMessage struct {
	Type      MessageType
	Claim     *ClaimResult
	State     *Snapshot
	ErrorCode string
}

// DecodeServerMessage decodes one push-channel frame. Any frame that cannot be
// routed is reported as ErrMalformedMessage.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var envelope struct {
		Type MessageType `json:"type"`
		Code string      `json:"code"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := ServerMessage{Type: envelope.Type}
	switch envelope.Type {
	case MessageTypeWelcome:
		return msg, nil

	case MessageTypeClaimOK:
		var claim ClaimResult
		if err := json.Unmarshal(data, &claim); err != nil {
			return ServerMessage{}, fmt.Errorf("%w: claim_ok: %v", ErrMalformedMessage, err)
		}
		if claim.PlayerID == 0 || claim.Token == "" {
			return ServerMessage{}, fmt.Errorf("%w: claim_ok without identity", ErrMalformedMessage)
		}
		msg.Claim = &claim
		return msg, nil

	case MessageTypeState:
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return ServerMessage{}, fmt.Errorf("%w: state: %v", ErrMalformedMessage, err)
		}
		msg.State = &snap
		return msg, nil

	case MessageTypeError:
		msg.ErrorCode = envelope.Code
		return msg, nil

	case "":
		return ServerMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)

	default:
		return ServerMessage{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, envelope.Type)
	}
}

// NormalizeName trims the display name, substitutes DefaultPlayerName when it
// is blank and truncates it to MaxNameLength runes.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultPlayerName
	}
	runes := []rune(name)
	if len(runes) > MaxNameLength {
		return string(runes[:MaxNameLength])
	}
	return name
}
