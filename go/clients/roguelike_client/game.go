package roguelike_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
)

// ErrEmptyResponse is returned when an endpoint that must return a body
// returned an empty object.
var ErrEmptyResponse = errors.New("empty response")

type ClaimRequest struct {
	Name string `json:"name"`
}

type StartRequest struct {
	PlayerID int `json:"player_id"`
}

type PlayCardRequest struct {
	PlayerID int    `json:"player_id"`
	Token    string `json:"token"`
	Card     string `json:"card"`
	Target   string `json:"target"`
}

// LobbySlot is one seat in the lobby.
type LobbySlot struct {
	Occupied bool   `json:"occupied"`
	Name     string `json:"name"`
}

// Lobby lists seats keyed by seat number ("1", "2", "3").
type Lobby struct {
	Slots map[string]LobbySlot `json:"slots"`
}

// Claim asks for a seat. name must already be normalized.
func (c *RoguelikeClient) Claim(ctx context.Context, name string) (protocol.ClaimResult, error) {
	body, err := c.Post(ctx, ClaimEndpoint, ClaimRequest{Name: name})
	if err != nil {
		return protocol.ClaimResult{}, fmt.Errorf("failed to claim seat: %w", err)
	}

	var result protocol.ClaimResult
	if err := json.Unmarshal(body, &result); err != nil {
		return protocol.ClaimResult{}, fmt.Errorf("failed to unmarshal claim response: %w", err)
	}
	if result.PlayerID == 0 || result.Token == "" {
		return protocol.ClaimResult{}, fmt.Errorf("claim response without identity: %w", ErrEmptyResponse)
	}

	return result, nil
}

// Start starts a run. The returned snapshot is nil when the server answered
// without a body.
func (c *RoguelikeClient) Start(ctx context.Context, playerID int) (*protocol.Snapshot, error) {
	body, err := c.Post(ctx, StartEndpoint, StartRequest{PlayerID: playerID})
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return decodeSnapshot(body)
}

// PlayCard plays a card. The returned snapshot is nil when the server
// answered without a body.
func (c *RoguelikeClient) PlayCard(ctx context.Context, req PlayCardRequest) (*protocol.Snapshot, error) {
	body, err := c.Post(ctx, PlayCardEndpoint, req)
	if err != nil {
		return nil, fmt.Errorf("failed to play card: %w", err)
	}
	return decodeSnapshot(body)
}

// State fetches the current snapshot as seen by playerID (0 when not joined).
func (c *RoguelikeClient) State(ctx context.Context, playerID int) (protocol.Snapshot, error) {
	query := url.Values{}
	query.Set(PlayerIDParam, strconv.Itoa(playerID))

	body, err := c.Get(ctx, StateEndpoint+"?"+query.Encode())
	if err != nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to get state: %w", err)
	}

	snap, err := decodeSnapshot(body)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	if snap == nil {
		return protocol.Snapshot{}, fmt.Errorf("failed to get state: %w", ErrEmptyResponse)
	}
	return *snap, nil
}

// Lobby lists the seats and who holds them.
func (c *RoguelikeClient) Lobby(ctx context.Context) (Lobby, error) {
	body, err := c.Get(ctx, LobbyEndpoint)
	if err != nil {
		return Lobby{}, fmt.Errorf("failed to get lobby: %w", err)
	}

	var lobby Lobby
	if err := json.Unmarshal(body, &lobby); err != nil {
		return Lobby{}, fmt.Errorf("failed to unmarshal lobby: %w, raw response: %s", err, string(body))
	}
	if lobby.Slots == nil {
		lobby.Slots = map[string]LobbySlot{}
	}
	return lobby, nil
}

func decodeSnapshot(body json.RawMessage) (*protocol.Snapshot, error) {
	if bytes.Equal(bytes.TrimSpace(body), []byte(`{}`)) {
		return nil, nil
	}

	var snap protocol.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w, raw response: %s", err, string(body))
	}
	return &snap, nil
}
