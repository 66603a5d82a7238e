package roguelike_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parthhay/deskroguelikeproto/go/clients"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *RoguelikeClient {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewRoguelikeClient(ts.URL, "client-1")
}

func TestClaim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ClaimEndpoint, func(w http.ResponseWriter, r *http.Request) {
		var req ClaimRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Ada", req.Name)
		assert.Equal(t, "client-1", r.Header.Get(ClientIDHeader))
		_, _ = w.Write([]byte(`{"player_id":2,"token":"t2","hand":["Strike"]}`))
	})
	c := newTestServer(t, mux)

	res, err := c.Claim(context.Background(), "Ada")
	require.NoError(t, err)
	assert.Equal(t, 2, res.PlayerID)
	assert.Equal(t, "t2", res.Token)
	assert.Equal(t, []string{"Strike"}, res.Hand)
}

func TestClaim_MissingIdentity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ClaimEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	c := newTestServer(t, mux)

	_, err := c.Claim(context.Background(), "Ada")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestClaim_ErrorCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ClaimEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"lobby_full"}`))
	})
	c := newTestServer(t, mux)

	_, err := c.Claim(context.Background(), "Ada")
	code, ok := clients.ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, "lobby_full", code)
}

func TestState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(StateEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "3", r.URL.Query().Get(PlayerIDParam))
		_, _ = w.Write([]byte(`{"ver":12,"turn_player":3,"enemies":[{"id":7,"name":"Rat","hp":2,"max_hp":4}],"your_hand":["Zap"]}`))
	})
	c := newTestServer(t, mux)

	snap, err := c.State(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), snap.Version())
	assert.Equal(t, 3, snap.TurnPlayer)
	assert.Equal(t, []string{"Zap"}, snap.YourHand)
}

func TestState_EmptyBodyIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(StateEndpoint, func(w http.ResponseWriter, r *http.Request) {})
	c := newTestServer(t, mux)

	_, err := c.State(context.Background(), 0)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestStartAndPlayCard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(StartEndpoint, func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0, req.PlayerID)
	})
	mux.HandleFunc(PlayCardEndpoint, func(w http.ResponseWriter, r *http.Request) {
		var req PlayCardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, PlayCardRequest{PlayerID: 1, Token: "t", Card: "Strike", Target: "enemy_7"}, req)
		_, _ = w.Write([]byte(`{"ver":4,"turn_player":2}`))
	})
	c := newTestServer(t, mux)

	snap, err := c.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, snap, "bodiless start response")

	snap, err = c.PlayCard(context.Background(), PlayCardRequest{PlayerID: 1, Token: "t", Card: "Strike", Target: "enemy_7"})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(4), snap.Version())
}

func TestLobby(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(LobbyEndpoint, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"slots":{"1":{"occupied":true,"name":"Ada"},"2":{"occupied":false,"name":""},"3":{"occupied":false,"name":""}}}`))
	})
	c := newTestServer(t, mux)

	lobby, err := c.Lobby(context.Background())
	require.NoError(t, err)
	require.Len(t, lobby.Slots, 3)
	assert.Equal(t, LobbySlot{Occupied: true, Name: "Ada"}, lobby.Slots["1"])
}
