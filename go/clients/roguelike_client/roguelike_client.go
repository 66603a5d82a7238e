package roguelike_client

import (
	"github.com/parthhay/deskroguelikeproto/go/clients"
)

// RoguelikeClient is the HTTP fallback transport of the game server.
type RoguelikeClient struct {
	*clients.BaseClient
}

// NewRoguelikeClient creates a client for the server at baseURL. clientID is
// sent with every request so server logs can be correlated with ours.
func NewRoguelikeClient(baseURL, clientID string) *RoguelikeClient {
	client := &RoguelikeClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if clientID != "" {
		client.SetHeader(ClientIDHeader, clientID)
	}

	return client
}
