package roguelike_client

const (
	// API Endpoints
	ClaimEndpoint    = "/claim"
	StartEndpoint    = "/start"
	PlayCardEndpoint = "/play_card"
	StateEndpoint    = "/state"
	LobbyEndpoint    = "/lobby"

	// Query parameters
	PlayerIDParam = "player_id"

	// Headers
	ClientIDHeader = "X-Client-ID"
)
