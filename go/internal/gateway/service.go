package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Backend is the client service as seen by the gateway.
type Backend interface {
	ViewProvider
	GetStats() map[string]interface{}
}

// Config holds configuration for the view gateway
type Config struct {
	Addr             string
	ConnectionConfig ConnectionConfig
	ShutdownTimeout  time.Duration
}

// DefaultConfig returns default configuration for the view gateway
func DefaultConfig() Config {
	return Config{
		Addr:             ":8090",
		ConnectionConfig: DefaultConnectionConfig(),
		ShutdownTimeout:  5 * time.Second,
	}
}

// Service is the local HTTP/WebSocket surface for the presentation layer
type Service struct {
	config            Config
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	apiHandler        *APIHandler
	backend           Backend
}

// NewService creates a new view gateway. Its ConnectionManager must be
// registered as an observer of the reconciler; see Observer.
func NewService(config Config, commands Commands, backend Backend) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	return &Service{
		config:            config,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, backend),
		apiHandler:        NewAPIHandler(commands, backend),
		backend:           backend,
	}
}

// Observer returns the sink for views and notices.
func (s *Service) Observer() *ConnectionManager {
	return s.connectionManager
}

// RegisterRoutes registers the REST, WebSocket and health routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.apiHandler.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("/health", s.handleHealth)
	log.Info().Msg("view gateway routes registered")
}

// Handler returns the full handler: routes wrapped in CORS and served over
// cleartext HTTP/2.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// Start serves until ctx is done, then shuts the server down.
func (s *Service) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}

	go s.connectionManager.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.config.Addr).Msg("view gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("view gateway failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	log.Info().Msg("view gateway shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down view gateway: %w", err)
	}
	return nil
}

// GetStats returns statistics about the gateway and the client behind it
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	for k, v := range s.backend.GetStats() {
		stats[k] = v
	}
	stats["service"] = "view_gateway"
	return stats
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetStats())
}
