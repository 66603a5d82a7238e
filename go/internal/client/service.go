package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/parthhay/deskroguelikeproto/go/clients/roguelike_client"
	"github.com/parthhay/deskroguelikeproto/go/internal/dispatch"
	"github.com/parthhay/deskroguelikeproto/go/internal/poller"
	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
	"github.com/parthhay/deskroguelikeproto/go/internal/transport"
)

// Config holds configuration for the client service.
type Config struct {
	// ServerURL is the HTTP root of the game server.
	ServerURL string
	// PushURL is the game server's WebSocket endpoint.
	PushURL string
	// ClientID identifies this client in server logs. Generated when empty.
	ClientID string
	// RequestTimeout bounds each fallback request. Zero means no bound.
	RequestTimeout time.Duration

	ReconnectDelay time.Duration
	Poller         poller.Config
	Reconcile      reconcile.Config
	TargetedCards  []string
}

// DefaultConfig returns default configuration for a server at serverURL
// whose push channel listens on pushURL.
func DefaultConfig(serverURL, pushURL string) Config {
	return Config{
		ServerURL:      serverURL,
		PushURL:        pushURL,
		ReconnectDelay: 2 * time.Second,
		Poller:         poller.DefaultConfig(),
		Reconcile:      reconcile.DefaultConfig(),
		TargetedCards:  protocol.DefaultTargetedCards,
	}
}

// Service owns the whole synchronization layer: session loop, reconciler,
// poller, push channel and dispatcher.
type Service struct {
	clientID   string
	loop       *session.Loop
	reconciler *reconcile.Reconciler
	scheduler  *poller.Scheduler
	poller     *poller.Poller
	push       *transport.PushChannel
	handler    *pushHandler
	api        *roguelike_client.RoguelikeClient
	dispatcher *dispatch.Dispatcher
}

// NewService wires a Service. Observers receive every accepted view and
// every notice.
func NewService(config Config, clock clockwork.Clock, observers ...reconcile.Observer) *Service {
	clientID := config.ClientID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	api := roguelike_client.NewRoguelikeClient(config.ServerURL, clientID)
	if config.RequestTimeout > 0 {
		api.SetTimeout(config.RequestTimeout)
	}

	loop := session.NewLoop(session.NewState())
	scheduler := poller.NewScheduler(clock)
	reconciler := reconcile.New(config.Reconcile, scheduler, observers...)
	p := poller.New(config.Poller, scheduler, loop, reconciler, api)

	pushConfig := transport.DefaultConfig(config.PushURL)
	if config.ReconnectDelay > 0 {
		pushConfig.ReconnectDelay = config.ReconnectDelay
	}
	pushConfig.Header = map[string][]string{roguelike_client.ClientIDHeader: {clientID}}

	s := &Service{
		clientID:   clientID,
		loop:       loop,
		reconciler: reconciler,
		scheduler:  scheduler,
		poller:     p,
		api:        api,
	}
	s.handler = &pushHandler{
		ctx:        context.Background(),
		loop:       loop,
		reconciler: reconciler,
		refresher:  p,
	}
	s.push = transport.NewPushChannel(pushConfig, clock, s.handler)
	s.dispatcher = dispatch.New(s.push, api, loop, reconciler, p, protocol.NewCardSet(config.TargetedCards...))

	return s
}

// Start runs the session loop, the push channel and the poller until ctx is
// done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Str("client_id", s.clientID).Msg("starting client service")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop.Run(gctx)
	})
	g.Go(func() error {
		return s.poller.Run(gctx)
	})
	// set before Connect so the read pump never sees the old value
	s.handler.ctx = gctx
	s.push.Connect(gctx)

	err := g.Wait()
	log.Info().Msg("client service stopped")
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("client service failed: %w", err)
	}
	return nil
}

// AddObserver registers o for views and notices. It must be called before
// Start.
func (s *Service) AddObserver(o reconcile.Observer) {
	s.reconciler.AddObserver(o)
}

// ClientID returns the id sent with every request.
func (s *Service) ClientID() string {
	return s.clientID
}

// Dispatcher returns the command dispatcher.
func (s *Service) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// PushUsable reports whether the push channel is open.
func (s *Service) PushUsable() bool {
	return s.push.IsUsable()
}

// GetStats returns statistics about the synchronization layer.
func (s *Service) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"client_id":     s.clientID,
		"push_usable":   s.push.IsUsable(),
		"pending_polls": s.scheduler.Pending(),
	}
}

// View returns the current view.
func (s *Service) View(ctx context.Context) (reconcile.View, error) {
	var v reconcile.View
	err := s.loop.Do(ctx, func(st *session.State) error {
		v = reconcile.DeriveView(st)
		return nil
	})
	return v, err
}

// Lobby lists the seats of the game server.
func (s *Service) Lobby(ctx context.Context) (roguelike_client.Lobby, error) {
	return s.api.Lobby(ctx)
}

// pushHandler feeds push frames into the session loop.
type pushHandler struct {
	ctx        context.Context
	loop       *session.Loop
	reconciler *reconcile.Reconciler
	refresher  dispatch.Refresher
}

func (h *pushHandler) OnClaim(res protocol.ClaimResult) {
	log.Info().Int("player_id", res.PlayerID).Msg("claimed seat over push channel")
	h.loop.Post(func(s *session.State) {
		s.SetIdentity(res)
		h.reconciler.Touch(s)
	})
}

func (h *pushHandler) OnState(snap protocol.Snapshot) {
	h.loop.Post(func(s *session.State) {
		if _, err := h.reconciler.Apply(s, snap, protocol.SourcePush); err != nil {
			log.Warn().Err(err).Msg("pushed snapshot not applied")
		}
	})
}

// OnServerError reports a command the server refused. Its effect on the
// server is unknown, so the optimistic hint is dropped and state is fetched
// again off the read pump.
func (h *pushHandler) OnServerError(code string) {
	h.reconciler.Notify(reconcile.Notice{
		Kind:    reconcile.NoticeServerError,
		Code:    code,
		Message: "server rejected command: " + code,
	})
	h.loop.Post(func(s *session.State) {
		if s.Hint != (session.Hint{}) {
			s.Hint = session.Hint{}
			h.reconciler.Touch(s)
		}
	})
	go func() {
		if err := h.refresher.Refresh(h.ctx); err != nil {
			log.Debug().Err(err).Msg("resync after server error failed")
		}
	}()
}
