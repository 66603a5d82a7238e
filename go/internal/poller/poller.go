package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
)

// StateFetcher reads the authoritative snapshot for playerID (0 when not
// joined).
type StateFetcher interface {
	State(ctx context.Context, playerID int) (protocol.Snapshot, error)
}

// Config holds the delays the reconciler does not own.
type Config struct {
	// BootDelay is the first poll after start.
	BootDelay time.Duration
	// ErrorDelay is the next poll after a failed fetch.
	ErrorDelay time.Duration
}

// DefaultConfig returns the default delays.
func DefaultConfig() Config {
	return Config{
		BootDelay:  250 * time.Millisecond,
		ErrorDelay: 2000 * time.Millisecond,
	}
}

// Poller keeps the local snapshot fresh when the push channel is quiet or
// gone. Successful fetches go through the reconciler, which picks the next
// delay.
type Poller struct {
	config     Config
	scheduler  *Scheduler
	loop       *session.Loop
	reconciler *reconcile.Reconciler
	api        StateFetcher
}

// New creates a Poller. scheduler must be the same one the reconciler
// reschedules.
func New(config Config, scheduler *Scheduler, loop *session.Loop, reconciler *reconcile.Reconciler, api StateFetcher) *Poller {
	return &Poller{
		config:     config,
		scheduler:  scheduler,
		loop:       loop,
		reconciler: reconciler,
		api:        api,
	}
}

// Run arms the boot poll and refreshes on every timer fire until ctx is
// done. Each refresh runs on its own goroutine so the loop keeps receiving
// fires while a request is in flight.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("boot_delay", p.config.BootDelay).Msg("poller started")
	p.scheduler.Schedule(p.config.BootDelay)

	for {
		select {
		case <-ctx.Done():
			p.scheduler.Stop()
			log.Info().Msg("poller stopped")
			return nil
		case <-p.scheduler.C():
			go func() {
				if err := p.Refresh(ctx); err != nil {
					log.Debug().Err(err).Msg("poll refresh failed")
				}
			}()
		}
	}
}

// Refresh fetches the current snapshot and applies it. The retry poll is
// armed before the fetch and replaced by the reconciler on success, so one
// poll stays pending even while the fetch hangs.
func (p *Poller) Refresh(ctx context.Context) error {
	var playerID int
	if err := p.loop.Do(ctx, func(s *session.State) error {
		playerID = s.Identity.ID()
		return nil
	}); err != nil {
		return err
	}

	// A hung fetch must not stall polling: this timer fires unless the
	// reconciler replaces it first.
	p.scheduler.Schedule(p.config.ErrorDelay)

	snap, err := p.api.State(ctx, playerID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("retry_in", p.config.ErrorDelay).Msg("failed to fetch state")
		p.scheduler.Schedule(p.config.ErrorDelay)
		return fmt.Errorf("failed to fetch state: %w", err)
	}

	return p.loop.Do(ctx, func(s *session.State) error {
		_, err := p.reconciler.Apply(s, snap, protocol.SourcePoll)
		return err
	})
}
