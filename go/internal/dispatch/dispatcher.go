package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/clients"
	"github.com/parthhay/deskroguelikeproto/go/clients/roguelike_client"
	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
)

var (
	// ErrNotJoined is returned for commands that need a complete identity.
	ErrNotJoined = errors.New("not joined")
	// ErrRunOver is returned for card plays after the run has ended.
	ErrRunOver = errors.New("run is over")
	// ErrNoTargetAvailable is returned when a targeted card has no enemy to
	// aim at. Nothing is sent.
	ErrNoTargetAvailable = errors.New("no enemy to target")
)

// Pusher is the push channel as seen by the dispatcher.
type Pusher interface {
	TrySend(msg interface{}) bool
}

// API is the request/response fallback.
type API interface {
	Claim(ctx context.Context, name string) (protocol.ClaimResult, error)
	Start(ctx context.Context, playerID int) (*protocol.Snapshot, error)
	PlayCard(ctx context.Context, req roguelike_client.PlayCardRequest) (*protocol.Snapshot, error)
	State(ctx context.Context, playerID int) (protocol.Snapshot, error)
}

// Refresher forces a resynchronization with the server.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Dispatcher turns user intents into server commands. Every command is
// offered to the push channel first and sent over the fallback only when
// the push channel is not open.
type Dispatcher struct {
	push       Pusher
	api        API
	loop       *session.Loop
	reconciler *reconcile.Reconciler
	refresher  Refresher
	cards      protocol.CardSet
}

// New creates a Dispatcher. cards is the set of cards that need an enemy
// target.
func New(push Pusher, api API, loop *session.Loop, reconciler *reconcile.Reconciler, refresher Refresher, cards protocol.CardSet) *Dispatcher {
	return &Dispatcher{
		push:       push,
		api:        api,
		loop:       loop,
		reconciler: reconciler,
		refresher:  refresher,
		cards:      cards,
	}
}

// Claim asks for a seat under name. Over the push channel it returns as soon
// as the request is written; the identity arrives later as claim_ok.
func (d *Dispatcher) Claim(ctx context.Context, name string) error {
	name = protocol.NormalizeName(name)

	if d.push.TrySend(protocol.NewClaimMessage(name)) {
		log.Debug().Str("name", name).Msg("claim sent over push channel")
		return nil
	}
	log.Debug().Err(protocol.ErrTransportUnusable).Msg("claim falling back to request")

	res, err := d.api.Claim(ctx, name)
	if err != nil {
		return d.fail(ctx, "claim", err)
	}

	if err := d.loop.Do(ctx, func(s *session.State) error {
		s.SetIdentity(res)
		d.reconciler.Touch(s)
		return nil
	}); err != nil {
		return err
	}

	log.Info().Int("player_id", res.PlayerID).Str("name", name).Msg("claimed seat")
	d.refresh(ctx)
	return nil
}

// StartRun starts or restarts the run.
func (d *Dispatcher) StartRun(ctx context.Context) error {
	var playerID int
	if err := d.loop.Do(ctx, func(s *session.State) error {
		s.Hint.StartLabel = session.StartLabelRestart
		s.Target = protocol.TargetNone
		playerID = s.Identity.ID()
		d.reconciler.Touch(s)
		return nil
	}); err != nil {
		return err
	}

	if d.push.TrySend(protocol.NewStartMessage()) {
		log.Debug().Msg("start sent over push channel")
		return nil
	}
	log.Debug().Err(protocol.ErrTransportUnusable).Msg("start falling back to request")

	snap, err := d.api.Start(ctx, playerID)
	if err != nil {
		d.dropHint(ctx)
		return d.fail(ctx, "start", err)
	}

	d.applyOrRefresh(ctx, snap)
	return nil
}

// PlayCard plays card at target. An empty target means the current
// selection. A targeted card without a valid target is aimed at the first
// enemy of a freshly fetched snapshot.
func (d *Dispatcher) PlayCard(ctx context.Context, card, target string) error {
	var (
		playerID int
		token    string
	)
	if err := d.loop.Do(ctx, func(s *session.State) error {
		if !s.Identity.Complete() {
			return ErrNotJoined
		}
		if s.RunOver() {
			return ErrRunOver
		}
		playerID = s.Identity.ID()
		token = s.Identity.TokenValue()
		if target == "" {
			target = s.Target
		}
		target = protocol.ResolveTarget(s.Snapshot, target)
		return nil
	}); err != nil {
		return err
	}

	if d.cards.IsTargeted(card) && target == protocol.TargetNone {
		resolved, err := d.resolveTarget(ctx, playerID)
		if err != nil {
			return err
		}
		target = resolved
	}

	if d.push.TrySend(protocol.NewPlayCardMessage(playerID, token, card, target)) {
		log.Debug().Str("card", card).Str("target", target).Msg("play sent over push channel")
		return nil
	}
	log.Debug().Err(protocol.ErrTransportUnusable).Msg("play falling back to request")

	snap, err := d.api.PlayCard(ctx, roguelike_client.PlayCardRequest{
		PlayerID: playerID,
		Token:    token,
		Card:     card,
		Target:   target,
	})
	if err != nil {
		return d.fail(ctx, "play_card", err)
	}

	d.applyOrRefresh(ctx, snap)
	return nil
}

// SelectTarget stores the presentation's target selection and returns the
// effective one. Unknown or stale tags collapse to "none".
func (d *Dispatcher) SelectTarget(ctx context.Context, tag string) (string, error) {
	var selected string
	err := d.loop.Do(ctx, func(s *session.State) error {
		selected = protocol.ResolveTarget(s.Snapshot, tag)
		s.Target = selected
		d.reconciler.Touch(s)
		return nil
	})
	return selected, err
}

// resolveTarget fetches a fresh snapshot, reconciles it and selects its first
// enemy.
func (d *Dispatcher) resolveTarget(ctx context.Context, playerID int) (string, error) {
	snap, err := d.api.State(ctx, playerID)
	if err != nil {
		return "", d.fail(ctx, "resolve target", err)
	}

	var tag string
	err = d.loop.Do(ctx, func(s *session.State) error {
		if _, err := d.reconciler.Apply(s, snap, protocol.SourceResolve); err != nil {
			log.Warn().Err(err).Msg("target resolution snapshot not applied")
		}

		// Pick from the reconciled snapshot, so the stored selection is
		// checked against the same enemies it was chosen from. It is the
		// fetched one unless that was stale or unversioned.
		current := &snap
		if s.Snapshot != nil {
			current = s.Snapshot
		}
		first, ok := current.FirstEnemy()
		if !ok {
			return ErrNoTargetAvailable
		}
		tag = protocol.EnemyTarget(first.ID)
		s.Target = tag
		d.reconciler.Touch(s)
		return nil
	})
	if errors.Is(err, ErrNoTargetAvailable) {
		d.reconciler.Notify(reconcile.Notice{
			Kind:    reconcile.NoticeNoTarget,
			Code:    "no_target",
			Message: "No enemy to target.",
		})
	}
	if err != nil {
		return "", err
	}

	log.Debug().Str("target", tag).Msg("auto-resolved target")
	return tag, nil
}

// dropHint clears the optimistic presentation hint after a command that did
// not take effect.
func (d *Dispatcher) dropHint(ctx context.Context) {
	if err := d.loop.Do(ctx, func(s *session.State) error {
		s.Hint = session.Hint{}
		d.reconciler.Touch(s)
		return nil
	}); err != nil {
		log.Debug().Err(err).Msg("failed to clear hint")
	}
}

func (d *Dispatcher) applyOrRefresh(ctx context.Context, snap *protocol.Snapshot) {
	if snap == nil {
		d.refresh(ctx)
		return
	}

	if err := d.loop.Do(ctx, func(s *session.State) error {
		_, err := d.reconciler.Apply(s, *snap, protocol.SourceCommand)
		return err
	}); err != nil {
		log.Warn().Err(err).Msg("command response not applied")
	}
}

// fail reports a failed fallback command to the user and resynchronizes.
func (d *Dispatcher) fail(ctx context.Context, command string, err error) error {
	code, ok := clients.ErrorCode(err)
	if !ok {
		code = "error"
	}

	log.Error().Err(err).Str("command", command).Str("code", code).Msg("command failed")
	d.reconciler.Notify(reconcile.Notice{
		Kind:    reconcile.NoticeCommandFailed,
		Code:    code,
		Message: fmt.Sprintf("%s failed: %s", command, code),
	})
	d.refresh(ctx)

	return fmt.Errorf("%s: %w", command, err)
}

func (d *Dispatcher) refresh(ctx context.Context) {
	if err := d.refresher.Refresh(ctx); err != nil {
		log.Debug().Err(err).Msg("resync failed")
	}
}
