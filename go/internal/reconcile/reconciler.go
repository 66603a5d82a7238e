package reconcile

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
)

// ErrMissingVersion is returned for a snapshot without "ver" when versions
// are required.
var ErrMissingVersion = errors.New("snapshot has no version")

// Scheduler arms the next poll. Schedule replaces any pending poll.
type Scheduler interface {
	Schedule(d time.Duration)
}

// Timing holds the adaptive polling delays.
type Timing struct {
	// Fast is used after an accepted snapshot that gives us the turn.
	Fast time.Duration
	// Slow is used after an accepted snapshot that gives someone else the turn.
	Slow time.Duration
	// IdleStep is added to the current delay for every rejected snapshot.
	IdleStep time.Duration
	// IdleMax caps the growth driven by IdleStep.
	IdleMax time.Duration

	UnversionedFast time.Duration
	UnversionedSlow time.Duration
}

// DefaultTiming returns the delays the game's reference client uses.
func DefaultTiming() Timing {
	return Timing{
		Fast:            350 * time.Millisecond,
		Slow:            1200 * time.Millisecond,
		IdleStep:        400 * time.Millisecond,
		IdleMax:         3000 * time.Millisecond,
		UnversionedFast: 500 * time.Millisecond,
		UnversionedSlow: 2000 * time.Millisecond,
	}
}

// Config configures a Reconciler.
type Config struct {
	Timing Timing
	// RequireVersion rejects unversioned snapshots with ErrMissingVersion.
	// When false they are accepted unconditionally.
	RequireVersion bool
}

// DefaultConfig returns the strict configuration.
func DefaultConfig() Config {
	return Config{
		Timing:         DefaultTiming(),
		RequireVersion: true,
	}
}

// Reconciler is the single consumer of snapshots from every source. It
// decides acceptance by version alone, derives the View and reschedules the
// next poll on every path.
//
// All methods taking a *session.State must be called on the session loop.
type Reconciler struct {
	config    Config
	scheduler Scheduler
	observers observers
}

// New creates a Reconciler.
func New(config Config, scheduler Scheduler, obs ...Observer) *Reconciler {
	return &Reconciler{
		config:    config,
		scheduler: scheduler,
		observers: obs,
	}
}

// AddObserver registers o for views and notices. It must be called before
// the session loop starts.
func (r *Reconciler) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// Apply offers snap to s. It reports whether the snapshot was accepted.
func (r *Reconciler) Apply(s *session.State, snap protocol.Snapshot, source protocol.Source) (bool, error) {
	if !snap.Versioned() {
		return r.applyUnversioned(s, snap, source)
	}

	ver := snap.Version()
	if ver <= s.Poll.LastAppliedVersion {
		s.Poll.CurrentDelay = r.backoff(s.Poll.CurrentDelay)
		r.scheduler.Schedule(s.Poll.CurrentDelay)
		// The server answered the command without moving the game on, so
		// the optimistic hint is wrong.
		if source == protocol.SourceCommand && s.Hint != (session.Hint{}) {
			s.Hint = session.Hint{}
			r.observers.view(DeriveView(s))
		}

		log.Debug().
			Str("source", string(source)).
			Int64("ver", ver).
			Int64("last_applied", s.Poll.LastAppliedVersion).
			Dur("next_poll", s.Poll.CurrentDelay).
			Msg("ignored stale snapshot")
		return false, nil
	}

	r.accept(s, snap)
	s.Poll.LastAppliedVersion = ver
	if s.YourTurn() {
		s.Poll.CurrentDelay = r.config.Timing.Fast
	} else {
		s.Poll.CurrentDelay = r.config.Timing.Slow
	}
	r.scheduler.Schedule(s.Poll.CurrentDelay)

	log.Debug().
		Str("source", string(source)).
		Int64("ver", ver).
		Int("turn_player", snap.TurnPlayer).
		Dur("next_poll", s.Poll.CurrentDelay).
		Msg("applied snapshot")

	r.observers.view(DeriveView(s))
	return true, nil
}

func (r *Reconciler) applyUnversioned(s *session.State, snap protocol.Snapshot, source protocol.Source) (bool, error) {
	if r.config.RequireVersion {
		s.Poll.CurrentDelay = r.config.Timing.UnversionedSlow
		r.scheduler.Schedule(s.Poll.CurrentDelay)

		log.Warn().
			Str("source", string(source)).
			Dur("next_poll", s.Poll.CurrentDelay).
			Msg("rejected snapshot without version")
		return false, ErrMissingVersion
	}

	r.accept(s, snap)
	if s.YourTurn() {
		s.Poll.CurrentDelay = r.config.Timing.UnversionedFast
	} else {
		s.Poll.CurrentDelay = r.config.Timing.UnversionedSlow
	}
	r.scheduler.Schedule(s.Poll.CurrentDelay)

	log.Debug().
		Str("source", string(source)).
		Dur("next_poll", s.Poll.CurrentDelay).
		Msg("applied unversioned snapshot")

	r.observers.view(DeriveView(s))
	return true, nil
}

func (r *Reconciler) accept(s *session.State, snap protocol.Snapshot) {
	s.Snapshot = &snap
	s.Hint = session.Hint{}
	s.ProvisionalHand = nil
}

func (r *Reconciler) backoff(current time.Duration) time.Duration {
	next := current + r.config.Timing.IdleStep
	if next > r.config.Timing.IdleMax {
		return r.config.Timing.IdleMax
	}
	return next
}

// Touch publishes the current View without a snapshot, after a local change
// such as a new identity, target or hint.
func (r *Reconciler) Touch(s *session.State) View {
	v := DeriveView(s)
	r.observers.view(v)
	return v
}

// Notify publishes a user-visible notice.
func (r *Reconciler) Notify(n Notice) {
	log.Info().
		Str("kind", string(n.Kind)).
		Str("code", n.Code).
		Msg(n.Message)
	r.observers.notice(n)
}
