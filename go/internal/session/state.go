package session

import (
	"time"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
)

const (
	// StartLabelFresh is shown while no run has ended.
	StartLabelFresh = "Start Run"
	// StartLabelRestart is shown once a run is over, and optimistically
	// right after the player asked for a (re)start.
	StartLabelRestart = "Restart Run"
)

// Identity is the seat handed out by a successful claim.
type Identity struct {
	PlayerID *int
	Token    *string
}

// Complete reports whether both halves of the identity are known.
func (i Identity) Complete() bool {
	return i.PlayerID != nil && i.Token != nil
}

// ID returns the player id, or 0 when not joined. The server reads 0 as
// "spectator".
func (i Identity) ID() int {
	if i.PlayerID == nil {
		return 0
	}
	return *i.PlayerID
}

// TokenValue returns the token, or "" when not joined.
func (i Identity) TokenValue() string {
	if i.Token == nil {
		return ""
	}
	return *i.Token
}

// Poll is the adaptive polling state.
type Poll struct {
	LastAppliedVersion int64
	CurrentDelay       time.Duration
}

// Hint is presentation-only state that is never part of a snapshot.
type Hint struct {
	StartLabel string
}

// State is the single owned client state. It must only be touched from a
// closure running on the Loop.
type State struct {
	Identity Identity
	Snapshot *protocol.Snapshot
	Poll     Poll
	Hint     Hint

	// Target is the raw selection; see EffectiveTarget.
	Target string

	// ProvisionalHand is the hand returned by a fallback claim, shown until
	// the first snapshot arrives.
	ProvisionalHand []string
}

// NewState returns the state of a client that has not joined and has not
// seen any snapshot yet.
func NewState() *State {
	return &State{
		Poll:   Poll{LastAppliedVersion: -1},
		Target: protocol.TargetNone,
	}
}

// SetIdentity records the result of a claim.
func (s *State) SetIdentity(res protocol.ClaimResult) {
	id := res.PlayerID
	token := res.Token
	s.Identity = Identity{PlayerID: &id, Token: &token}
	s.ProvisionalHand = append([]string(nil), res.Hand...)
}

// EffectiveTarget is the selection with staleness applied: a tag naming an
// enemy that is not in the latest accepted snapshot reads as "none".
func (s *State) EffectiveTarget() string {
	return protocol.ResolveTarget(s.Snapshot, s.Target)
}

// YourTurn reports whether the latest snapshot gives the turn to us.
func (s *State) YourTurn() bool {
	if s.Snapshot == nil || s.Identity.PlayerID == nil {
		return false
	}
	return s.Snapshot.TurnPlayer == *s.Identity.PlayerID
}

// RunOver reports whether the latest snapshot says the run has ended.
func (s *State) RunOver() bool {
	return s.Snapshot != nil && s.Snapshot.RunOver
}
