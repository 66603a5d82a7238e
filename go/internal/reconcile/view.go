package reconcile

import (
	"fmt"
	"strings"

	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/session"
)

// Shown in place of an empty list.
const (
	NoEnemiesPlaceholder = "(No enemies on field)"
	EmptyHandPlaceholder = "(No cards left in hand)"
)

// EnemyLine is one rendered enemy.
type EnemyLine struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// TargetOption is one entry of the target selector.
type TargetOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// View is everything the presentation layer renders. It is derived from the
// latest accepted snapshot and the identity only, never from which
// transport delivered the snapshot.
type View struct {
	Joined         bool           `json:"joined"`
	PlayerID       int            `json:"player_id,omitempty"`
	Version        int64          `json:"ver"`
	YourTurn       bool           `json:"your_turn"`
	RunOver        bool           `json:"run_over"`
	Status         string         `json:"status"`
	StartLabel     string         `json:"start_label"`
	Enemies        []EnemyLine    `json:"enemies"`
	TargetOptions  []TargetOption `json:"target_options"`
	SelectedTarget string         `json:"selected_target"`
	Hand           []string       `json:"hand"`
	HandPlayable   bool           `json:"hand_playable"`

	// Set only while the matching list is empty.
	EnemiesPlaceholder string `json:"enemies_placeholder,omitempty"`
	HandPlaceholder    string `json:"hand_placeholder,omitempty"`
}

// DeriveView builds the View of s.
func DeriveView(s *session.State) View {
	v := View{
		Joined:         s.Identity.PlayerID != nil,
		PlayerID:       s.Identity.ID(),
		Version:        s.Poll.LastAppliedVersion,
		YourTurn:       s.YourTurn(),
		RunOver:        s.RunOver(),
		Status:         DeriveStatus(s.Snapshot, s.Identity),
		StartLabel:     startLabel(s),
		Enemies:        []EnemyLine{},
		TargetOptions:  []TargetOption{{Value: protocol.TargetNone, Label: protocol.TargetNone}},
		SelectedTarget: s.EffectiveTarget(),
		Hand:           []string{},
	}

	if s.Snapshot != nil {
		for _, e := range s.Snapshot.Enemies {
			v.Enemies = append(v.Enemies, EnemyLine{ID: e.ID, Label: EnemyLabel(e)})
			v.TargetOptions = append(v.TargetOptions, TargetOption{Value: protocol.EnemyTarget(e.ID), Label: e.Name})
		}
		v.Hand = append(v.Hand, s.Snapshot.YourHand...)
	} else {
		v.Hand = append(v.Hand, s.ProvisionalHand...)
	}

	if len(v.Enemies) == 0 {
		v.EnemiesPlaceholder = NoEnemiesPlaceholder
	}
	if len(v.Hand) == 0 {
		v.HandPlaceholder = EmptyHandPlaceholder
	}

	v.HandPlayable = v.YourTurn && !v.RunOver
	return v
}

func startLabel(s *session.State) string {
	if s.Hint.StartLabel != "" {
		return s.Hint.StartLabel
	}
	if s.RunOver() {
		return session.StartLabelRestart
	}
	return session.StartLabelFresh
}

// EnemyLabel renders the line shown for e in the enemy list.
func EnemyLabel(e protocol.Enemy) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.IsBoss {
		fmt.Fprintf(&b, " [BOSS: %s]", e.Phase)
	}
	fmt.Fprintf(&b, " — HP %d/%d", e.HP, e.MaxHP)
	return b.String()
}

// DeriveStatus renders the one-line status. It is a pure function of the
// snapshot and the identity.
func DeriveStatus(snap *protocol.Snapshot, id session.Identity) string {
	var b strings.Builder

	turnPlayer := 0
	if snap != nil {
		turnPlayer = snap.TurnPlayer
	}

	switch {
	case id.PlayerID == nil:
		b.WriteString("Not joined")
	case snap != nil && turnPlayer == *id.PlayerID:
		fmt.Fprintf(&b, "Your turn (P%d)", *id.PlayerID)
	default:
		fmt.Fprintf(&b, "Waiting… It’s Player %d’s turn", turnPlayer)
	}

	if snap == nil {
		return b.String()
	}

	if snap.Wave != nil && *snap.Wave > 0 {
		fmt.Fprintf(&b, " — Wave %d", *snap.Wave)
	}
	if snap.RunOver {
		b.WriteString(" (Run Over)")
	}
	if snap.DeckCount != nil && snap.DiscardCount != nil {
		fmt.Fprintf(&b, " — Deck %d / Discard %d", *snap.DeckCount, *snap.DiscardCount)
	}
	return b.String()
}
