package protocol

// DefaultTargetedCards are the cards the server resolves against an enemy.
var DefaultTargetedCards = []string{"Strike", "Zap"}

// CardSet is a closed set of card identifiers. Whether a card needs a target
// is shared knowledge with the server and cannot be read from the hand.
type CardSet map[string]struct{}

// NewCardSet builds a set from card identifiers.
func NewCardSet(cards ...string) CardSet {
	set := make(CardSet, len(cards))
	for _, c := range cards {
		set[c] = struct{}{}
	}
	return set
}

// IsTargeted reports whether card requires an enemy target.
func (s CardSet) IsTargeted(card string) bool {
	_, ok := s[card]
	return ok
}
