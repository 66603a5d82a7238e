package protocol

// Snapshot is the authoritative server view of a game. It replaces the
// previous snapshot wholesale; fields are never merged.
type Snapshot struct {
	Ver          *int64   `json:"ver,omitempty"`
	TurnPlayer   int      `json:"turn_player"`
	RunOver      bool     `json:"run_over"`
	Wave         *int     `json:"wave,omitempty"`
	DeckCount    *int     `json:"deck_count,omitempty"`
	DiscardCount *int     `json:"discard_count,omitempty"`
	Enemies      []Enemy  `json:"enemies"`
	YourHand     []string `json:"your_hand"`
}

// Enemy is one foe on the field. It only exists inside a snapshot.
type Enemy struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	HP     int    `json:"hp"`
	MaxHP  int    `json:"max_hp"`
	IsBoss bool   `json:"is_boss"`
	Phase  string `json:"phase,omitempty"`
}

// Versioned reports whether the snapshot carries a version number.
func (s Snapshot) Versioned() bool {
	return s.Ver != nil
}

// Version returns the snapshot version, or -1 when it has none.
func (s Snapshot) Version() int64 {
	if s.Ver == nil {
		return -1
	}
	return *s.Ver
}

// FindEnemy looks an enemy up by id.
func (s Snapshot) FindEnemy(id int) (Enemy, bool) {
	for _, e := range s.Enemies {
		if e.ID == id {
			return e, true
		}
	}
	return Enemy{}, false
}

// FirstEnemy returns the first enemy on the field, if any.
func (s Snapshot) FirstEnemy() (Enemy, bool) {
	if len(s.Enemies) == 0 {
		return Enemy{}, false
	}
	return s.Enemies[0], true
}
