package protocol

import (
	"strconv"
	"strings"
)

// TargetNone is the selection tag meaning "no enemy selected".
const TargetNone = "none"

const enemyTargetPrefix = "enemy_"

// EnemyTarget returns the selection tag for an enemy id.
func EnemyTarget(id int) string {
	return enemyTargetPrefix + strconv.Itoa(id)
}

// ParseTarget extracts the enemy id from a selection tag. It reports false for
// "none" and for anything that is not a well-formed enemy tag.
func ParseTarget(tag string) (int, bool) {
	if !strings.HasPrefix(tag, enemyTargetPrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(tag, enemyTargetPrefix))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ResolveTarget returns tag when it names an enemy present in snap and
// TargetNone otherwise.
func ResolveTarget(snap *Snapshot, tag string) string {
	id, ok := ParseTarget(tag)
	if !ok || snap == nil {
		return TargetNone
	}
	if _, found := snap.FindEnemy(id); !found {
		return TargetNone
	}
	return tag
}
