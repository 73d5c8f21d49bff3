// Package lang assigns typing sequences to grid tiles.
//
// A Tree is built once from a language's forward map (character to sequence
// and relative weight). It hands out character/sequence pairs that never
// prefix-conflict with a given avoid set and balances how often each
// sequence is used over the course of a game.
package lang

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientLeaves is returned when a language cannot guarantee a
	// conflict-free pick for the configured neighbourhood.
	ErrInsufficientLeaves = errors.New("lang: not enough independent sequence branches")
	// ErrInvalidEntry is returned for empty characters, empty sequences or
	// non-positive weights.
	ErrInvalidEntry = errors.New("lang: invalid forward map entry")
)

// Pair is a character together with the sequence typed to select it.
type Pair struct {
	Char string `json:"char" msgpack:"char"`
	Seq  string `json:"seq" msgpack:"seq"`
}

// Entry is one forward-map value: the sequence for a character and its
// relative selection weight.
type Entry struct {
	Seq    string  `json:"seq"`
	Weight float64 `json:"weight"`
}

// Scheme selects the hit metric used to balance picks.
type Scheme string

const (
	// BySeq balances on how often each sequence (or an ancestor) was picked.
	BySeq Scheme = "seq"
	// ByChar balances on how often each leaf's own characters were picked.
	ByChar Scheme = "char"
	// ByWeight balances on weight-normalized picks so that long-run pick
	// frequency follows the characters' weights.
	ByWeight Scheme = "weight"
)

// ParseScheme validates a scheme name.
func ParseScheme(raw string) (Scheme, error) {
	switch Scheme(raw) {
	case BySeq, ByChar, ByWeight:
		return Scheme(raw), nil
	case "":
		return ByWeight, nil
	default:
		return "", fmt.Errorf("lang: unknown scheme %q", raw)
	}
}

// AmbiguityThreshold is the minimum number of leaves a tree needs so that
// every avoid set gathered from a Chebyshev neighbourhood of avoidRadius
// still leaves a candidate. Avoid sets exclude the tile being assigned, so
// they are always strictly smaller than the value returned here.
func AmbiguityThreshold(avoidRadius int) int {
	if avoidRadius < 0 {
		return 0
	}
	side := 2*avoidRadius + 1
	return side * side
}
