package game

import (
	"hash/fnv"
	"math/rand"
)

// DeterministicSeedValue derives a stable seed from the game seed and a label
// so independent consumers draw from independent streams.
func DeterministicSeedValue(rootSeed, label string) int64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(rootSeed))
	hasher.Write([]byte{0})
	hasher.Write([]byte(label))
	sum := hasher.Sum64()
	if sum == 0 {
		sum = 1
	}
	return int64(sum)
}

// NewDeterministicRNG returns a generator seeded from rootSeed and label.
func NewDeterministicRNG(rootSeed, label string) *rand.Rand {
	return rand.New(rand.NewSource(DeterministicSeedValue(rootSeed, label)))
}

const (
	rngLabelLang       = "lang"
	rngLabelFreeValues = "free-values"
	rngLabelSpawns     = "spawns"
)
