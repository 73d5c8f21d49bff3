package game

import (
	"math"
	"strings"

	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
)

const (
	DefaultSeed           = "capswalk"
	DefaultWidth          = 16
	DefaultHeight         = 12
	DefaultMovementRadius = 1
	DefaultHumans         = 4
	DefaultMaxFreeValue   = 5.0
)

// Config is the shared game setup. Every role derives identical state from
// the same Config.
type Config struct {
	Seed           string      `json:"seed" msgpack:"seed"`
	System         grid.System `json:"system" msgpack:"system"`
	Width          int         `json:"width" msgpack:"width"`
	Height         int         `json:"height" msgpack:"height"`
	MovementRadius int         `json:"movementRadius" msgpack:"movementRadius"`
	// AvoidRadius bounds the neighbourhood whose sequences a reshuffled tile
	// must not conflict with. It defaults to twice MovementRadius.
	AvoidRadius  int         `json:"avoidRadius" msgpack:"avoidRadius"`
	Scheme       lang.Scheme `json:"scheme" msgpack:"scheme"`
	Humans       int         `json:"humans" msgpack:"humans"`
	Artificial   int         `json:"artificial" msgpack:"artificial"`
	MaxFreeValue float64     `json:"maxFreeValue" msgpack:"maxFreeValue"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	normalized.Seed = strings.TrimSpace(normalized.Seed)
	if normalized.Seed == "" {
		normalized.Seed = DefaultSeed
	}
	if normalized.System == "" {
		normalized.System = grid.SystemSquare
	}
	if normalized.Width <= 0 {
		normalized.Width = DefaultWidth
	}
	if normalized.Height <= 0 {
		normalized.Height = DefaultHeight
	}
	if normalized.MovementRadius <= 0 {
		normalized.MovementRadius = DefaultMovementRadius
	}
	if normalized.AvoidRadius <= 0 {
		normalized.AvoidRadius = 2 * normalized.MovementRadius
	}
	if normalized.Scheme == "" {
		normalized.Scheme = lang.ByWeight
	}
	if normalized.Humans < 0 {
		normalized.Humans = 0
	}
	if normalized.Artificial < 0 {
		normalized.Artificial = 0
	}
	if normalized.MaxFreeValue < 0 || math.IsNaN(normalized.MaxFreeValue) {
		normalized.MaxFreeValue = 0
	}
	return normalized
}

// Normalized fills defaults and clamps invalid values.
func (cfg Config) Normalized() Config {
	return cfg.normalized()
}

// Threshold is the number of leaves a tree needs for this config.
func (cfg Config) Threshold() int {
	return lang.AmbiguityThreshold(cfg.normalized().AvoidRadius)
}

// Roster lists every player id: humans 1..Humans then artificial -1..-Artificial.
func (cfg Config) Roster() []PlayerID {
	out := make([]PlayerID, 0, cfg.Humans+cfg.Artificial)
	for i := 1; i <= cfg.Humans; i++ {
		out = append(out, PlayerID(i))
	}
	for i := 1; i <= cfg.Artificial; i++ {
		out = append(out, PlayerID(-i))
	}
	return out
}

// DefaultConfig returns the stock game setup.
func DefaultConfig() Config {
	return Config{
		Seed:           DefaultSeed,
		System:         grid.SystemSquare,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		MovementRadius: DefaultMovementRadius,
		AvoidRadius:    2 * DefaultMovementRadius,
		Scheme:         lang.ByWeight,
		Humans:         DefaultHumans,
		Artificial:     0,
		MaxFreeValue:   DefaultMaxFreeValue,
	}
}
