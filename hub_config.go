package capswalk

import (
	"log"
	"strings"

	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/lang/packs"
	"github.com/david-fong/capswalk-sub001/internal/telemetry"
	"github.com/david-fong/capswalk-sub001/logging"
)

// HubConfig configures a Hub. Game and Pack describe the board; the rest are
// collaborators, any of which may be nil.
type HubConfig struct {
	Game         game.Config
	Pack         string
	InitialPhase game.Phase

	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   *logging.Metrics
}

// DefaultHubConfig returns a hub that starts a default game in the playing
// phase.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Game:         game.DefaultConfig(),
		Pack:         packs.DefaultName,
		InitialPhase: game.PhasePlaying,
	}
}

// Normalized fills defaults and clamps invalid values.
func (cfg HubConfig) Normalized() HubConfig {
	normalized := cfg
	normalized.Game = cfg.Game.Normalized()
	normalized.Pack = strings.TrimSpace(normalized.Pack)
	if normalized.Pack == "" {
		normalized.Pack = packs.DefaultName
	}
	if _, err := game.ParsePhase(string(normalized.InitialPhase)); err != nil {
		normalized.InitialPhase = game.PhasePlaying
	}
	if normalized.Logger == nil {
		normalized.Logger = telemetry.WrapLogger(log.Default())
	}
	if normalized.Publisher == nil {
		normalized.Publisher = logging.NopPublisher()
	}
	return normalized
}
