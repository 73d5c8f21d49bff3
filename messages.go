package capswalk

import "github.com/david-fong/capswalk-sub001/internal/game"

// Diagnostics is the payload served by /diagnostics.
type Diagnostics struct {
	Ver         int                 `json:"ver"`
	Epoch       string              `json:"epoch"`
	Phase       game.Phase          `json:"phase"`
	LastEventID int64               `json:"lastEventId"`
	Pack        string              `json:"pack"`
	Config      game.Config         `json:"config"`
	Players     []diagnosticsPlayer `json:"players"`
	Observers   int                 `json:"observers"`
	Telemetry   telemetrySnapshot   `json:"telemetry"`
	Metrics     map[string]uint64   `json:"metrics"`
}

type diagnosticsPlayer struct {
	game.Player
	Claimed   bool `json:"claimed"`
	Connected bool `json:"connected"`
}
