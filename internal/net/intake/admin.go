// Package intake decodes and validates operator requests before they reach
// the hub.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
)

// ErrInvalidRequest wraps every decoding or validation failure.
var ErrInvalidRequest = errors.New("intake: invalid request")

// ResetRequest overrides parts of the running config. Absent fields keep
// their current values.
type ResetRequest struct {
	Seed           *string  `json:"seed"`
	Pack           *string  `json:"pack"`
	System         *string  `json:"system"`
	Width          *int     `json:"width"`
	Height         *int     `json:"height"`
	MovementRadius *int     `json:"movementRadius"`
	AvoidRadius    *int     `json:"avoidRadius"`
	Scheme         *string  `json:"scheme"`
	Humans         *int     `json:"humans"`
	Artificial     *int     `json:"artificial"`
	MaxFreeValue   *float64 `json:"maxFreeValue"`
}

// PhaseRequest asks for a lifecycle change.
type PhaseRequest struct {
	Phase string `json:"phase"`
}

// StageReset decodes body and applies it on top of cfg and pack. An empty
// body resets with the current config.
func StageReset(body io.Reader, cfg game.Config, pack string) (game.Config, string, error) {
	var req ResetRequest
	if body != nil {
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return cfg, pack, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.Pack != nil {
		pack = *req.Pack
	}
	if req.System != nil {
		cfg.System = grid.System(*req.System)
	}
	if req.Width != nil {
		if *req.Width <= 0 {
			return cfg, pack, fmt.Errorf("%w: width %d", ErrInvalidRequest, *req.Width)
		}
		cfg.Width = *req.Width
	}
	if req.Height != nil {
		if *req.Height <= 0 {
			return cfg, pack, fmt.Errorf("%w: height %d", ErrInvalidRequest, *req.Height)
		}
		cfg.Height = *req.Height
	}
	if req.MovementRadius != nil {
		cfg.MovementRadius = *req.MovementRadius
		if req.AvoidRadius == nil {
			cfg.AvoidRadius = 0
		}
	}
	if req.AvoidRadius != nil {
		cfg.AvoidRadius = *req.AvoidRadius
	}
	if req.Scheme != nil {
		scheme, err := lang.ParseScheme(*req.Scheme)
		if err != nil {
			return cfg, pack, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		cfg.Scheme = scheme
	}
	if req.Humans != nil {
		cfg.Humans = *req.Humans
	}
	if req.Artificial != nil {
		cfg.Artificial = *req.Artificial
	}
	if req.MaxFreeValue != nil {
		cfg.MaxFreeValue = *req.MaxFreeValue
	}
	if cfg.Humans < 0 || cfg.Artificial < 0 {
		return cfg, pack, fmt.Errorf("%w: negative roster", ErrInvalidRequest)
	}
	if cfg.Humans+cfg.Artificial > cfg.Width*cfg.Height {
		return cfg, pack, fmt.Errorf("%w: %d players do not fit on %dx%d", ErrInvalidRequest, cfg.Humans+cfg.Artificial, cfg.Width, cfg.Height)
	}
	return cfg.Normalized(), pack, nil
}

// StagePhase decodes a phase change.
func StagePhase(body io.Reader) (game.Phase, error) {
	var req PhaseRequest
	if body == nil {
		return "", fmt.Errorf("%w: missing body", ErrInvalidRequest)
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	phase, err := game.ParsePhase(req.Phase)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return phase, nil
}
