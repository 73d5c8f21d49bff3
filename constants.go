package capswalk

import (
	"errors"

	"github.com/david-fong/capswalk-sub001/internal/net/proto"
)

const (
	ProtocolVersion = proto.Version

	// Reasons attached to frames and session close messages.
	ReasonRateLimited    = "rate_limited"
	ReasonSlowConsumer   = "slow consumer"
	ReasonReplaced       = "replaced by a newer session"
	ReasonRemoved        = "player removed by reset"
	ReasonDisconnected   = "disconnected"
	ReasonUnknownPlayer  = "unknown player"
	ReasonForeignRequest = "request for another player"
)

var (
	// ErrRosterFull is returned by Join when every human slot is claimed.
	ErrRosterFull = errors.New("capswalk: no free player slot")
	// ErrNotJoined is returned for sessions whose player was never claimed.
	ErrNotJoined = errors.New("capswalk: player has not joined")
)
