package game

import "errors"

var (
	// ErrRequestInFlight is returned by SubmitMove while the player already
	// waits for a response. Callers must treat it as a programming error.
	ErrRequestInFlight = errors.New("game: request already in flight")
	// ErrProtocolViolation is returned when a request's counter cannot come
	// from a well-behaved client. The connection that sent it must be closed.
	ErrProtocolViolation = errors.New("game: protocol violation")
	// ErrCounterBehind wraps ErrProtocolViolation for replayed requests.
	ErrCounterBehind = errors.New("request counter behind")
	// ErrCounterAhead wraps ErrProtocolViolation for forged requests.
	ErrCounterAhead = errors.New("request counter ahead")

	ErrUnknownPlayer  = errors.New("game: unknown player")
	ErrNotAuthority   = errors.New("game: operation requires the authority role")
	ErrInvalidPhase   = errors.New("game: invalid phase")
	ErrInvalidSpawn   = errors.New("game: invalid spawn")
	ErrEpochMismatch  = errors.New("game: event belongs to another game")
	ErrMalformedEvent = errors.New("game: malformed event")
)
