/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"errors"

	"github.com/rotisserie/eris"
)

var (
	ErrDuplicateName      = eris.New("display name is already bound to another connection")
	ErrCapacityExceeded   = eris.New("matchmaking queue is full")
	ErrRecipientNotFound  = eris.New("recipient is not connected")
	ErrInvariantViolation = eris.New("invariant violation")
	ErrNotFound           = eris.New("not found")
	ErrAlreadyMatched     = eris.New("connection is already part of a running session")
	ErrFormationAborted   = eris.New("session formation aborted")
	ErrInvalidEvent       = eris.New("invalid event")
	ErrRateLimited        = eris.New("too many events")
	ErrSessionNotFound    = eris.New("session not found")
	ErrNotInSession       = eris.New("connection is not a member of the session")
	ErrStopped            = eris.New("coordinator is not running")
)

// Reason maps an error onto the tag sent to clients.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyMatched):
		return "already_matched"
	case errors.Is(err, ErrFormationAborted):
		return "formation_aborted"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrNotInSession):
		return "not_in_session"
	case errors.Is(err, ErrStopped):
		return "stopped"
	default:
		return "internal"
	}
}
