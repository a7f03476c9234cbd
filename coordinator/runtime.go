/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"github.com/rs/zerolog"
)

// MatchRuntime runs the match itself. Its methods are called on the
// coordinator goroutine, so they must return quickly and must not call back
// into the Coordinator synchronously.
type MatchRuntime interface {
	Start(roster Roster)
	Departed(sessionID, connectionID string)
}

// LogRuntime only records what it is told. It is used when no runtime is
// wired in; scores and completion then arrive over HTTP.
type LogRuntime struct {
	Logger zerolog.Logger
}

func (r LogRuntime) Start(roster Roster) {
	r.Logger.Info().
		Str("session", roster.SessionID).
		Strs("team1", roster.Team(TeamA)).
		Strs("team2", roster.Team(TeamB)).
		Msg("session started")
}

func (r LogRuntime) Departed(sessionID, connectionID string) {
	r.Logger.Info().
		Str("session", sessionID).
		Str("connection", connectionID).
		Msg("participant left running session")
}
