/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"
)

type Team string

const (
	TeamA Team = "team1"
	TeamB Team = "team2"
)

// Participant is one member of a formed session.
type Participant struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Avatar       string `json:"avatar,omitempty"`
	Team         Team   `json:"team"`
	Score        int    `json:"score"`
}

// Roster is the immutable membership of a session, in enqueue order.
type Roster struct {
	SessionID string        `json:"sessionId"`
	Players   []Participant `json:"players"`
	FormedAt  time.Time     `json:"formedAt"`
}

// Team returns the display names assigned to t.
func (r Roster) Team(t Team) []string {
	var names []string
	for _, p := range r.Players {
		if p.Team == t {
			names = append(names, p.DisplayName)
		}
	}

	return names
}

func (r Roster) ConnectionIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.ConnectionID)
	}

	return ids
}

// FormSession turns a full queue into a roster. The first half of the
// arrivals play for TeamA and the second half for TeamB. If any entry's
// connection is no longer live the formation is aborted.
func FormSession(sessionID string, entries []QueueEntry, live func(string) bool, now time.Time) (Roster, error) {
	if len(entries) != Capacity {
		return Roster{}, eris.Wrapf(ErrInvariantViolation, "formation with %d/%d entries", len(entries), Capacity)
	}

	ordered := make([]QueueEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Sequence < ordered[j].Sequence
	})

	seen := make(map[string]bool, len(ordered))
	for _, e := range ordered {
		if seen[e.ConnectionID] {
			return Roster{}, eris.Wrapf(ErrInvariantViolation, "connection %s queued twice", e.ConnectionID)
		}
		seen[e.ConnectionID] = true

		if live != nil && !live(e.ConnectionID) {
			return Roster{}, eris.Wrapf(ErrFormationAborted, "connection %s is gone", e.ConnectionID)
		}
	}

	roster := Roster{
		SessionID: sessionID,
		Players:   make([]Participant, 0, len(ordered)),
		FormedAt:  now,
	}

	for i, e := range ordered {
		team := TeamA
		if i >= Capacity/2 {
			team = TeamB
		}

		roster.Players = append(roster.Players, Participant{
			ConnectionID: e.ConnectionID,
			DisplayName:  e.DisplayName,
			Avatar:       e.Avatar,
			Team:         team,
		})
	}

	return roster, nil
}
