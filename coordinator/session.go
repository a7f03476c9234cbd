/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"sort"

	"github.com/rotisserie/eris"
)

type liveSession struct {
	roster  Roster
	scores  map[string]int
	present map[string]bool
}

func (s *liveSession) current() Roster {
	r := Roster{
		SessionID: s.roster.SessionID,
		Players:   make([]Participant, len(s.roster.Players)),
		FormedAt:  s.roster.FormedAt,
	}
	copy(r.Players, s.roster.Players)
	for i := range r.Players {
		r.Players[i].Score = s.scores[r.Players[i].ConnectionID]
	}

	return r
}

func (s *liveSession) members() []string {
	ids := make([]string, 0, len(s.present))
	for _, p := range s.roster.Players {
		if s.present[p.ConnectionID] {
			ids = append(ids, p.ConnectionID)
		}
	}

	return ids
}

// Sessions tracks formed sessions until the match runtime reports completion
// or every member has disconnected.
type Sessions struct {
	byID   map[string]*liveSession
	byConn map[string]string
}

func NewSessions() *Sessions {
	return &Sessions{
		byID:   make(map[string]*liveSession),
		byConn: make(map[string]string),
	}
}

func (s *Sessions) Add(r Roster) error {
	if _, ok := s.byID[r.SessionID]; ok {
		return eris.Wrapf(ErrInvariantViolation, "session %s already exists", r.SessionID)
	}
	for _, p := range r.Players {
		if other, ok := s.byConn[p.ConnectionID]; ok {
			return eris.Wrapf(ErrInvariantViolation, "connection %s already in session %s", p.ConnectionID, other)
		}
	}

	ls := &liveSession{
		roster:  r,
		scores:  make(map[string]int, len(r.Players)),
		present: make(map[string]bool, len(r.Players)),
	}
	for _, p := range r.Players {
		ls.scores[p.ConnectionID] = p.Score
		ls.present[p.ConnectionID] = true
		s.byConn[p.ConnectionID] = r.SessionID
	}
	s.byID[r.SessionID] = ls

	return nil
}

// SessionOf returns the session id a connection is playing in.
func (s *Sessions) SessionOf(connID string) (string, bool) {
	id, ok := s.byConn[connID]

	return id, ok
}

func (s *Sessions) get(sessionID string) (Roster, bool) {
	ls, ok := s.byID[sessionID]
	if !ok {
		return Roster{}, false
	}

	return ls.current(), true
}

// Members returns the connections of sessionID that are still present.
func (s *Sessions) Members(sessionID string) []string {
	ls, ok := s.byID[sessionID]
	if !ok {
		return nil
	}

	return ls.members()
}

// Depart marks connID as gone. The session is dropped once nobody is left.
func (s *Sessions) Depart(connID string) (sessionID string, remaining int, ok bool) {
	sessionID, ok = s.byConn[connID]
	if !ok {
		return "", 0, false
	}
	delete(s.byConn, connID)

	ls := s.byID[sessionID]
	delete(ls.present, connID)
	remaining = len(ls.present)
	if remaining == 0 {
		delete(s.byID, sessionID)
	}

	return sessionID, remaining, true
}

// Score adds delta to a participant's score, never going below zero.
func (s *Sessions) Score(sessionID, connID string, delta int) (Participant, error) {
	ls, ok := s.byID[sessionID]
	if !ok {
		return Participant{}, eris.Wrapf(ErrSessionNotFound, "%s", sessionID)
	}

	for _, p := range ls.roster.Players {
		if p.ConnectionID != connID {
			continue
		}

		score := ls.scores[connID] + delta
		if score < 0 {
			score = 0
		}
		ls.scores[connID] = score
		p.Score = score

		return p, nil
	}

	return Participant{}, eris.Wrapf(ErrNotInSession, "connection %s, session %s", connID, sessionID)
}

// Complete removes the session and returns its final standings along with
// the members that were still connected.
func (s *Sessions) Complete(sessionID string) (Roster, []string, error) {
	ls, ok := s.byID[sessionID]
	if !ok {
		return Roster{}, nil, eris.Wrapf(ErrSessionNotFound, "%s", sessionID)
	}

	members := ls.members()
	for _, id := range members {
		delete(s.byConn, id)
	}
	delete(s.byID, sessionID)

	return ls.current(), members, nil
}

func (s *Sessions) Len() int {
	return len(s.byID)
}

// IDs returns the running session ids in sorted order.
func (s *Sessions) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
