/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"encoding/json"
)

// Inbound event types.
const (
	EventJoinQueue      = "join_queue"
	EventLeaveQueue     = "leave_queue"
	EventSendPublic     = "send_public"
	EventSendPrivate    = "send_private"
	EventPrivateHistory = "private_history"
)

// Outbound event types.
const (
	EventRegistered       = "registered"
	EventQueueSnapshot    = "queue_snapshot"
	EventSessionFormed    = "session_formed"
	EventParticipantLeft  = "participant_left"
	EventCapacityRejected = "capacity_rejected"
	EventPublicMessage    = "public_message"
	EventPrivateMessage   = "private_message"
	EventPublicHistory    = "public_history"
	EventUserList         = "user_list"
	EventScoreUpdate      = "score_update"
	EventSessionCompleted = "session_completed"
	EventRejected         = "rejected"
)

// Inbound is a frame received from a client.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewInbound builds an Inbound from a payload value.
func NewInbound(eventType string, payload any) (Inbound, error) {
	in := Inbound{Type: eventType}
	if payload == nil {
		return in, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return in, err
	}
	in.Payload = raw

	return in, nil
}

func (in Inbound) decode(v any) error {
	if len(in.Payload) == 0 {
		return nil
	}

	return json.Unmarshal(in.Payload, v)
}

type QueuePayload struct {
	DisplayName string `json:"displayName,omitempty"`
}

type SendPublicPayload struct {
	Body string `json:"body"`
}

type SendPrivatePayload struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

type PrivateHistoryRequest struct {
	Peer string `json:"peer"`
}

type RegisteredPayload struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Avatar       string `json:"avatar,omitempty"`
}

type SessionFormedPayload struct {
	SessionID string            `json:"sessionId"`
	Players   []Participant     `json:"players"`
	Teams     map[Team][]string `json:"teams"`
}

type ParticipantLeftPayload struct {
	ConnectionID string `json:"connectionId"`
}

type CapacityRejectedPayload struct {
	Reason string `json:"reason"`
}

type PublicHistoryPayload struct {
	Messages []Message `json:"messages"`
}

type PrivateHistoryPayload struct {
	Peer     string    `json:"peer"`
	Messages []Message `json:"messages"`
}

type UserListPayload struct {
	Users []string `json:"users"`
}

type ScoreUpdatePayload struct {
	SessionID    string `json:"sessionId"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
}

type SessionCompletedPayload struct {
	SessionID string        `json:"sessionId"`
	Players   []Participant `json:"players"`
}

type RejectedPayload struct {
	Event   string `json:"event"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// LobbyState is a read-only view of the coordinator for operators.
type LobbyState struct {
	Connections []Connection `json:"connections"`
	Queue       Snapshot     `json:"queue"`
	Sessions    []string     `json:"sessions"`
}
