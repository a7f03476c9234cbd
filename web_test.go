/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	lobby := coordinator.New(coordinator.Options{
		Logger:        zerolog.Nop(),
		Metrics:       coordinator.NewMetrics(registry),
		HistorySize:   cfg.historySize,
		SendBuffer:    cfg.sendBuffer,
		DefaultAvatar: cfg.defaultAvatar,
	})
	go func() { _ = lobby.Run(ctx) }()

	errs := make(chan error, 64)
	srv := httptest.NewServer(newRouter(cfg, zerolog.Nop(), lobby, registry, errs))

	t.Cleanup(func() {
		cancel()
		<-lobby.Done()
		srv.Close()
	})

	return srv
}

func socketURL(srv *httptest.Server, name string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?username=" + url.QueryEscape(name)
}

func dial(t *testing.T, srv *httptest.Server, name string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, name), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

func readUntil(t *testing.T, conn *websocket.Conn, eventType string) frame {
	t.Helper()

	for {
		if f := readFrame(t, conn); f.Type == eventType {
			return f
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()

	in, err := coordinator.NewInbound(eventType, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(in))
}

func TestSocket_Welcome(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.defaultAvatar = "/images/default-avatar.png"
	srv := newTestServer(t, cfg)

	conn := dial(t, srv, "alice")

	f := readFrame(t, conn)
	require.Equal(t, coordinator.EventRegistered, f.Type)

	var reg coordinator.RegisteredPayload
	require.NoError(t, json.Unmarshal(f.Payload, &reg))
	assert.Equal(t, "alice", reg.DisplayName)
	assert.Equal(t, "/images/default-avatar.png", reg.Avatar)
	assert.NotEmpty(t, reg.ConnectionID)

	assert.Equal(t, coordinator.EventPublicHistory, readFrame(t, conn).Type)
	assert.Equal(t, coordinator.EventQueueSnapshot, readFrame(t, conn).Type)
	assert.Equal(t, coordinator.EventUserList, readFrame(t, conn).Type)
}

func TestSocket_DuplicateNameRefused(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	first := dial(t, srv, "alice")
	readUntil(t, first, coordinator.EventUserList)

	second := dial(t, srv, "alice")

	f := readFrame(t, second)
	require.Equal(t, coordinator.EventRejected, f.Type)

	var rejected coordinator.RejectedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &rejected))
	assert.Equal(t, "duplicate_name", rejected.Reason)

	_, _, err := second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestSocket_OriginCheck(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.origins = []string{"https://lobby.example"}
	srv := newTestServer(t, cfg)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")

	_, resp, err := websocket.DefaultDialer.Dial(socketURL(srv, "mallory"), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://lobby.example")
	conn, _, err := websocket.DefaultDialer.Dial(socketURL(srv, "alice"), header)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, coordinator.EventRegistered, readFrame(t, conn).Type)
}

func TestSocket_MalformedFrameRejected(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	conn := dial(t, srv, "alice")
	readUntil(t, conn, coordinator.EventUserList)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	f := readFrame(t, conn)
	require.Equal(t, coordinator.EventRejected, f.Type)

	var rejected coordinator.RejectedPayload
	require.NoError(t, json.Unmarshal(f.Payload, &rejected))
	assert.Equal(t, "invalid_event", rejected.Reason)
}

func TestSocket_PublicChat(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	alice := dial(t, srv, "alice")
	readUntil(t, alice, coordinator.EventUserList)

	send(t, alice, coordinator.EventSendPublic, coordinator.SendPublicPayload{Body: "hello"})

	f := readUntil(t, alice, coordinator.EventPublicMessage)
	var msg coordinator.Message
	require.NoError(t, json.Unmarshal(f.Payload, &msg))
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, "hello", msg.Body)

	bob := dial(t, srv, "bob")
	f = readUntil(t, bob, coordinator.EventPublicHistory)

	var history coordinator.PublicHistoryPayload
	require.NoError(t, json.Unmarshal(f.Payload, &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello", history.Messages[0].Body)
}

func post(t *testing.T, target string, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(target, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestSocket_SessionLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	var conns []*websocket.Conn
	var ids []string
	for _, name := range []string{"A", "B", "C", "D"} {
		conn := dial(t, srv, name)

		var reg coordinator.RegisteredPayload
		require.NoError(t, json.Unmarshal(readUntil(t, conn, coordinator.EventRegistered).Payload, &reg))

		conns = append(conns, conn)
		ids = append(ids, reg.ConnectionID)
	}

	for _, conn := range conns {
		send(t, conn, coordinator.EventJoinQueue, nil)
	}

	var sessionID string
	for _, conn := range conns {
		var formed coordinator.SessionFormedPayload
		require.NoError(t, json.Unmarshal(readUntil(t, conn, coordinator.EventSessionFormed).Payload, &formed))
		require.Len(t, formed.Players, coordinator.Capacity)
		assert.Len(t, formed.Teams[coordinator.TeamA], 2)
		assert.Len(t, formed.Teams[coordinator.TeamB], 2)

		if sessionID == "" {
			sessionID = formed.SessionID
		}
		assert.Equal(t, sessionID, formed.SessionID)
	}

	resp := post(t, srv.URL+"/sessions/"+sessionID+"/score", `{"connectionId":"`+ids[0]+`","delta":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var participant coordinator.Participant
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&participant))
	assert.Equal(t, 10, participant.Score)
	assert.Equal(t, "A", participant.DisplayName)

	for _, conn := range conns {
		var update coordinator.ScoreUpdatePayload
		require.NoError(t, json.Unmarshal(readUntil(t, conn, coordinator.EventScoreUpdate).Payload, &update))
		assert.Equal(t, ids[0], update.ConnectionID)
		assert.Equal(t, 10, update.Score)
	}

	resp = post(t, srv.URL+"/sessions/nope/score", `{"connectionId":"`+ids[0]+`","delta":10}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = post(t, srv.URL+"/sessions/"+sessionID+"/score", `{"delta":10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/sessions/"+sessionID+"/complete", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	for _, conn := range conns {
		readUntil(t, conn, coordinator.EventSessionCompleted)
	}

	resp = post(t, srv.URL+"/sessions/"+sessionID+"/complete", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSocket_DisconnectLeavesQueue(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	alice := dial(t, srv, "alice")
	readUntil(t, alice, coordinator.EventUserList)
	bob := dial(t, srv, "bob")
	readUntil(t, bob, coordinator.EventUserList)

	send(t, bob, coordinator.EventJoinQueue, nil)
	readUntil(t, alice, coordinator.EventQueueSnapshot)

	require.NoError(t, bob.Close())

	readUntil(t, alice, coordinator.EventParticipantLeft)

	var snapshot coordinator.Snapshot
	require.NoError(t, json.Unmarshal(readUntil(t, alice, coordinator.EventQueueSnapshot).Payload, &snapshot))
	assert.Zero(t, snapshot.Count)

	var users coordinator.UserListPayload
	require.NoError(t, json.Unmarshal(readUntil(t, alice, coordinator.EventUserList).Payload, &users))
	assert.Equal(t, []string{"alice"}, users.Users)
}

func TestHTTP_Lobby(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	conn := dial(t, srv, "alice")
	readUntil(t, conn, coordinator.EventUserList)

	resp, err := http.Get(srv.URL + "/lobby")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var state coordinator.LobbyState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Len(t, state.Connections, 1)
	assert.Equal(t, "alice", state.Connections[0].DisplayName)
	assert.Equal(t, coordinator.Capacity, state.Queue.Capacity)
}

func TestHTTP_StaticRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, validConfig())

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{path: "/healthz", contentType: "text/plain; charset=utf-8", contains: "Ok"},
		{path: "/version", contentType: "text/plain; charset=utf-8", contains: "mathlobby v" + releaseVersion},
		{path: "/robots.txt", contentType: "text/plain; charset=utf-8", contains: "Disallow: /ws"},
		{path: "/qr", contentType: "image/png", contains: "\x89PNG"},
		{path: "/metrics", contains: "mathlobby_connections"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestLobbyURL(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "http://games.example/mathlobby/qr", nil)
	assert.Equal(t, "http://games.example/mathlobby/", lobbyURL(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://games.example/mathlobby/", lobbyURL(r))
}
