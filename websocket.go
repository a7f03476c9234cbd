/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	writeWait = 10 * time.Second
)

// Client pumps frames between one websocket and the coordinator.
type Client struct {
	cfg    *Config
	log    zerolog.Logger
	conn   *websocket.Conn
	outbox *coordinator.Outbox
	lobby  *coordinator.Coordinator
}

func newUpgrader(cfg *Config) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cfg.originAllowed,
	}
}

func displayName(r *http.Request) string {
	if name := r.URL.Query().Get("username"); name != "" {
		return name
	}

	return r.Header.Get("X-Display-Name")
}

func serveSocket(cfg *Config, log zerolog.Logger, lobby *coordinator.Coordinator) httprouter.Handle {
	upgrader := newUpgrader(cfg)

	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Str("component", "SERVE").Err(err).Str("remote", realIP(r)).Msg("upgrade failed")
			return
		}

		outbox, err := lobby.Connect(r.Context(), displayName(r), r.URL.Query().Get("avatar"))
		if err != nil {
			refuse(conn, err)
			return
		}

		log.Info().
			Str("component", "SERVE").
			Str("connection", outbox.ID()).
			Str("remote", realIP(r)).
			Msg("websocket opened")

		c := &Client{
			cfg:    cfg,
			log:    log,
			conn:   conn,
			outbox: outbox,
			lobby:  lobby,
		}

		go c.writePump()
		c.readPump(r.Context())
	}
}

// refuse reports a failed registration as a single rejected frame and closes
// the socket.
func refuse(conn *websocket.Conn, err error) {
	defer conn.Close()

	reason := coordinator.Reason(err)

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(coordinator.Envelope{
		Type: coordinator.EventRejected,
		Payload: coordinator.RejectedPayload{
			Event:   "register",
			Reason:  reason,
			Message: err.Error(),
		},
	})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason))
}

func (c *Client) pongWait() time.Duration {
	return c.cfg.pingInterval * 10 / 9
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.lobby.Disconnect(c.outbox.ID())
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.maxMessageSize)

	if c.cfg.pingInterval > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug().Str("component", "SERVE").Str("connection", c.outbox.ID()).Err(err).Msg("websocket read failed")
			}
			return
		}

		// Malformed frames still reach the coordinator so the client gets
		// its invalid_event rejection.
		var in coordinator.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			in = coordinator.Inbound{}
		}

		if err := c.lobby.Submit(ctx, c.outbox.ID(), in); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	var ping <-chan time.Time
	if c.cfg.pingInterval > 0 {
		ticker := time.NewTicker(c.cfg.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case env, ok := <-c.outbox.C():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ping:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
