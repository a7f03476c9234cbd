/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"github.com/rs/zerolog"
)

// Envelope is one outbound frame.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Outbox is the ordered queue of frames waiting to be written to one
// connection. It is closed when the connection is detached or evicted.
type Outbox struct {
	id string
	ch chan Envelope
}

func (o *Outbox) ID() string {
	return o.id
}

func (o *Outbox) C() <-chan Envelope {
	return o.ch
}

// Gateway is the only place frames are handed to connections. Enqueueing never
// blocks: a connection whose outbox is full is evicted and remembered until
// the owner collects it with TakeEvicted.
type Gateway struct {
	outboxes map[string]*Outbox
	evicted  []string
	log      zerolog.Logger
	metrics  *Metrics
}

func NewGateway(log zerolog.Logger, metrics *Metrics) *Gateway {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Gateway{
		outboxes: make(map[string]*Outbox),
		log:      log,
		metrics:  metrics,
	}
}

func (g *Gateway) Attach(id string, buffer int) *Outbox {
	if old, ok := g.outboxes[id]; ok {
		return old
	}

	o := &Outbox{
		id: id,
		ch: make(chan Envelope, buffer),
	}
	g.outboxes[id] = o

	return o
}

// Detach closes the outbox of id. It is safe to call for unknown ids.
func (g *Gateway) Detach(id string) {
	o, ok := g.outboxes[id]
	if !ok {
		return
	}

	delete(g.outboxes, id)
	close(o.ch)
}

func (g *Gateway) Attached(id string) bool {
	_, ok := g.outboxes[id]

	return ok
}

func (g *Gateway) Send(id string, env Envelope) {
	o, ok := g.outboxes[id]
	if !ok {
		return
	}

	select {
	case o.ch <- env:
	default:
		g.log.Warn().
			Str("connection", id).
			Str("event", env.Type).
			Msg("outbox full, evicting connection")
		g.metrics.Evictions.Inc()
		g.Detach(id)
		g.evicted = append(g.evicted, id)
	}
}

// TakeEvicted returns the connections evicted since the last call.
func (g *Gateway) TakeEvicted() []string {
	out := g.evicted
	g.evicted = nil

	return out
}

func (g *Gateway) Multicast(ids []string, env Envelope) {
	for _, id := range ids {
		g.Send(id, env)
	}
}

func (g *Gateway) Broadcast(env Envelope) {
	for id := range g.outboxes {
		g.Send(id, env)
	}
}

// Close detaches every outbox.
func (g *Gateway) Close() {
	for id := range g.outboxes {
		g.Detach(id)
	}
}

func (g *Gateway) Len() int {
	return len(g.outboxes)
}
