/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package coordinator owns every piece of shared lobby state: the connection
// registry, the matchmaking queue, running sessions and chat. All of it is
// mutated by a single goroutine started with Run; callers talk to it through
// Connect, Submit, Disconnect and the match runtime hooks.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultSendBuffer  = 64
	defaultEventBuffer = 256
)

type Options struct {
	Logger  zerolog.Logger
	Metrics *Metrics
	Runtime MatchRuntime

	// HistorySize bounds the public and private chat logs.
	HistorySize int

	// SendBuffer is the outbox size of each connection.
	SendBuffer int

	// RateLimit is the sustained number of inbound events per second a
	// connection may send. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int

	DefaultAvatar string

	Now   func() time.Time
	NewID func() string
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evInbound
	evScore
	evComplete
	evLobby
)

type event struct {
	kind      eventKind
	connID    string
	name      string
	avatar    string
	inbound   Inbound
	sessionID string
	delta     int
	reply     chan result
}

type result struct {
	outbox      *Outbox
	participant Participant
	roster      Roster
	lobby       LobbyState
	err         error
}

type Coordinator struct {
	opts    Options
	log     zerolog.Logger
	metrics *Metrics
	runtime MatchRuntime

	registry *Registry
	queue    *Queue
	sessions *Sessions
	chat     *ChatRouter
	gateway  *Gateway
	limiters map[string]*rate.Limiter

	events chan event
	done   chan struct{}
}

func New(opts Options) *Coordinator {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	log := opts.Logger.With().Str("component", "GAMES").Logger()

	runtime := opts.Runtime
	if runtime == nil {
		runtime = LogRuntime{Logger: log}
	}

	return &Coordinator{
		opts:     opts,
		log:      log,
		metrics:  opts.Metrics,
		runtime:  runtime,
		registry: NewRegistry(),
		queue:    NewQueue(),
		sessions: NewSessions(),
		chat:     NewChatRouter(opts.HistorySize),
		gateway:  NewGateway(log, opts.Metrics),
		limiters: make(map[string]*rate.Limiter),
		events:   make(chan event, defaultEventBuffer),
		done:     make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. Every outbox is closed on the
// way out.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.gateway.Close()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug().Msg("coordinator stopping")
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) enqueue(ctx context.Context, ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) call(ctx context.Context, ev event) (result, error) {
	ev.reply = make(chan result, 1)
	if err := c.enqueue(ctx, ev); err != nil {
		return result{}, err
	}

	// Once enqueued the event will be handled, so the reply is awaited even
	// if ctx ends; dropping it would orphan a registration.
	select {
	case r := <-ev.reply:
		return r, r.err
	case <-c.done:
		select {
		case r := <-ev.reply:
			return r, r.err
		default:
			return result{}, ErrStopped
		}
	}
}

// Connect registers a new connection under name. The returned outbox already
// holds the welcome, the public history and the current queue snapshot.
func (c *Coordinator) Connect(ctx context.Context, name, avatar string) (*Outbox, error) {
	r, err := c.call(ctx, event{kind: evConnect, name: name, avatar: avatar})
	if err != nil {
		return nil, err
	}

	return r.outbox, nil
}

// Submit hands an inbound frame to the coordinator. Outcomes, including
// rejections, are delivered through the connection's outbox.
func (c *Coordinator) Submit(ctx context.Context, connID string, in Inbound) error {
	return c.enqueue(ctx, event{kind: evInbound, connID: connID, inbound: in})
}

// Disconnect runs the unregister cascade for connID. It cannot be cancelled;
// it only returns early if the coordinator has stopped.
func (c *Coordinator) Disconnect(connID string) {
	select {
	case c.events <- event{kind: evDisconnect, connID: connID}:
	case <-c.done:
	}
}

// ReportScore applies a score change reported by the match runtime.
func (c *Coordinator) ReportScore(ctx context.Context, sessionID, connID string, delta int) (Participant, error) {
	r, err := c.call(ctx, event{kind: evScore, sessionID: sessionID, connID: connID, delta: delta})
	if err != nil {
		return Participant{}, err
	}

	return r.participant, nil
}

// CompleteSession ends a session on behalf of the match runtime.
func (c *Coordinator) CompleteSession(ctx context.Context, sessionID string) (Roster, error) {
	r, err := c.call(ctx, event{kind: evComplete, sessionID: sessionID})
	if err != nil {
		return Roster{}, err
	}

	return r.roster, nil
}

// Lobby returns a consistent view of connections, queue and sessions.
func (c *Coordinator) Lobby(ctx context.Context) (LobbyState, error) {
	r, err := c.call(ctx, event{kind: evLobby})
	if err != nil {
		return LobbyState{}, err
	}

	return r.lobby, nil
}

func (c *Coordinator) handle(ev event) {
	var r result

	switch ev.kind {
	case evConnect:
		r.outbox, r.err = c.register(ev.name, ev.avatar)
	case evDisconnect:
		c.unregister(ev.connID)
	case evInbound:
		c.dispatch(ev.connID, ev.inbound)
	case evScore:
		r.participant, r.err = c.score(ev.sessionID, ev.connID, ev.delta)
	case evComplete:
		r.roster, r.err = c.complete(ev.sessionID)
	case evLobby:
		r.lobby = LobbyState{
			Connections: c.registry.Connections(),
			Queue:       c.queue.Snapshot(),
			Sessions:    c.sessions.IDs(),
		}
	}

	c.reapEvicted()

	c.metrics.Connections.Set(float64(c.registry.Len()))
	c.metrics.QueueLength.Set(float64(c.queue.Len()))
	c.metrics.ActiveSessions.Set(float64(c.sessions.Len()))

	if ev.reply != nil {
		ev.reply <- r
	}
}

func (c *Coordinator) register(name, avatar string) (*Outbox, error) {
	name, ok := NormalizeDisplayName(name)
	if !ok {
		c.metrics.Rejections.WithLabelValues(Reason(ErrInvalidEvent)).Inc()
		return nil, eris.Wrapf(ErrInvalidEvent, "display name %q must be 1-%d letters, digits, spaces, '-' or '_'", name, maxDisplayNameLength)
	}
	if avatar == "" {
		avatar = c.opts.DefaultAvatar
	}

	id := c.opts.NewID()
	first, err := c.registry.Register(id, name, avatar, c.opts.Now())
	if err != nil {
		c.metrics.Rejections.WithLabelValues(Reason(err)).Inc()
		c.log.Debug().Err(err).Str("name", name).Msg("registration rejected")
		return nil, err
	}

	outbox := c.gateway.Attach(id, c.opts.SendBuffer)
	if c.opts.RateLimit > 0 {
		c.limiters[id] = rate.NewLimiter(c.opts.RateLimit, c.opts.RateBurst)
	}
	c.chat.Join(name)

	c.gateway.Send(id, Envelope{Type: EventRegistered, Payload: RegisteredPayload{
		ConnectionID: id,
		DisplayName:  name,
		Avatar:       avatar,
	}})
	if first {
		c.gateway.Send(id, Envelope{Type: EventPublicHistory, Payload: PublicHistoryPayload{
			Messages: c.chat.PublicHistory(),
		}})
	}
	c.gateway.Send(id, Envelope{Type: EventQueueSnapshot, Payload: c.queue.Snapshot()})
	c.broadcastUsers()

	c.log.Info().Str("connection", id).Str("name", name).Msg("connection registered")

	return outbox, nil
}

// reapEvicted unregisters connections the gateway dropped for falling behind.
// Unregistering broadcasts, which may evict further connections.
func (c *Coordinator) reapEvicted() {
	for evicted := c.gateway.TakeEvicted(); len(evicted) > 0; evicted = c.gateway.TakeEvicted() {
		for _, id := range evicted {
			c.log.Warn().Str("connection", id).Msg("unregistering evicted connection")
			c.unregister(id)
		}
	}
}

// live reports whether id is registered and can still be written to.
func (c *Coordinator) live(id string) bool {
	return c.registry.Live(id) && c.gateway.Attached(id)
}

// unregister is the single cleanup path for a departing connection: queue,
// chat, running session, then the notifications that follow from each.
func (c *Coordinator) unregister(id string) {
	conn, ok := c.registry.Unregister(id)
	if !ok {
		c.gateway.Detach(id)
		return
	}

	_, dequeued := c.queue.Leave(id)
	c.chat.Depart(conn.DisplayName)
	delete(c.limiters, id)
	c.gateway.Detach(id)

	if sessionID, remaining, inSession := c.sessions.Depart(id); inSession {
		c.log.Info().
			Str("session", sessionID).
			Str("connection", id).
			Int("remaining", remaining).
			Msg("participant left session")
		c.runtime.Departed(sessionID, id)
	}

	c.gateway.Broadcast(Envelope{Type: EventParticipantLeft, Payload: ParticipantLeftPayload{ConnectionID: id}})
	if dequeued {
		c.broadcastSnapshot()
	}
	c.broadcastUsers()

	c.log.Info().Str("connection", id).Str("name", conn.DisplayName).Msg("connection unregistered")
}

func (c *Coordinator) dispatch(id string, in Inbound) {
	conn, ok := c.registry.Lookup(id)
	if !ok {
		c.log.Debug().Str("connection", id).Str("event", in.Type).Msg("event from unknown connection dropped")
		return
	}

	if lim, ok := c.limiters[id]; ok && !lim.AllowN(c.opts.Now(), 1) {
		c.reject(id, in.Type, ErrRateLimited)
		return
	}

	var err error
	switch in.Type {
	case EventJoinQueue:
		err = c.joinQueue(conn, in)
	case EventLeaveQueue:
		err = c.leaveQueue(conn, in)
	case EventSendPublic:
		err = c.sendPublic(conn, in)
	case EventSendPrivate:
		err = c.sendPrivate(conn, in)
	case EventPrivateHistory:
		err = c.privateHistory(conn, in)
	default:
		err = eris.Wrapf(ErrInvalidEvent, "unknown event type %q", in.Type)
	}

	if err != nil {
		c.reject(id, in.Type, err)
	}
}

func (c *Coordinator) reject(id, eventType string, err error) {
	reason := Reason(err)
	c.metrics.Rejections.WithLabelValues(reason).Inc()

	if errors.Is(err, ErrInvariantViolation) {
		c.log.Error().Err(err).Str("connection", id).Str("event", eventType).Msg("invariant violation")
	} else {
		c.log.Debug().Err(err).Str("connection", id).Str("event", eventType).Msg("event rejected")
	}

	if errors.Is(err, ErrCapacityExceeded) {
		c.gateway.Send(id, Envelope{Type: EventCapacityRejected, Payload: CapacityRejectedPayload{Reason: reason}})
		return
	}

	c.gateway.Send(id, Envelope{Type: EventRejected, Payload: RejectedPayload{
		Event:   eventType,
		Reason:  reason,
		Message: err.Error(),
	}})
}

func checkIdentity(conn Connection, in Inbound) error {
	var p QueuePayload
	if err := in.decode(&p); err != nil {
		return eris.Wrapf(ErrInvalidEvent, "malformed %s payload", in.Type)
	}
	if p.DisplayName != "" && p.DisplayName != conn.DisplayName {
		return eris.Wrapf(ErrInvalidEvent, "display name %q does not belong to this connection", p.DisplayName)
	}

	return nil
}

func (c *Coordinator) joinQueue(conn Connection, in Inbound) error {
	if err := checkIdentity(conn, in); err != nil {
		return err
	}

	if sessionID, ok := c.sessions.SessionOf(conn.ID); ok {
		return eris.Wrapf(ErrAlreadyMatched, "session %s", sessionID)
	}

	snapshot, joined, err := c.queue.Join(conn.ID, conn.DisplayName, conn.Avatar)
	if err != nil {
		return err
	}

	if !joined {
		c.gateway.Send(conn.ID, Envelope{Type: EventQueueSnapshot, Payload: snapshot})
		return nil
	}

	c.log.Debug().Str("name", conn.DisplayName).Int("queued", snapshot.Count).Msg("joined queue")
	c.gateway.Broadcast(Envelope{Type: EventQueueSnapshot, Payload: snapshot})

	if c.queue.Full() {
		c.formSession()
	}

	return nil
}

func (c *Coordinator) leaveQueue(conn Connection, in Inbound) error {
	if err := checkIdentity(conn, in); err != nil {
		return err
	}

	snapshot, removed := c.queue.Leave(conn.ID)
	if !removed {
		c.gateway.Send(conn.ID, Envelope{Type: EventQueueSnapshot, Payload: snapshot})
		return nil
	}

	c.log.Debug().Str("name", conn.DisplayName).Int("queued", snapshot.Count).Msg("left queue")
	c.gateway.Broadcast(Envelope{Type: EventQueueSnapshot, Payload: snapshot})

	return nil
}

// formSession carves a session out of the full queue. If a queued connection
// turns out to be gone, the dead entries are purged and a plain snapshot goes
// out instead.
func (c *Coordinator) formSession() {
	entries := c.queue.Entries()

	roster, err := FormSession(c.opts.NewID(), entries, c.live, c.opts.Now())
	if err != nil {
		if errors.Is(err, ErrFormationAborted) {
			c.metrics.FormationsAborted.Inc()
			c.log.Warn().Err(err).Msg("formation aborted")
		} else {
			c.log.Error().Err(err).Msg("formation failed")
		}

		for _, e := range entries {
			if !c.live(e.ConnectionID) {
				c.queue.Leave(e.ConnectionID)
			}
		}
		c.broadcastSnapshot()

		return
	}

	if _, err := c.queue.Drain(); err != nil {
		c.log.Error().Err(err).Msg("formation failed")
		return
	}

	if err := c.sessions.Add(roster); err != nil {
		c.log.Error().Err(err).Msg("formation failed")
		c.broadcastSnapshot()
		return
	}

	c.metrics.SessionsFormed.Inc()
	c.log.Info().
		Str("session", roster.SessionID).
		Strs("team1", roster.Team(TeamA)).
		Strs("team2", roster.Team(TeamB)).
		Msg("session formed")

	c.gateway.Multicast(roster.ConnectionIDs(), Envelope{Type: EventSessionFormed, Payload: SessionFormedPayload{
		SessionID: roster.SessionID,
		Players:   roster.Players,
		Teams: map[Team][]string{
			TeamA: roster.Team(TeamA),
			TeamB: roster.Team(TeamB),
		},
	}})
	c.broadcastSnapshot()

	c.runtime.Start(roster)
}

func (c *Coordinator) sendPublic(conn Connection, in Inbound) error {
	var p SendPublicPayload
	if err := in.decode(&p); err != nil {
		return eris.Wrap(ErrInvalidEvent, "malformed send_public payload")
	}

	msg, err := c.chat.SendPublic(conn.DisplayName, p.Body, c.opts.Now())
	if err != nil {
		return err
	}

	c.metrics.Messages.WithLabelValues("public").Inc()
	c.gateway.Broadcast(Envelope{Type: EventPublicMessage, Payload: msg})

	return nil
}

func (c *Coordinator) sendPrivate(conn Connection, in Inbound) error {
	var p SendPrivatePayload
	if err := in.decode(&p); err != nil {
		return eris.Wrap(ErrInvalidEvent, "malformed send_private payload")
	}

	recipientID := ""
	if p.Recipient != "" && p.Recipient != conn.DisplayName {
		id, err := c.registry.Resolve(p.Recipient)
		if err != nil {
			return eris.Wrapf(ErrRecipientNotFound, "%q", p.Recipient)
		}
		recipientID = id
	}

	msg, err := c.chat.SendPrivate(conn.DisplayName, p.Recipient, p.Body, c.opts.Now())
	if err != nil {
		return err
	}

	c.metrics.Messages.WithLabelValues("private").Inc()
	c.gateway.Multicast([]string{conn.ID, recipientID}, Envelope{Type: EventPrivateMessage, Payload: msg})

	return nil
}

func (c *Coordinator) privateHistory(conn Connection, in Inbound) error {
	var p PrivateHistoryRequest
	if err := in.decode(&p); err != nil || p.Peer == "" {
		return eris.Wrap(ErrInvalidEvent, "private_history needs a peer")
	}

	c.gateway.Send(conn.ID, Envelope{Type: EventPrivateHistory, Payload: PrivateHistoryPayload{
		Peer:     p.Peer,
		Messages: c.chat.PrivateHistory(conn.DisplayName, p.Peer),
	}})

	return nil
}

func (c *Coordinator) score(sessionID, connID string, delta int) (Participant, error) {
	p, err := c.sessions.Score(sessionID, connID, delta)
	if err != nil {
		return Participant{}, err
	}

	c.gateway.Multicast(c.sessions.Members(sessionID), Envelope{Type: EventScoreUpdate, Payload: ScoreUpdatePayload{
		SessionID:    sessionID,
		ConnectionID: p.ConnectionID,
		DisplayName:  p.DisplayName,
		Score:        p.Score,
	}})

	return p, nil
}

func (c *Coordinator) complete(sessionID string) (Roster, error) {
	roster, members, err := c.sessions.Complete(sessionID)
	if err != nil {
		return Roster{}, err
	}

	c.gateway.Multicast(members, Envelope{Type: EventSessionCompleted, Payload: SessionCompletedPayload{
		SessionID: roster.SessionID,
		Players:   roster.Players,
	}})
	c.log.Info().Str("session", sessionID).Msg("session completed")

	return roster, nil
}

func (c *Coordinator) broadcastSnapshot() {
	c.gateway.Broadcast(Envelope{Type: EventQueueSnapshot, Payload: c.queue.Snapshot()})
}

func (c *Coordinator) broadcastUsers() {
	c.gateway.Broadcast(Envelope{Type: EventUserList, Payload: UserListPayload{Users: c.registry.Names()}})
}
