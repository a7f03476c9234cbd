/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

const (
	// DefaultHistorySize bounds the public log and each private log.
	DefaultHistorySize = 100

	MaxBodyLength = 500
)

// Message is a chat line. Recipient is empty for the public channel.
type Message struct {
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

type messageLog struct {
	messages []Message
	window   int
}

func (l *messageLog) append(m Message) {
	l.messages = append(l.messages, m)
	if over := len(l.messages) - l.window; over > 0 {
		l.messages = append(l.messages[:0:0], l.messages[over:]...)
	}
}

func (l *messageLog) snapshot() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)

	return out
}

// pairKey identifies a private channel by its unordered pair of names.
type pairKey struct {
	a, b string
}

func newPairKey(x, y string) pairKey {
	if y < x {
		x, y = y, x
	}

	return pairKey{a: x, b: y}
}

// ChatRouter owns channel membership and message logs.
type ChatRouter struct {
	public  *messageLog
	private map[pairKey]*messageLog
	members map[string]bool
	window  int
}

func NewChatRouter(window int) *ChatRouter {
	if window <= 0 {
		window = DefaultHistorySize
	}

	return &ChatRouter{
		public:  &messageLog{window: window},
		private: make(map[pairKey]*messageLog),
		members: make(map[string]bool),
		window:  window,
	}
}

func validBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return "", eris.Wrap(ErrInvalidEvent, "message body is empty")
	case utf8.RuneCountInString(body) > MaxBodyLength:
		return "", eris.Wrapf(ErrInvalidEvent, "message body exceeds %d characters", MaxBodyLength)
	}

	return body, nil
}

// Join makes name addressable for private messages.
func (c *ChatRouter) Join(name string) {
	c.members[name] = true
}

// Depart stops name from receiving new private messages. Existing private
// logs involving name are kept.
func (c *ChatRouter) Depart(name string) {
	delete(c.members, name)
}

func (c *ChatRouter) isMember(name string) bool {
	return c.members[name]
}

func (c *ChatRouter) SendPublic(sender, body string, now time.Time) (Message, error) {
	body, err := validBody(body)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		Sender:    sender,
		Body:      body,
		Timestamp: now,
	}
	c.public.append(msg)

	return msg, nil
}

func (c *ChatRouter) SendPrivate(sender, recipient, body string, now time.Time) (Message, error) {
	if recipient == "" || recipient == sender {
		return Message{}, eris.Wrap(ErrInvalidEvent, "private messages need another participant as recipient")
	}

	body, err := validBody(body)
	if err != nil {
		return Message{}, err
	}

	if !c.members[recipient] {
		return Message{}, eris.Wrapf(ErrRecipientNotFound, "%q", recipient)
	}

	msg := Message{
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		Timestamp: now,
	}

	key := newPairKey(sender, recipient)
	log, ok := c.private[key]
	if !ok {
		log = &messageLog{window: c.window}
		c.private[key] = log
	}
	log.append(msg)

	return msg, nil
}

// PublicHistory is a point-in-time copy of the public log.
func (c *ChatRouter) PublicHistory() []Message {
	return c.public.snapshot()
}

// PrivateHistory returns the log shared by name and peer, empty if they
// never talked.
func (c *ChatRouter) PrivateHistory(name, peer string) []Message {
	log, ok := c.private[newPairKey(name, peer)]
	if !ok {
		return []Message{}
	}

	return log.snapshot()
}
