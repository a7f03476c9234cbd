/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package coordinator

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const maxDisplayNameLength = 32

var displayNameRegex = regexp.MustCompile(`^[\p{L}\p{N}_\- ]+$`)

// Connection is a live transport bound to a display name.
type Connection struct {
	ID          string    `json:"connectionId"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// NormalizeDisplayName trims name and reports whether the result is usable.
func NormalizeDisplayName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxDisplayNameLength {
		return name, false
	}

	return name, displayNameRegex.MatchString(name)
}

// Registry owns the connection to identity bindings.
type Registry struct {
	byID   map[string]*Connection
	byName map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byName: make(map[string]string),
	}
}

// Register binds name to the connection. It reports true on the first
// successful binding and false when the same binding already exists.
func (r *Registry) Register(id, name, avatar string, now time.Time) (bool, error) {
	if id == "" || name == "" {
		return false, eris.Wrap(ErrInvalidEvent, "connection id and display name are required")
	}

	if c, ok := r.byID[id]; ok {
		if c.DisplayName == name {
			return false, nil
		}

		return false, eris.Wrapf(ErrInvariantViolation, "connection %s is already bound to %q", id, c.DisplayName)
	}

	if owner, ok := r.byName[name]; ok && owner != id {
		return false, eris.Wrapf(ErrDuplicateName, "%q", name)
	}

	r.byID[id] = &Connection{
		ID:          id,
		DisplayName: name,
		Avatar:      avatar,
		ConnectedAt: now,
	}
	r.byName[name] = id

	return true, nil
}

// Unregister removes the binding. The second call for the same id is a no-op.
func (r *Registry) Unregister(id string) (Connection, bool) {
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}

	delete(r.byID, id)
	if r.byName[c.DisplayName] == id {
		delete(r.byName, c.DisplayName)
	}

	return *c, true
}

func (r *Registry) Resolve(name string) (string, error) {
	id, ok := r.byName[name]
	if !ok {
		return "", eris.Wrapf(ErrNotFound, "display name %q", name)
	}

	return id, nil
}

func (r *Registry) Lookup(id string) (Connection, bool) {
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}

	return *c, true
}

// Live reports whether id is currently registered.
func (r *Registry) Live(id string) bool {
	_, ok := r.byID[id]

	return ok
}

// Names returns the bound display names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Connections returns every live connection ordered by connect time.
func (r *Registry) Connections() []Connection {
	conns := make([]Connection, 0, len(r.byID))
	for _, c := range r.byID {
		conns = append(conns, *c)
	}
	sort.Slice(conns, func(i, j int) bool {
		if conns[i].ConnectedAt.Equal(conns[j].ConnectedAt) {
			return conns[i].DisplayName < conns[j].DisplayName
		}
		return conns[i].ConnectedAt.Before(conns[j].ConnectedAt)
	})

	return conns
}

func (r *Registry) Len() int {
	return len(r.byID)
}
