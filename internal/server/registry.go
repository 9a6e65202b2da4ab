package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrOriginMismatch is returned when a known agent name re-registers
	// from a different network origin.
	ErrOriginMismatch = errors.New("server: registration refused, origin mismatch")

	// ErrUnknownSession is returned for messages carrying an unknown
	// private id.
	ErrUnknownSession = errors.New("server: unknown session")
)

// Identity is one registered agent.
type Identity struct {
	Name      string
	PrivateID string // random, authenticates the agent, never shared
	PublicID  int64  // sequential, how other agents address this one
	Origin    string // network origin of the first registration
}

// Registry assigns and resolves agent identities. Names are stable across
// reconnects: re-registering an existing name from the same origin returns
// the original identity, while a different origin is refused so a second
// client cannot hijack an agent's id.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*Identity
	byPrivate map[string]*Identity
	byPublic  map[int64]*Identity
	nextID    int64
}

// NewRegistry creates an empty registry. Public ids start at 1; id 0 is
// the exchange itself.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*Identity),
		byPrivate: make(map[string]*Identity),
		byPublic:  make(map[int64]*Identity),
	}
}

// Register creates or resumes the identity for name. The returned bool is
// true when the agent is new.
func (r *Registry) Register(name, origin string) (Identity, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		if existing.Origin != origin {
			return Identity{}, false, ErrOriginMismatch
		}
		return *existing, false, nil
	}

	r.nextID++
	id := &Identity{
		Name:      name,
		PrivateID: uuid.New().String(),
		PublicID:  r.nextID,
		Origin:    origin,
	}
	r.byName[name] = id
	r.byPrivate[id.PrivateID] = id
	r.byPublic[id.PublicID] = id
	return *id, true, nil
}

// ByPrivate resolves a private id to its identity.
func (r *Registry) ByPrivate(privateID string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPrivate[privateID]
	if !ok {
		return Identity{}, ErrUnknownSession
	}
	return *id, nil
}

// ByPublic resolves a public id to its identity.
func (r *Registry) ByPublic(publicID int64) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPublic[publicID]
	if !ok {
		return Identity{}, ErrUnknownSession
	}
	return *id, nil
}

// All returns every registered identity.
func (r *Registry) All() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Identity, 0, len(r.byName))
	for _, id := range r.byName {
		out = append(out, *id)
	}
	return out
}
