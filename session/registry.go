// Package session keeps one live broker session per user identity and
// resolves new ones through a cache, stored-token, full-login chain.
package session

import (
	"strings"
	"sync"

	"github.com/verstige-os/copydesk/broker"
)

// Identity names one broker login. Email and Server are part of the
// key because a user may hold accounts on several servers of the same
// broker.
type Identity struct {
	UserID string
	Broker string
	Email  string
	Server string
}

// Key flattens the identity into the registry map key.
func (id Identity) Key() string {
	return strings.Join([]string{id.UserID, id.Broker, id.Email, id.Server}, "|")
}

// Registry is the in-process session cache. Sessions stay until
// evicted; an entry going stale is detected by the next auth failure,
// not by a TTL.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]broker.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]broker.Session)}
}

// Get returns the cached session for the identity, if any.
func (r *Registry) Get(id Identity) (broker.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id.Key()]
	return s, ok
}

// Put replaces the cached session for the identity.
func (r *Registry) Put(id Identity, s broker.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id.Key()] = s
}

// Evict drops the cached session. Called after an auth failure so the
// next resolve starts from stored credentials.
func (r *Registry) Evict(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id.Key())
}

// Len reports the number of live sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
