// Package registry maps live connections to the identity registered on them
package registry

import (
	"sort"
)

// Registry holds a bidirectional index of identities and connections.
// It is not safe for concurrent use; the hub serialises all access.
type Registry struct {

	// ConnectionsByIdentity holds the set of live connections for each identity
	ConnectionsByIdentity map[string]map[string]struct{}

	// IdentityByConnection helps us delete efficiently, by telling us which set the connection is in
	IdentityByConnection map[string]string
}

// New returns a pointer to an empty Registry
func New() *Registry {
	return &Registry{
		make(map[string]map[string]struct{}),
		make(map[string]string),
	}
}

// Register attaches identity to conn, detaching any previous identity first.
// It returns the previous identity (if any), and whether anything changed.
// Registering the same identity again on the same connection is a no-op.
func (r *Registry) Register(conn, identity string) (string, bool) {

	if conn == "" || identity == "" {
		return "", false
	}

	previous, ok := r.IdentityByConnection[conn]

	if ok && previous == identity {
		return previous, false
	}

	if ok {
		r.detach(conn, previous)
	}

	if _, ok := r.ConnectionsByIdentity[identity]; !ok {
		r.ConnectionsByIdentity[identity] = make(map[string]struct{})
	}

	r.ConnectionsByIdentity[identity][conn] = struct{}{}
	r.IdentityByConnection[conn] = identity

	return previous, true
}

// Remove detaches conn from its identity. It reports the identity, whether this was
// the identity's last connection, and whether the connection was registered at all.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(conn string) (string, bool, bool) {

	identity, ok := r.IdentityByConnection[conn]

	if !ok {
		return "", false, false
	}

	last := r.detach(conn, identity)

	return identity, last, true
}

// detach is for internal use only; returns true if identity went offline
func (r *Registry) detach(conn, identity string) bool {

	delete(r.IdentityByConnection, conn)

	conns, ok := r.ConnectionsByIdentity[identity]
	if !ok {
		return true
	}

	delete(conns, conn)

	// empty sets are pruned immediately
	if len(conns) == 0 {
		delete(r.ConnectionsByIdentity, identity)
		return true
	}

	return false
}

// ConnectionsFor returns the live connections for identity, or an empty slice
func (r *Registry) ConnectionsFor(identity string) []string {

	conns := []string{}

	for c := range r.ConnectionsByIdentity[identity] {
		conns = append(conns, c)
	}

	sort.Strings(conns)

	return conns
}

// IdentityFor returns the identity registered on conn
func (r *Registry) IdentityFor(conn string) (string, bool) {
	identity, ok := r.IdentityByConnection[conn]
	return identity, ok
}

// IsOnline returns true if identity has at least one live connection
func (r *Registry) IsOnline(identity string) bool {
	_, ok := r.ConnectionsByIdentity[identity]
	return ok
}

// Online returns the sorted identities that have at least one live connection
func (r *Registry) Online() []string {

	online := []string{}

	for identity := range r.ConnectionsByIdentity {
		online = append(online, identity)
	}

	sort.Strings(online)

	return online
}

// Count returns the number of registered connections
func (r *Registry) Count() int {
	return len(r.IdentityByConnection)
}
