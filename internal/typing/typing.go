// Package typing holds the ephemeral set of identities currently typing in each scope.
// Entries expire after a fixed timeout so that a client which vanishes
// mid-sentence does not leave a permanent indicator behind.
package typing

import (
	"sort"
	"time"

	"github.com/practable/teamchat/internal/scope"
)

// DefaultTimeout is how long a typing=true signal is honoured without refresh
const DefaultTimeout = 6 * time.Second

// Tracker maps each scope to the identities typing in it, with expiry times.
// It is not safe for concurrent use; the hub serialises all access.
type Tracker struct {

	// Entries holds expiry times by scope then identity
	Entries map[scope.Scope]map[string]time.Time

	timeout time.Duration
}

// New returns a pointer to an empty Tracker using the default timeout
func New() *Tracker {
	return &Tracker{
		Entries: make(map[scope.Scope]map[string]time.Time),
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the expiry window for typing entries
func (t *Tracker) WithTimeout(timeout time.Duration) *Tracker {
	t.timeout = timeout
	return t
}

// Timeout returns the expiry window
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Set inserts or refreshes the entry for (s, identity) when typing is true,
// and deletes it when false. It reports whether the identity set for s changed;
// refreshing an existing entry is not a change.
func (t *Tracker) Set(s scope.Scope, identity string, typing bool, now time.Time) bool {

	if identity == "" {
		return false
	}

	entries, ok := t.Entries[s]

	if !typing {
		if !ok {
			return false
		}
		if _, ok := entries[identity]; !ok {
			return false
		}
		t.delete(s, identity)
		return true
	}

	if !ok {
		entries = make(map[string]time.Time)
		t.Entries[s] = entries
	}

	_, existed := entries[identity]
	entries[identity] = now.Add(t.timeout)

	return !existed
}

// Expire removes every entry whose expiry is not after now,
// returning the scopes whose identity set changed
func (t *Tracker) Expire(now time.Time) []scope.Scope {

	changed := []scope.Scope{}

	for s, entries := range t.Entries {
		stale := []string{}
		for identity, exp := range entries {
			if !exp.After(now) {
				stale = append(stale, identity)
			}
		}
		for _, identity := range stale {
			t.delete(s, identity)
		}
		if len(stale) > 0 {
			changed = append(changed, s)
		}
	}

	sortScopes(changed)

	return changed
}

// ClearIdentity removes identity from every scope, returning the scopes that changed
func (t *Tracker) ClearIdentity(identity string) []scope.Scope {

	changed := []scope.Scope{}

	for s, entries := range t.Entries {
		if _, ok := entries[identity]; ok {
			changed = append(changed, s)
		}
	}

	for _, s := range changed {
		t.delete(s, identity)
	}

	sortScopes(changed)

	return changed
}

// Typing returns the sorted identities typing in s at now.
// Entries past their expiry are left out even if not yet swept.
func (t *Tracker) Typing(s scope.Scope, now time.Time) []string {

	identities := []string{}

	for identity, exp := range t.Entries[s] {
		if exp.After(now) {
			identities = append(identities, identity)
		}
	}

	sort.Strings(identities)

	return identities
}

// IsTyping returns true if identity has a live entry in s
func (t *Tracker) IsTyping(s scope.Scope, identity string) bool {
	_, ok := t.Entries[s][identity]
	return ok
}

// delete is for internal use only; prunes empty scopes
func (t *Tracker) delete(s scope.Scope, identity string) {
	entries, ok := t.Entries[s]
	if !ok {
		return
	}
	delete(entries, identity)
	if len(entries) == 0 {
		delete(t.Entries, s)
	}
}

func sortScopes(scopes []scope.Scope) {
	sort.Slice(scopes, func(i, j int) bool {
		return scopes[i].String() < scopes[j].String()
	})
}
