// Package limit supports enforcing a minimum interval between
// accepted chat messages from each identity
package limit

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the minimum gap between two accepted sends by one identity
const DefaultInterval = 500 * time.Millisecond

// Limit represents a rate limit store. The cadence budget is shared by
// every scope an identity sends to.
// It is not safe for concurrent use; the hub serialises all access.
type Limit struct {

	// last maps identity to the time of its last accepted send
	last map[string]time.Time

	// minimum gap between accepted sends
	interval time.Duration
}

// New creates a new Limit with the default interval
func New() *Limit {
	return &Limit{
		make(map[string]time.Time),
		DefaultInterval,
	}
}

// WithInterval sets the minimum interval between accepted sends; zero disables limiting
func (l *Limit) WithInterval(interval time.Duration) *Limit {
	l.interval = interval
	return l
}

// Interval returns the minimum interval between accepted sends
func (l *Limit) Interval() time.Duration {
	return l.interval
}

// TryAccept returns true, and records now, if identity's last accepted send was at
// least the interval ago. A rejected send leaves the stored time untouched.
func (l *Limit) TryAccept(identity string, now time.Time) bool {

	if l.interval <= 0 {
		return true
	}

	last, ok := l.last[identity]

	// a clock stepping backwards gives a negative gap, so the stored time stays monotonic
	if ok && now.Sub(last) < l.interval {
		log.WithFields(log.Fields{"identity": identity, "gap": now.Sub(last).String(), "interval": l.interval.String()}).Trace("limit.TryAccept(): denied")
		return false
	}

	l.last[identity] = now

	return true
}

// Prune forgets identities whose last accepted send is at least an interval old,
// since their next send would be accepted anyway
func (l *Limit) Prune(now time.Time) int {

	stale := []string{}

	for who, last := range l.last {
		if now.Sub(last) >= l.interval {
			stale = append(stale, who)
		}
	}

	for _, who := range stale {
		delete(l.last, who)
	}

	log.WithFields(log.Fields{"pruned": len(stale), "remaining": len(l.last)}).Trace("limit.Prune()")

	return len(stale)
}

// Size returns the number of identities currently tracked
func (l *Limit) Size() int {
	return len(l.last)
}
