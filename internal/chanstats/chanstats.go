/*
   chanstats calculates statistics for message fan-out
   Copyright (C) 2019 Timothy Drysdale <timothy.d.drysdale@gmail.com>

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as
   published by the Free Software Foundation, either version 3 of the
   License, or (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package chanstats

import (
	"time"

	"github.com/eclesh/welford"
)

// ChanStats represents recorded relay statistics.
// It is not safe for concurrent use; the hub serialises all access.
type ChanStats struct {
	StartedAt time.Time

	// Last is when a message was last relayed
	Last time.Time

	// Relayed counts messages pushed live, by scope kind
	Relayed map[string]uint64

	// Pushes counts individual deliveries to connections
	Pushes uint64

	// Unreachable counts deliveries skipped because the target could not take them
	Unreachable uint64

	// RateLimited counts sends dropped by the rate limiter
	RateLimited uint64

	// Rejected counts sends refused by the store or by validation
	Rejected uint64

	// Evicted counts connections dropped because their send buffer was full
	Evicted uint64

	// Fanout is the number of target connections per relayed message
	Fanout *welford.Stats

	// Persist is the persistence call duration, in seconds
	Persist *welford.Stats

	// Dt is the interval between relayed messages, in seconds
	Dt *welford.Stats
}

// Report represents overall statistics for the relay
type Report struct {
	Started     string            `json:"started"`
	Last        string            `json:"last"`
	Relayed     map[string]uint64 `json:"relayed"`
	Pushes      uint64            `json:"pushes"`
	Unreachable uint64            `json:"unreachable"`
	RateLimited uint64            `json:"rateLimited"`
	Rejected    uint64            `json:"rejected"`
	Evicted     uint64            `json:"evicted"`
	Fanout      WelfordStats      `json:"fanout"`
	Persist     WelfordStats      `json:"persist"`
	Dt          WelfordStats      `json:"dt"`
}

// WelfordStats represents statistical values
type WelfordStats struct {
	Count    uint64  `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Stddev   float64 `json:"stddev"`
	Variance float64 `json:"variance"`
}

// New returns a pointer to new ChanStats struct with statistics initialised
func New() *ChanStats {
	c := &ChanStats{}
	c.StartedAt = time.Now()
	c.Relayed = make(map[string]uint64)
	c.Fanout = welford.New()
	c.Persist = welford.New()
	c.Dt = welford.New()
	return c
}

// RecordRelay records one relayed message of kind with the given fan-out and persistence time
func (c *ChanStats) RecordRelay(kind string, targets int, persist time.Duration, now time.Time) {

	if !c.Last.IsZero() {
		dt := now.Sub(c.Last)
		if dt < 24*time.Hour {
			c.Dt.Add(dt.Seconds())
		}
	}

	c.Last = now
	c.Relayed[kind]++
	c.Fanout.Add(float64(targets))
	c.Persist.Add(persist.Seconds())
}

// NewReport returns a snapshot of the statistics, safe to serialise
func NewReport(s *ChanStats) *Report {

	relayed := make(map[string]uint64)
	for k, v := range s.Relayed {
		relayed[k] = v
	}

	last := "never"
	if !s.Last.IsZero() {
		last = s.Last.String()
	}

	r := &Report{
		Started:     s.StartedAt.String(),
		Last:        last,
		Relayed:     relayed,
		Pushes:      s.Pushes,
		Unreachable: s.Unreachable,
		RateLimited: s.RateLimited,
		Rejected:    s.Rejected,
		Evicted:     s.Evicted,
		Fanout:      *NewWelford(s.Fanout),
		Persist:     *NewWelford(s.Persist),
		Dt:          *NewWelford(s.Dt),
	}
	return r
}

// NewWelford initialises a new statistics structure
func NewWelford(w *welford.Stats) *WelfordStats {
	r := &WelfordStats{
		Count:    w.Count(),
		Min:      w.Min(),
		Max:      w.Max(),
		Mean:     w.Mean(),
		Stddev:   w.Stddev(),
		Variance: w.Variance(),
	}
	return r

}
