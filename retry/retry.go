// Package retry implements the deterministic backoff cursor used by
// the event stream to space out reconnect attempts.
package retry

import "time"

// sequence is the fixed backoff ladder. Next()
// walks it forward and saturates at the final value; Reset() rewinds
// to "unset" so the following Next() call yields the first step.
var sequence = []time.Duration{
	100 * time.Millisecond,
	1 * time.Second,
	3 * time.Second,
	5 * time.Second,
	7 * time.Second,
	11 * time.Second,
	15 * time.Second,
}

// Scheme is a stateful cursor over sequence. It is not safe for
// concurrent use: a Scheme has exactly one owner
// (the event stream that created it).
type Scheme struct {
	index int  // current position in sequence
	unset bool // true before the first Next() call, and after Reset()
}

// New returns a Scheme whose first Next() call yields sequence[0].
func New() *Scheme {
	return &Scheme{unset: true}
}

// Next advances the cursor one step (saturating at the last entry)
// and returns the resulting delay.
func (s *Scheme) Next() time.Duration {
	if s.unset {
		s.unset = false
		s.index = 0
	} else if s.index < len(sequence)-1 {
		s.index++
	}
	return sequence[s.index]
}

// Reset returns the cursor to its pre-first-call state, so the
// following Next() again yields sequence[0]. The event stream calls
// this whenever a message is successfully decoded.
func (s *Scheme) Reset() {
	s.unset = true
	s.index = 0
}
