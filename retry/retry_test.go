package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheme_MonotonicAndSaturates(t *testing.T) {
	s := New()

	want := []time.Duration{
		100 * time.Millisecond,
		1 * time.Second,
		3 * time.Second,
		5 * time.Second,
		7 * time.Second,
		11 * time.Second,
		15 * time.Second,
		15 * time.Second, // saturates past the end of the ladder
		15 * time.Second,
	}

	var prev time.Duration
	for i, w := range want {
		got := s.Next()
		assert.Equal(t, w, got, "step %d", i)
		assert.GreaterOrEqual(t, got, prev, "sequence must be non-decreasing")
		prev = got
	}
}

func TestScheme_ResetRestartsAtFirstStep(t *testing.T) {
	s := New()
	s.Next()
	s.Next()
	s.Next()

	s.Reset()
	assert.Equal(t, 100*time.Millisecond, s.Next())
}

func TestScheme_ResetBeforeAnyNext(t *testing.T) {
	s := New()
	s.Reset()
	assert.Equal(t, 100*time.Millisecond, s.Next())
}
