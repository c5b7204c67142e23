package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(10 * time.Millisecond)
	return c.t
}

func TestTracker_RecordsAndAverages(t *testing.T) {
	clock := &stepClock{t: time.Unix(0, 0)}
	tt := NewTracker()
	tt.now = clock.now

	for i := 0; i < 3; i++ {
		span := tt.StartTiming("median")
		assert.Equal(t, 10*time.Millisecond, tt.EndTiming(span))
	}

	assert.Len(t, tt.GetTimings("median"), 3)
	assert.Equal(t, 10*time.Millisecond, tt.GetAverageTime("median"))
	assert.Zero(t, tt.GetAverageTime("canny"))

	summaries := tt.Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, "median", summaries[0].Operation)
	assert.Equal(t, 3, summaries[0].Count)
	assert.Equal(t, 30*time.Millisecond, summaries[0].Total)
}

func TestTracker_DisabledAndReset(t *testing.T) {
	tt := NewTracker()
	tt.SetEnabled(false)
	tt.EndTiming(tt.StartTiming("a"))
	assert.Nil(t, tt.GetTimings("a"))

	tt.SetEnabled(true)
	tt.EndTiming(tt.StartTiming("a"))
	tt.EndTiming(tt.StartTiming("b"))
	tt.Reset("a")
	assert.Nil(t, tt.GetTimings("a"))
	assert.Len(t, tt.GetTimings("b"), 1)

	tt.Reset("")
	assert.Empty(t, tt.Summaries())
}
