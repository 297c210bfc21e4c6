package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestRealClockSince(t *testing.T) {
	c := RealClock{}
	start := time.Now().Add(-time.Second)
	assert.GreaterOrEqual(t, c.Since(start), time.Second)
}

func TestMockClockSleepRecordsAndAdvances(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(70 * time.Microsecond)
	c.Sleep(350 * time.Microsecond)

	assert.Equal(t, []time.Duration{70 * time.Microsecond, 350 * time.Microsecond}, c.Sleeps())
	assert.Equal(t, 420*time.Microsecond, c.TotalSlept())
	assert.Equal(t, start.Add(420*time.Microsecond), c.Now())
}

func TestMockClockSetAndSince(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Set(start.Add(time.Minute))
	assert.Equal(t, time.Minute, c.Since(start))
}
