package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(10*time.Second, func() { fired++ })

	c.Advance(9 * time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)

	c.Advance(time.Hour)
	assert.Equal(t, 1, fired, "one-shot timer must not refire")
}

func TestFake_TimerStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, c.PendingCount())
}

func TestFake_TickerDropsOverflow(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(5 * time.Second)

	select {
	case <-ticker.C:
	default:
		t.Fatal("expected a tick")
	}
	select {
	case <-ticker.C:
		t.Fatal("expected overflow ticks to be dropped")
	default:
	}
}

func TestFake_NowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(90 * time.Second)
	assert.Equal(t, epoch.Add(90*time.Second), c.Now())
}
