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
	c.AfterFunc(300*time.Millisecond, func() { fired++ })
	require.Equal(t, 1, c.Pending())

	c.Advance(299 * time.Millisecond)
	assert.Equal(t, 0, fired)

	c.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestFake_TimerStop(t *testing.T) {
	c := Fake(epoch)

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFake_TickerFiresPerInterval(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(100 * time.Millisecond)

	c.Advance(100 * time.Millisecond)
	select {
	case <-ticker.C:
	default:
		t.Fatal("expected a tick")
	}

	ticker.Stop()
	c.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker must not tick")
	default:
	}
	assert.Equal(t, 0, c.Pending())
}

func TestFake_WaitForTimers(t *testing.T) {
	c := Fake(epoch)

	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Second, func() {})
		close(done)
	}()

	c.WaitForTimers(1)
	<-done
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, epoch, c.Now())
}
