package arena

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArenaResolveWins(t *testing.T) {
	a := New[string]()
	var fired int32

	a.Arm("k1", 50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	assert.True(t, a.Resolve("k1"))
	assert.Equal(t, 0, a.Len())

	// The timer must not fire after a successful resolve.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	// Second resolve loses.
	assert.False(t, a.Resolve("k1"))
}

func TestArenaTimerWins(t *testing.T) {
	a := New[string]()
	fired := make(chan struct{})

	a.Arm("k1", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.Equal(t, 0, a.Len())
	assert.False(t, a.Resolve("k1"))
}

func TestArenaRearmReplacesTimer(t *testing.T) {
	a := New[string]()
	var first, second int32

	a.Arm("k1", 20*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	a.Arm("k1", 40*time.Millisecond, func() { atomic.AddInt32(&second, 1) })
	assert.Equal(t, 1, a.Len())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
	assert.Equal(t, 0, a.Len())
}

func TestArenaIndependentKeys(t *testing.T) {
	a := New[string]()
	a.Arm("k1", time.Minute, func() {})
	a.Arm("k2", time.Minute, func() {})
	assert.Equal(t, 2, a.Len())

	assert.True(t, a.Resolve("k1"))
	assert.Equal(t, 1, a.Len())
	assert.True(t, a.Resolve("k2"))
	assert.Equal(t, 0, a.Len())
}
