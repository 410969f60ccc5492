package devctrl

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogFiresOnceAfterTimeout(t *testing.T) {
	var fired atomic.Int32
	wd := NewWatchdog(50*time.Millisecond, func() { fired.Add(1) })

	wd.Reset()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdogResetPostponesExpiry(t *testing.T) {
	var fired atomic.Int32
	wd := NewWatchdog(80*time.Millisecond, func() { fired.Add(1) })

	wd.Reset()
	for i := 0; i < 4; i++ {
		time.Sleep(40 * time.Millisecond)
		wd.Reset()
	}
	assert.Equal(t, int32(0), fired.Load())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdogStopDisarms(t *testing.T) {
	var fired atomic.Int32
	wd := NewWatchdog(50*time.Millisecond, func() { fired.Add(1) })

	wd.Reset()
	wd.Stop()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	// stop without a prior reset is a no-op
	wd.Stop()
}
