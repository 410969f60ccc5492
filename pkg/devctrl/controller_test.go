package devctrl

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConfig() ControllerConfig {
	return ControllerConfig{
		Name: "testcam",
		Parameters: []Parameter{
			{Name: "gain", Value: 2.0},
			{Name: "exposuretime", Value: 0.5},
		},
		CommandTimeout:  300 * time.Millisecond,
		SettleDelay:     20 * time.Millisecond,
		VerifyDelay:     10 * time.Millisecond,
		InitTimeout:     time.Second,
		ConnectTimeout:  300 * time.Millisecond,
		ProbeTimeout:    300 * time.Millisecond,
		WakeTimeout:     400 * time.Millisecond,
		RetryDelay:      50 * time.Millisecond,
		IdleWait:        20 * time.Millisecond,
		WatchdogTimeout: 600 * time.Millisecond,
		StatePollPeriod: 30 * time.Millisecond,
	}
}

func startController(t *testing.T, sim *SimTransport, cfg ControllerConfig) *Controller {
	t.Helper()
	ctrl := NewController(zap.NewNop(), cfg, func() (Transport, error) {
		return sim, nil
	})
	assert.NoError(t, ctrl.Start())
	t.Cleanup(ctrl.Stop)
	return ctrl
}

func TestControllerReachesRunning(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())

	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State() == StateRunning
	}))
	// init chain wrote both parameters and started acquisition
	assert.Equal(t, 1, sim.Writes("gain"))
	assert.Equal(t, 1, sim.Writes("exposuretime"))
	assert.GreaterOrEqual(t, sim.Invocations("start"), 1)
	assert.GreaterOrEqual(t, sim.Invocations("stop"), 1)
	assert.Equal(t, "RUNNING", sim.DeviceState())
}

func TestControllerInitFailureFallsBackToUnknown(t *testing.T) {
	sim := NewSimTransport()
	// the gain write never answers: the chain stalls and init times out
	sim.SetSilent("gain", true)
	cfg := testConfig()
	cfg.InitTimeout = 400 * time.Millisecond
	ctrl := startController(t, sim, cfg)

	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.Status() == "init timed out"
	}))
	assert.Equal(t, 0, sim.Invocations("start"))

	// once the device answers again, the controller recovers on its own
	sim.SetSilent("gain", false)
	assert.True(t, waitFor(t, 5*time.Second, func() bool {
		return ctrl.State().Operational()
	}))
}

func TestControllerStateListenersRunInOrder(t *testing.T) {
	sim := NewSimTransport()
	cfg := testConfig()
	ctrl := NewController(zap.NewNop(), cfg, func() (Transport, error) {
		return sim, nil
	})

	var mu sync.Mutex
	var order []string
	ctrl.AddStateListener(StateListenerFunc(func(s DeviceState, _ string) {
		mu.Lock()
		order = append(order, "a:"+s.String())
		mu.Unlock()
	}))
	ctrl.AddStateListener(StateListenerFunc(func(s DeviceState, _ string) {
		mu.Lock()
		order = append(order, "b:"+s.String())
		mu.Unlock()
	}))

	assert.NoError(t, ctrl.Start())
	defer ctrl.Stop()

	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "a:INIT", order[0])
	assert.Equal(t, "b:INIT", order[1])
}

func TestControllerWriteThenVerify(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State().Operational()
	}))

	v, err := ctrl.WriteThenVerify("gain", 7.5)
	assert.NoError(t, err)
	assert.Equal(t, 7.5, v.Value)
}

func TestControllerWriteThenVerifyFailureLeavesNoResidue(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State().Operational()
	}))

	sim.SetFault("gain", &Fault{Kind: FaultNotAllowed, Reason: "read only"})
	for i := 0; i < 3; i++ {
		_, err := ctrl.WriteThenVerify("gain", 9.0)
		assert.Error(t, err)
	}

	// the settle delays gated on the failed writes must not pile up in
	// the set; only the state poll and its pacing delay remain
	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		return ctrl.set.Len() <= 2
	}))

	sim.SetFault("gain", nil)
	v, err := ctrl.WriteThenVerify("gain", 9.0)
	assert.NoError(t, err)
	assert.Equal(t, 9.0, v.Value)
}

func TestControllerGetAttributeUsesCache(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State().Operational()
	}))

	// the state poll keeps the cache warm
	assert.True(t, waitFor(t, time.Second, func() bool {
		v, err := ctrl.GetAttribute("state")
		return err == nil && v != nil
	}))
	v, err := ctrl.GetAttribute("exposuretime")
	assert.NoError(t, err)
	assert.Equal(t, 0.5, v.Value)
}

func TestControllerPolledAttributeDeliversUpdates(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State().Operational()
	}))

	var updates sync.Map
	var count int
	var mu sync.Mutex
	ctrl.AddPolledAttribute("gain", 30*time.Millisecond, func(v *AttributeValue) {
		updates.Store("last", v)
		mu.Lock()
		count++
		mu.Unlock()
	})

	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3
	}))
	last, ok := updates.Load("last")
	assert.True(t, ok)
	assert.Equal(t, "gain", last.(*AttributeValue).Name)
}

func TestControllerWatchdogExpiryDropsToUnknown(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State() == StateRunning
	}))

	// the device goes mute: polls stop completing and the watchdog fires
	sim.SetSilent("state", true)
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State() == StateUnknown
	}))

	// and recovers once the device answers again
	sim.SetSilent("state", false)
	assert.True(t, waitFor(t, 5*time.Second, func() bool {
		return ctrl.State().Operational()
	}))
}

func TestControllerRestartsIdleDevice(t *testing.T) {
	sim := NewSimTransport()
	ctrl := startController(t, sim, testConfig())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State() == StateRunning
	}))

	starts := sim.Invocations("start")
	// acquisition stopped behind the controller's back
	sim.SetDeviceState("ON")
	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		return sim.Invocations("start") > starts
	}))
	assert.True(t, waitFor(t, 2*time.Second, func() bool {
		return sim.DeviceState() == "RUNNING"
	}))
}

func TestControllerStopDisconnects(t *testing.T) {
	sim := NewSimTransport()
	cfg := testConfig()
	ctrl := NewController(zap.NewNop(), cfg, func() (Transport, error) {
		return sim, nil
	})
	assert.NoError(t, ctrl.Start())
	assert.True(t, waitFor(t, 3*time.Second, func() bool {
		return ctrl.State().Operational()
	}))

	ctrl.Stop()
	assert.Equal(t, StateUnknown, ctrl.State())
	assert.Equal(t, "stopped", ctrl.Status())

	// no polls survive the stop
	reads := sim.Writes("gain")
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, reads, sim.Writes("gain"))
}
