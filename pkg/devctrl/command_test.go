package devctrl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestCommandWithoutConditionsIssuesOnStart(t *testing.T) {
	sim := NewSimTransport()
	cmd := NewCommand(zap.NewNop(), sim, OpRead, "gain", nil).WithTimeout(time.Second)

	cmd.Start()
	assert.True(t, waitFor(t, time.Second, cmd.Done))
	assert.False(t, cmd.Pending())
	assert.False(t, cmd.TimedOut())
	assert.Equal(t, HealthOK, cmd.Health())
	assert.Equal(t, 1.0, cmd.Result().Value)
}

func TestCommandGatedOnAnotherCommand(t *testing.T) {
	sim := NewSimTransport()
	logger := zap.NewNop()
	sim.SetSilent("gain", true)

	first := NewCommand(logger, sim, OpRead, "gain", nil).WithTimeout(time.Second)
	second := NewCommand(logger, sim, OpWrite, "exposuretime", 2.5).WithTimeout(time.Second)
	second.Gate(first, nil)

	first.Start()
	second.Start()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, second.Done())
	assert.Equal(t, 0, sim.Writes("exposuretime"))

	sim.SetSilent("gain", false)
	first.Start()
	assert.True(t, waitFor(t, time.Second, second.Done))
	assert.Equal(t, 1, sim.Writes("exposuretime"))
}

func TestCommandGateWithValueCondition(t *testing.T) {
	sim := NewSimTransport()
	logger := zap.NewNop()

	read := NewCommand(logger, sim, OpRead, "gain", nil).WithTimeout(time.Second)
	gated := NewCommand(logger, sim, OpExecute, "start", nil).WithTimeout(time.Second)
	gated.Gate(read, ValidRange(100, 200))

	read.Start()
	gated.Start()
	assert.True(t, waitFor(t, time.Second, read.Done))
	time.Sleep(50 * time.Millisecond)
	// gain is 1.0, outside [100, 200): the gate must hold
	assert.False(t, gated.Done())
	assert.Equal(t, 0, sim.Invocations("start"))
}

func TestCommandGateOnAttributeRef(t *testing.T) {
	sim := NewSimTransport()
	logger := zap.NewNop()

	ref := NewAttributeRef()
	cmd := NewCommand(logger, sim, OpExecute, "start", nil).WithTimeout(time.Second)
	cmd.Gate(ref, OneOf("ON"))

	// never-produced attribute fulfills the gate immediately
	cmd.Start()
	assert.True(t, waitFor(t, time.Second, cmd.Done))

	blocked := NewCommand(logger, sim, OpExecute, "stop", nil).WithTimeout(time.Second)
	blocked.Gate(ref, OneOf("ON"))
	ref.Set(attr("state", "FAULT"))
	blocked.Start()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, blocked.Done())

	ref.Set(attr("state", "ON"))
	assert.True(t, waitFor(t, time.Second, blocked.Done))
}

func TestCommandFaultKeepsPendingAndDegradesHealth(t *testing.T) {
	sim := NewSimTransport()
	logger := zap.NewNop()
	sim.SetFault("gain", &Fault{Kind: FaultNotAllowed, Reason: "read only"})

	cmd := NewCommand(logger, sim, OpWrite, "gain", 3.0).WithTimeout(300 * time.Millisecond)
	cmd.Start()

	assert.True(t, waitFor(t, time.Second, func() bool { return cmd.Health() == HealthAlarm }))
	assert.True(t, cmd.Pending())
	assert.False(t, cmd.Done())

	// the timeout delivers the final verdict
	assert.True(t, waitFor(t, time.Second, cmd.TimedOut))
	assert.False(t, cmd.Done())
	assert.False(t, cmd.Pending())
}

func TestCommandConnectivityFaultIsUnknown(t *testing.T) {
	sim := NewSimTransport()
	sim.SetFault("gain", &Fault{Kind: FaultCannotConnect})

	cmd := NewCommand(zap.NewNop(), sim, OpRead, "gain", nil).WithTimeout(time.Second)
	cmd.Start()
	assert.True(t, waitFor(t, time.Second, func() bool { return cmd.Health() == HealthUnknown }))
}

func TestCommandTimeoutKeepsFaultDiagnosis(t *testing.T) {
	sim := NewSimTransport()
	sim.SetFault("gain", &Fault{Kind: FaultNotAllowed, Reason: "read only"})

	cmd := NewCommand(zap.NewNop(), sim, OpWrite, "gain", 3.0).WithTimeout(50 * time.Millisecond)
	cmd.Start()
	assert.True(t, waitFor(t, time.Second, cmd.TimedOut))
	// the fault text survives the timeout verdict
	assert.Contains(t, cmd.Status(), "write gain failed")

	sim.SetFault("exposuretime", &Fault{Kind: FaultCannotConnect})
	mute := NewCommand(zap.NewNop(), sim, OpRead, "exposuretime", nil).WithTimeout(50 * time.Millisecond)
	mute.Start()
	assert.True(t, waitFor(t, time.Second, mute.TimedOut))
	assert.Equal(t, HealthUnknown, mute.Health())
}

func TestCommandGateTriggerConsumedOnce(t *testing.T) {
	sim := NewSimTransport()
	sim.SetLatency(30 * time.Millisecond)
	ref := NewAttributeRef()

	cmd := NewCommand(zap.NewNop(), sim, OpExecute, "start", nil).WithTimeout(time.Second)
	cmd.Gate(ref, OneOf("ON"))
	cmd.Start()

	ref.Set(attr("state", "ON"))
	ref.Set(attr("state", "ON"))
	assert.True(t, waitFor(t, time.Second, cmd.Done))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, sim.Invocations("start"))
}

func TestCommandTimeoutAndCompletionExclusive(t *testing.T) {
	sim := NewSimTransport()
	sim.SetSilent("gain", true)

	cmd := NewCommand(zap.NewNop(), sim, OpRead, "gain", nil).WithTimeout(50 * time.Millisecond)
	cmd.Start()
	assert.True(t, waitFor(t, time.Second, cmd.TimedOut))

	// a straggler result after the timeout must be ignored
	cmd.onResult(attr("gain", 1.0), nil)
	assert.False(t, cmd.Done())
	assert.True(t, cmd.TimedOut())
}

func TestCommandDelay(t *testing.T) {
	cmd := NewDelay(zap.NewNop(), 50*time.Millisecond)
	cmd.Start()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, cmd.Done())
	assert.True(t, waitFor(t, time.Second, cmd.Done))
	assert.Nil(t, cmd.Result())
}

func TestCommandCancelIsIdempotentAndSilent(t *testing.T) {
	sim := NewSimTransport()
	sim.SetSilent("gain", true)

	var events int
	cmd := NewCommand(zap.NewNop(), sim, OpRead, "gain", nil).WithTimeout(50 * time.Millisecond)
	cmd.Subscribe(ListenerFunc(func(*Command) { events++ }))

	cmd.Start()
	cmd.Cancel()
	cmd.Cancel()
	time.Sleep(100 * time.Millisecond)
	assert.False(t, cmd.TimedOut())
	assert.False(t, cmd.Done())
	assert.Equal(t, 0, events)
}

func TestCommandListenerNotifiedOnCompletion(t *testing.T) {
	sim := NewSimTransport()
	done := make(chan *Command, 1)

	cmd := NewCommand(zap.NewNop(), sim, OpRead, "gain", nil).WithTimeout(time.Second)
	cmd.Subscribe(ListenerFunc(func(c *Command) {
		select {
		case done <- c:
		default:
		}
	}))
	cmd.Start()
	select {
	case c := <-done:
		assert.True(t, c.Done())
	case <-time.After(time.Second):
		t.Fatal("listener not notified")
	}
}
