package devctrl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DeviceState is the controller's view of the remote device.
type DeviceState int

const (
	StateUnknown DeviceState = iota
	StateInit
	StateOn
	StateRunning
	StateStandby
	StateAlarm
	StateFault
	StateOff
)

func (s DeviceState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateOn:
		return "ON"
	case StateRunning:
		return "RUNNING"
	case StateStandby:
		return "STANDBY"
	case StateAlarm:
		return "ALARM"
	case StateFault:
		return "FAULT"
	case StateOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Operational reports whether the state belongs to the connected, initialized
// group where the device accepts work.
func (s DeviceState) Operational() bool {
	switch s {
	case StateOn, StateRunning, StateStandby:
		return true
	}
	return false
}

// StateListener observes controller state transitions. Listeners run
// synchronously, in registration order, on the goroutine that caused the
// transition.
type StateListener interface {
	OnDeviceState(state DeviceState, status string)
}

// StateListenerFunc adapts a function to the StateListener interface.
type StateListenerFunc func(state DeviceState, status string)

func (f StateListenerFunc) OnDeviceState(state DeviceState, status string) {
	f(state, status)
}

// Parameter is an attribute written and read back during initialization.
type Parameter struct {
	Name  string
	Value any
}

// ControllerConfig tunes one Controller. Zero durations get defaults from
// the original tuning of the camera controller.
type ControllerConfig struct {
	Name       string
	Parameters []Parameter

	StateAttribute string
	StartCommand   string
	StopCommand    string

	CommandTimeout  time.Duration
	SettleDelay     time.Duration
	VerifyDelay     time.Duration
	InitTimeout     time.Duration
	ConnectTimeout  time.Duration
	ProbeTimeout    time.Duration
	WakeTimeout     time.Duration
	RetryDelay      time.Duration
	IdleWait        time.Duration
	WatchdogTimeout time.Duration
	StatePollPeriod time.Duration

	// MapState translates the polled state attribute into a DeviceState.
	// ok=false readings are ignored. Defaults to string state names.
	MapState func(value *AttributeValue) (DeviceState, bool)
}

func (c *ControllerConfig) applyDefaults() {
	if c.StateAttribute == "" {
		c.StateAttribute = "state"
	}
	if c.StartCommand == "" {
		c.StartCommand = "start"
	}
	if c.StopCommand == "" {
		c.StopCommand = "stop"
	}
	def := func(d *time.Duration, v time.Duration) {
		if *d == 0 {
			*d = v
		}
	}
	def(&c.CommandTimeout, 2*time.Second)
	def(&c.SettleDelay, 500*time.Millisecond)
	def(&c.VerifyDelay, 100*time.Millisecond)
	def(&c.InitTimeout, 7*time.Second)
	def(&c.ConnectTimeout, 3*time.Second)
	def(&c.ProbeTimeout, 4*time.Second)
	def(&c.WakeTimeout, 4*time.Second)
	def(&c.RetryDelay, 1*time.Second)
	def(&c.IdleWait, 200*time.Millisecond)
	def(&c.WatchdogTimeout, 10*time.Second)
	def(&c.StatePollPeriod, 250*time.Millisecond)
	if c.MapState == nil {
		c.MapState = MapStateByName
	}
}

// MapStateByName maps string state readings ("ON", "RUNNING", ...) to
// DeviceState values.
func MapStateByName(v *AttributeValue) (DeviceState, bool) {
	s, ok := v.Value.(string)
	if !ok {
		return StateUnknown, false
	}
	for _, cand := range []DeviceState{
		StateOn, StateRunning, StateStandby, StateAlarm, StateFault, StateOff, StateInit,
	} {
		if cand.String() == s {
			return cand, true
		}
	}
	return StateUnknown, false
}

type polledAttr struct {
	name     string
	period   time.Duration
	onUpdate func(value *AttributeValue)
}

// Controller drives one remote device through the connection lifecycle:
// connect and probe while unknown, run the initialization chain, then keep
// the device observed through polled attributes and a completion watchdog.
// All transport work happens through commands in a CommandSet; the
// dispatcher goroutine only decides and waits.
type Controller struct {
	cfg    ControllerConfig
	logger *zap.Logger

	newTransport func() (Transport, error)

	mu        sync.Mutex
	state     DeviceState
	status    string
	attrs     map[string]*AttributeValue
	listeners []StateListener
	polled    []polledAttr
	tr        Transport

	set      *CommandSet
	watchdog *Watchdog

	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewController builds a controller. newTransport is invoked on every
// connection attempt; the controller owns and closes the returned handle.
func NewController(logger *zap.Logger, cfg ControllerConfig, newTransport func() (Transport, error)) *Controller {
	cfg.applyDefaults()
	c := &Controller{
		cfg:          cfg,
		logger:       logger.With(zap.String("controller", cfg.Name)),
		newTransport: newTransport,
		attrs:        map[string]*AttributeValue{},
		wake:         make(chan struct{}, 1),
	}
	c.set = NewCommandSet(c.logger, SetHooks{
		OnRead:         c.storeRead,
		OnStatus:       c.setStatus,
		OnSuggestState: c.suggestState,
		OnActivity:     c.onActivity,
	})
	c.watchdog = NewWatchdog(cfg.WatchdogTimeout, c.onWatchdogExpire)
	return c
}

// Start launches the dispatcher goroutine.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("controller already started")
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.dispatch(c.stopCh, c.doneCh)
	return nil
}

// Stop terminates the dispatcher and disconnects. Blocks until the
// dispatcher has exited.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()
	close(stopCh)
	<-doneCh
}

func (c *Controller) dispatch(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	c.logger.Info("dispatcher started")
	for {
		select {
		case <-stopCh:
			c.disconnect()
			c.setState(StateUnknown, "stopped")
			c.logger.Info("dispatcher stopped")
			return
		default:
		}
		switch c.State() {
		case StateUnknown:
			c.unknownHandler(stopCh)
		case StateInit:
			c.initHandler(stopCh)
		case StateOn, StateRunning, StateStandby:
			c.idleWait(stopCh)
		case StateFault, StateAlarm:
			c.idleWait(stopCh)
		case StateOff:
			c.idleWait(stopCh)
		}
	}
}

// unknownHandler connects a fresh transport and probes the state attribute.
// A successful probe promotes to INIT; anything else retries after a delay.
func (c *Controller) unknownHandler(stopCh chan struct{}) {
	c.disconnect()

	tr, err := c.newTransport()
	if err != nil {
		c.setStatus(fmt.Sprintf("connect failed: %s", err))
		c.sleep(c.cfg.RetryDelay, stopCh)
		return
	}
	c.mu.Lock()
	c.tr = tr
	c.mu.Unlock()

	connected := make(chan *Fault, 1)
	tr.Connect(func(fault *Fault) {
		connected <- fault
	})
	select {
	case fault := <-connected:
		if fault != nil {
			c.setStatus(fmt.Sprintf("connect failed: %s", fault.Error()))
			c.sleep(c.cfg.RetryDelay, stopCh)
			return
		}
	case <-time.After(c.cfg.ConnectTimeout):
		c.setStatus("connect timed out")
		c.sleep(c.cfg.RetryDelay, stopCh)
		return
	case <-stopCh:
		return
	}

	probe := NewCommand(c.logger, tr, OpRead, c.cfg.StateAttribute, nil).
		WithTimeout(c.cfg.ProbeTimeout)
	c.set.Add(probe)
	probe.Start()

	deadline := time.Now().Add(c.cfg.WakeTimeout)
	for !probe.Done() && !probe.TimedOut() && time.Now().Before(deadline) {
		if !c.waitWake(time.Until(deadline), stopCh) {
			return
		}
	}
	if probe.Done() {
		c.logger.Info("device reachable")
		c.setState(StateInit, "device reachable")
		return
	}
	c.setStatus("device not responding")
	c.sleep(c.cfg.RetryDelay, stopCh)
}

// initHandler runs the initialization chain: stop acquisition, let the
// device settle, write and read back each parameter strictly in order, then
// start. The whole chain is bounded by InitTimeout; on expiry everything is
// cancelled and the controller falls back to UNKNOWN.
func (c *Controller) initHandler(stopCh chan struct{}) {
	tr := c.transport()
	if tr == nil {
		c.setState(StateUnknown, "no transport")
		return
	}

	stop := NewCommand(c.logger, tr, OpExecute, c.cfg.StopCommand, nil).
		WithTimeout(c.cfg.CommandTimeout)
	settle := NewDelay(c.logger, c.cfg.SettleDelay)
	settle.Gate(stop, nil)
	chain := []*Command{stop, settle}

	var prev Source = settle
	for _, p := range c.cfg.Parameters {
		write := NewCommand(c.logger, tr, OpWrite, p.Name, p.Value).
			WithTimeout(c.cfg.CommandTimeout)
		write.Gate(prev, nil)
		read := NewCommand(c.logger, tr, OpRead, p.Name, nil).
			WithTimeout(c.cfg.CommandTimeout)
		read.Gate(write, nil)
		chain = append(chain, write, read)
		prev = read
	}

	start := NewCommand(c.logger, tr, OpExecute, c.cfg.StartCommand, nil).
		WithTimeout(c.cfg.CommandTimeout)
	start.Gate(prev, nil)
	chain = append(chain, start)

	for _, cmd := range chain {
		c.set.Add(cmd)
	}
	c.watchdog.Reset()
	for _, cmd := range chain {
		cmd.Start()
	}

	deadline := time.Now().Add(c.cfg.InitTimeout)
	for !start.Done() && time.Now().Before(deadline) && c.State() == StateInit {
		if !c.waitWake(time.Until(deadline), stopCh) {
			return
		}
	}
	if c.State() != StateInit {
		c.set.CancelAll()
		return
	}
	if !start.Done() {
		c.logger.Warn("init timed out")
		c.set.CancelAll()
		c.setState(StateUnknown, "init timed out")
		return
	}

	c.addPoll(tr, polledAttr{
		name:     c.cfg.StateAttribute,
		period:   c.cfg.StatePollPeriod,
		onUpdate: c.deviceStateChanged,
	})
	c.mu.Lock()
	polled := append([]polledAttr{}, c.polled...)
	c.mu.Unlock()
	for _, p := range polled {
		c.addPoll(tr, p)
	}

	c.logger.Info("init done")
	c.setState(StateOn, "init done")
}

func (c *Controller) idleWait(stopCh chan struct{}) {
	c.waitWake(c.cfg.IdleWait, stopCh)
}

// addPoll installs a recurrent read for one attribute.
func (c *Controller) addPoll(tr Transport, p polledAttr) {
	cmd := NewCommand(c.logger, tr, OpRead, p.name, nil).
		WithTimeout(c.cfg.CommandTimeout).
		WithRecurrence(p.period)
	if p.onUpdate != nil {
		onUpdate := p.onUpdate
		cmd.Subscribe(ListenerFunc(func(cmd *Command) {
			if cmd.Done() {
				if r := cmd.Result(); r != nil {
					onUpdate(r)
				}
			}
		}))
	}
	c.set.Add(cmd)
	cmd.Start()
}

// deviceStateChanged follows the polled state attribute. The controller
// state tracks the device; a device found idle (ON or STANDBY) while the
// controller expects acquisition gets a fresh start command.
func (c *Controller) deviceStateChanged(v *AttributeValue) {
	mapped, ok := c.cfg.MapState(v)
	if !ok {
		return
	}
	cur := c.State()
	if (mapped == StateOn || mapped == StateStandby) && cur.Operational() &&
		!c.set.HasPending(c.cfg.StartCommand) {
		if tr := c.transport(); tr != nil {
			restart := NewCommand(c.logger, tr, OpExecute, c.cfg.StartCommand, nil).
				WithTimeout(c.cfg.CommandTimeout)
			c.set.Add(restart)
			restart.Start()
		}
	}
	if mapped != cur && (cur.Operational() || cur == StateOff || cur == StateFault || cur == StateAlarm) {
		c.setState(mapped, fmt.Sprintf("device reported %s", mapped))
	}
}

// CommandSet hooks

func (c *Controller) storeRead(v *AttributeValue) {
	c.mu.Lock()
	c.attrs[v.Name] = v
	c.mu.Unlock()
	c.wakeUp()
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.wakeUp()
}

func (c *Controller) suggestState(health Health, status string) {
	switch health {
	case HealthUnknown:
		c.setState(StateUnknown, status)
	case HealthAlarm:
		if c.State().Operational() {
			c.setState(StateAlarm, status)
		}
	}
}

func (c *Controller) onActivity() {
	c.watchdog.Reset()
	c.wakeUp()
}

func (c *Controller) onWatchdogExpire() {
	c.logger.Warn("watchdog expired")
	c.setState(StateUnknown, "watchdog expired")
}

// setState transitions the controller, records the status line and invokes
// the listeners synchronously in registration order.
func (c *Controller) setState(next DeviceState, status string) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.status = status
	listeners := append([]StateListener{}, c.listeners...)
	c.mu.Unlock()
	if prev != next {
		c.logger.Info("state change",
			zap.String("from", prev.String()),
			zap.String("to", next.String()),
			zap.String("status", status))
		for _, l := range listeners {
			l.OnDeviceState(next, status)
		}
	}
	c.wakeUp()
}

// disconnect tears down the session: watchdog off, every in-flight command
// cancelled, transport handle closed and dropped. The caller decides the
// next state.
func (c *Controller) disconnect() {
	c.watchdog.Stop()
	c.set.CancelAll()
	c.mu.Lock()
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()
	if tr != nil {
		tr.Close()
	}
}

func (c *Controller) transport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr
}

// wakeUp nudges the dispatcher without blocking.
func (c *Controller) wakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// waitWake blocks until a wake signal, the timeout or stop. Returns false
// on stop.
func (c *Controller) waitWake(d time.Duration, stopCh chan struct{}) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-c.wake:
		return true
	case <-time.After(d):
		return true
	case <-stopCh:
		return false
	}
}

func (c *Controller) sleep(d time.Duration, stopCh chan struct{}) {
	select {
	case <-time.After(d):
	case <-stopCh:
	}
}

// Public API

// State returns the controller's current state.
func (c *Controller) State() DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the last recorded status line.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// AddStateListener registers a synchronous transition listener.
func (c *Controller) AddStateListener(l StateListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// AddPolledAttribute registers a recurrent read of the attribute. The poll
// is installed immediately when the device is operational and re-installed
// after every successful initialization. onUpdate may be nil; it runs on a
// transport callback goroutine.
func (c *Controller) AddPolledAttribute(name string, period time.Duration, onUpdate func(value *AttributeValue)) {
	p := polledAttr{name: name, period: period, onUpdate: onUpdate}
	c.mu.Lock()
	c.polled = append(c.polled, p)
	tr := c.tr
	operational := c.state.Operational()
	c.mu.Unlock()
	if operational && tr != nil {
		c.addPoll(tr, p)
	}
}

// GetAttribute returns the last read snapshot of the attribute, issuing a
// one-shot read when none is cached yet.
func (c *Controller) GetAttribute(name string) (*AttributeValue, error) {
	c.mu.Lock()
	cached := c.attrs[name]
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	tr := c.transport()
	if tr == nil {
		return nil, errors.New("not connected")
	}
	read := NewCommand(c.logger, tr, OpRead, name, nil).
		WithTimeout(c.cfg.CommandTimeout)
	return c.await(read, c.cfg.CommandTimeout)
}

// WriteThenVerify writes the attribute, waits a settle delay and reads it
// back, returning the verification read.
func (c *Controller) WriteThenVerify(name string, value any) (*AttributeValue, error) {
	tr := c.transport()
	if tr == nil {
		return nil, errors.New("not connected")
	}
	write := NewCommand(c.logger, tr, OpWrite, name, value).
		WithTimeout(c.cfg.CommandTimeout)
	pause := NewDelay(c.logger, c.cfg.VerifyDelay)
	pause.Gate(write, nil)
	read := NewCommand(c.logger, tr, OpRead, name, nil).
		WithTimeout(c.cfg.CommandTimeout)
	read.Gate(pause, nil)
	c.set.Add(write)
	c.set.Add(pause)
	write.Start()
	pause.Start()
	budget := 2*c.cfg.CommandTimeout + c.cfg.VerifyDelay
	verified, err := c.await(read, budget)
	if err != nil {
		// a failed write would leave the pause gated forever; drop the
		// whole chain
		c.set.Remove(write, pause, read)
		return nil, err
	}
	return verified, nil
}

// Execute invokes a device command and waits for completion.
func (c *Controller) Execute(name string, arg any) (*AttributeValue, error) {
	tr := c.transport()
	if tr == nil {
		return nil, errors.New("not connected")
	}
	exec := NewCommand(c.logger, tr, OpExecute, name, arg).
		WithTimeout(c.cfg.CommandTimeout)
	return c.await(exec, c.cfg.CommandTimeout)
}

// await adds the command to the set, starts it and blocks until it settles
// or the budget elapses.
func (c *Controller) await(cmd *Command, budget time.Duration) (*AttributeValue, error) {
	settled := make(chan struct{}, 1)
	cmd.Subscribe(ListenerFunc(func(cmd *Command) {
		select {
		case settled <- struct{}{}:
		default:
		}
	}))
	c.set.Add(cmd)
	cmd.Start()
	deadline := time.After(budget + time.Second)
	for {
		select {
		case <-settled:
			if cmd.Done() {
				return cmd.Result(), nil
			}
			if cmd.TimedOut() {
				return nil, errors.New(cmd.Status())
			}
			// faulted but still pending, keep waiting for the
			// timeout verdict
		case <-deadline:
			c.set.Remove(cmd)
			if st := cmd.Status(); st != "" {
				return nil, errors.New(st)
			}
			return nil, errors.New("command did not settle")
		}
	}
}
