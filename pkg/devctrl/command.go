package devctrl

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OpKind is the closed set of operations a command can perform.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpExecute
	OpDelay
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpExecute:
		return "execute"
	default:
		return "delay"
	}
}

// Health is the state a command suggests for the whole device while it is
// unable to make progress. Unknown is worse than alarm: it means we cannot
// even tell what the device is doing.
type Health int

const (
	HealthOK Health = iota
	HealthAlarm
	HealthUnknown
)

func (h Health) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthAlarm:
		return "alarm"
	default:
		return "ok"
	}
}

// WorseHealth returns the worse of two suggestions.
func WorseHealth(a, b Health) Health {
	if b > a {
		return b
	}
	return a
}

// CommandListener receives command lifecycle events: completion, timeout and
// transport faults.
type CommandListener interface {
	OnCommandEvent(cmd *Command)
}

// ListenerFunc adapts a function to the CommandListener interface.
type ListenerFunc func(cmd *Command)

func (f ListenerFunc) OnCommandEvent(cmd *Command) { f(cmd) }

// Source is anything a condition can gate on: a command producing a result,
// or a standalone attribute holder.
type Source interface {
	Completed() bool
	Attribute() *AttributeValue
	watch(fn func())
}

// AttributeRef is a Source backed by an externally updated attribute
// snapshot.
type AttributeRef struct {
	mu       sync.Mutex
	value    *AttributeValue
	watchers []func()
}

func NewAttributeRef() *AttributeRef { return &AttributeRef{} }

// Set stores the latest reading and wakes every gated command.
func (r *AttributeRef) Set(v *AttributeValue) {
	r.mu.Lock()
	r.value = v
	watchers := append([]func(){}, r.watchers...)
	r.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

func (r *AttributeRef) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value != nil
}

func (r *AttributeRef) Attribute() *AttributeValue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *AttributeRef) watch(fn func()) {
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

type boundCondition struct {
	src  Source
	cond *Condition
}

// Command is a single asynchronous device operation with gating conditions,
// an optional timeout and optional recurrence. A command is issued on the
// transport once, when all its conditions are fulfilled, and settles into
// exactly one of done or timedOut. Transport faults leave it pending with a
// degraded health until the timeout fires.
type Command struct {
	mu sync.Mutex

	name    string
	op      OpKind
	payload any
	delay   time.Duration

	timeout   time.Duration
	recurrent bool
	period    time.Duration

	pending  bool
	done     bool
	timedOut bool
	issued   bool

	health    Health
	status    string
	startTime time.Time
	result    *AttributeValue

	conds     []boundCondition
	listeners []CommandListener
	watchers  []func()

	timeoutTimer *time.Timer
	delayTimer   *time.Timer

	tr     Transport
	logger *zap.Logger
}

// NewCommand builds a read, write or execute command bound to a transport.
func NewCommand(logger *zap.Logger, tr Transport, op OpKind, name string, payload any) *Command {
	return &Command{
		name:    name,
		op:      op,
		payload: payload,
		tr:      tr,
		logger:  logger,
	}
}

// NewDelay builds a command that completes d after its conditions are
// fulfilled. Delay commands never arm a timeout: a recurrence delay may
// legitimately outlive any operation timeout.
func NewDelay(logger *zap.Logger, d time.Duration) *Command {
	return &Command{
		name:   fmt.Sprintf("delay(%s)", d),
		op:     OpDelay,
		delay:  d,
		logger: logger,
	}
}

// WithTimeout arms a timeout timer on Start. Ignored for delay commands.
func (c *Command) WithTimeout(d time.Duration) *Command {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
	return c
}

// WithRecurrence marks the command for re-arming with the given period.
func (c *Command) WithRecurrence(period time.Duration) *Command {
	c.mu.Lock()
	c.recurrent = true
	c.period = period
	c.mu.Unlock()
	return c
}

// Gate adds a condition on a source. cond may be nil, in which case only
// completion of the source is required. All conditions must hold (AND).
func (c *Command) Gate(src Source, cond *Condition) *Command {
	if cond == nil {
		cond = &Condition{}
	}
	c.mu.Lock()
	c.conds = append(c.conds, boundCondition{src: src, cond: cond})
	c.mu.Unlock()
	src.watch(c.checkConditions)
	return c
}

// Subscribe registers a lifecycle listener. Listeners are invoked outside
// the command lock.
func (c *Command) Subscribe(l CommandListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// Start arms the command: flags are reset, conditions re-latched from
// scratch and the timeout timer started. The operation is issued immediately
// when there are no conditions.
func (c *Command) Start() {
	c.arm()
	c.checkConditions()
}

// arm resets the flags and timers without evaluating the conditions. The
// reconcile loop arms re-started commands while still holding the set lock
// so a concurrent scan cannot see them done anymore.
func (c *Command) arm() {
	c.mu.Lock()
	c.pending = true
	c.done = false
	c.timedOut = false
	c.issued = false
	c.health = HealthOK
	c.status = ""
	c.result = nil
	c.startTime = time.Now()
	for i := range c.conds {
		c.conds[i].cond.reset()
	}
	if c.timeoutTimer != nil {
		c.timeoutTimer.Stop()
		c.timeoutTimer = nil
	}
	if c.timeout > 0 && c.op != OpDelay {
		c.timeoutTimer = time.AfterFunc(c.timeout, c.onTimeout)
	}
	c.mu.Unlock()
}

// Cancel disarms the command without notifying listeners. Safe to call any
// number of times and in any state.
func (c *Command) Cancel() {
	c.mu.Lock()
	c.pending = false
	c.issued = true
	if c.timeoutTimer != nil {
		c.timeoutTimer.Stop()
		c.timeoutTimer = nil
	}
	if c.delayTimer != nil {
		c.delayTimer.Stop()
		c.delayTimer = nil
	}
	c.mu.Unlock()
}

// ClearConditions drops every gating condition. Used when re-arming a
// recurrent command so stale gates do not accumulate across cycles.
func (c *Command) ClearConditions() {
	c.mu.Lock()
	c.conds = nil
	c.mu.Unlock()
}

func (c *Command) checkConditions() {
	c.mu.Lock()
	if !c.pending || c.issued {
		c.mu.Unlock()
		return
	}
	for i := range c.conds {
		bc := &c.conds[i]
		if bc.cond.fulfilled {
			continue
		}
		var attr *AttributeValue
		if bc.src.Completed() {
			attr = bc.src.Attribute()
		} else if _, isCmd := bc.src.(*Command); isCmd {
			// a source command still in flight cannot satisfy a gate
			c.mu.Unlock()
			return
		}
		if !bc.cond.check(attr) {
			c.mu.Unlock()
			return
		}
	}
	// consume the one-shot triggers; the command issues only on the pass
	// that fires them
	issue := true
	for i := range c.conds {
		if !c.conds[i].cond.fire() {
			issue = false
		}
	}
	if !issue {
		c.mu.Unlock()
		return
	}
	c.issued = true
	op, name, payload, delay, tr := c.op, c.name, c.payload, c.delay, c.tr
	logger := c.logger
	c.mu.Unlock()

	if logger != nil {
		logger.Debug("command issue",
			zap.String("op", op.String()),
			zap.String("command", name))
	}
	switch op {
	case OpRead:
		tr.ReadAttribute(name, c.onResult)
	case OpWrite:
		tr.WriteAttribute(name, payload, func(fault *Fault) {
			c.onResult(nil, fault)
		})
	case OpExecute:
		tr.InvokeCommand(name, payload, c.onResult)
	case OpDelay:
		c.mu.Lock()
		if c.pending {
			c.delayTimer = time.AfterFunc(delay, func() {
				c.onResult(nil, nil)
			})
		}
		c.mu.Unlock()
	}
}

func (c *Command) onResult(value *AttributeValue, fault *Fault) {
	c.mu.Lock()
	if !c.pending || c.done || c.timedOut {
		c.mu.Unlock()
		return
	}
	if fault != nil {
		// The command stays pending and blocks its dependents; the
		// timeout timer will eventually remove it. Connectivity faults
		// degrade to unknown, the rest to alarm.
		if fault.Connectivity() {
			c.health = HealthUnknown
		} else {
			c.health = HealthAlarm
		}
		c.status = fmt.Sprintf("%s %s failed: %s", c.op, c.name, fault.Error())
		logger := c.logger
		c.mu.Unlock()
		if logger != nil {
			logger.Warn("command fault",
				zap.String("command", c.name),
				zap.String("fault", fault.Kind.String()))
		}
		c.notify()
		return
	}
	if c.timeoutTimer != nil {
		c.timeoutTimer.Stop()
		c.timeoutTimer = nil
	}
	c.pending = false
	c.done = true
	c.health = HealthOK
	c.result = value
	c.status = fmt.Sprintf("%s %s done", c.op, c.name)
	c.mu.Unlock()
	c.notifyWatchers()
	c.notify()
}

func (c *Command) onTimeout() {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.timedOut = true
	c.health = WorseHealth(c.health, HealthAlarm)
	// a fault recorded before the timeout is the better diagnosis
	if c.status == "" {
		c.status = fmt.Sprintf("%s %s timed out", c.op, c.name)
	}
	logger := c.logger
	c.mu.Unlock()
	if logger != nil {
		logger.Warn("command timeout", zap.String("command", c.name))
	}
	c.notify()
}

func (c *Command) notify() {
	c.mu.Lock()
	listeners := append([]CommandListener{}, c.listeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnCommandEvent(c)
	}
}

func (c *Command) notifyWatchers() {
	c.mu.Lock()
	watchers := append([]func(){}, c.watchers...)
	c.mu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

// Source implementation: a command is a valid gate source for another
// command.

func (c *Command) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Command) Attribute() *AttributeValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

func (c *Command) watch(fn func()) {
	c.mu.Lock()
	c.watchers = append(c.watchers, fn)
	c.mu.Unlock()
}

// Accessors

func (c *Command) Name() string { return c.name }

func (c *Command) Op() OpKind { return c.op }

func (c *Command) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Command) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Command) TimedOut() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timedOut
}

func (c *Command) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

func (c *Command) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Command) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime
}

func (c *Command) Recurrent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recurrent
}

func (c *Command) Period() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period
}

func (c *Command) Result() *AttributeValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
