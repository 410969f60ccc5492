package devctrl

import (
	"sync"
	"time"
)

// SimTransport is an in-memory device usable both in tests and as the "sim"
// transport mode: a spectrometer camera with gain/exposuretime/image
// attributes and start/stop acquisition commands. Faults and latency are
// injectable per operation name.
type SimTransport struct {
	mu sync.Mutex

	attrs   map[string]any
	quality map[string]Quality
	state   string
	latency time.Duration

	faults      map[string]*Fault
	connectErr  *Fault
	silent      map[string]bool
	closed      bool
	writeCount  map[string]int
	invokeCount map[string]int
}

// NewSimTransport builds a simulated camera idle in the ON state.
func NewSimTransport() *SimTransport {
	return &SimTransport{
		attrs: map[string]any{
			"gain":         1.0,
			"exposuretime": 1.0,
			"image":        simImage(),
		},
		quality:     map[string]Quality{},
		state:       "ON",
		faults:      map[string]*Fault{},
		silent:      map[string]bool{},
		writeCount:  map[string]int{},
		invokeCount: map[string]int{},
	}
}

func simImage() [][]float64 {
	img := make([][]float64, 4)
	for r := range img {
		img[r] = make([]float64, 16)
		for c := range img[r] {
			img[r][c] = 10
			if c == 8 {
				img[r][c] = 100
			}
		}
	}
	return img
}

// SetLatency delays every callback by d.
func (t *SimTransport) SetLatency(d time.Duration) {
	t.mu.Lock()
	t.latency = d
	t.mu.Unlock()
}

// SetFault makes every operation on name fail with the fault. A nil fault
// clears the injection.
func (t *SimTransport) SetFault(name string, fault *Fault) {
	t.mu.Lock()
	if fault == nil {
		delete(t.faults, name)
	} else {
		t.faults[name] = fault
	}
	t.mu.Unlock()
}

// SetSilent drops every callback for operations on name, simulating a
// device that never answers.
func (t *SimTransport) SetSilent(name string, silent bool) {
	t.mu.Lock()
	t.silent[name] = silent
	t.mu.Unlock()
}

// SetConnectFault fails the next Connect calls.
func (t *SimTransport) SetConnectFault(fault *Fault) {
	t.mu.Lock()
	t.connectErr = fault
	t.mu.Unlock()
}

// SetQuality overrides the quality reported for reads of name.
func (t *SimTransport) SetQuality(name string, q Quality) {
	t.mu.Lock()
	t.quality[name] = q
	t.mu.Unlock()
}

// SetDeviceState forces the simulated device state string.
func (t *SimTransport) SetDeviceState(state string) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// DeviceState returns the simulated device state string.
func (t *SimTransport) DeviceState() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Writes returns how many writes hit the attribute.
func (t *SimTransport) Writes(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeCount[name]
}

// Invocations returns how many times the command was invoked.
func (t *SimTransport) Invocations(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invokeCount[name]
}

func (t *SimTransport) complete(fn func()) {
	t.mu.Lock()
	latency := t.latency
	t.mu.Unlock()
	if latency > 0 {
		time.AfterFunc(latency, fn)
	} else {
		go fn()
	}
}

// Connect opens a session. A previously closed transport can be reused by
// connecting again.
func (t *SimTransport) Connect(done func(fault *Fault)) {
	t.mu.Lock()
	fault := t.connectErr
	if fault == nil {
		t.closed = false
	}
	t.mu.Unlock()
	t.complete(func() { done(fault) })
}

func (t *SimTransport) ReadAttribute(name string, done func(value *AttributeValue, fault *Fault)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.complete(func() { done(nil, &Fault{Kind: FaultCannotConnect, Reason: "closed"}) })
		return
	}
	if t.silent[name] {
		t.mu.Unlock()
		return
	}
	if f := t.faults[name]; f != nil {
		t.mu.Unlock()
		t.complete(func() { done(nil, f) })
		return
	}
	var value any
	if name == "state" {
		value = t.state
	} else {
		var ok bool
		value, ok = t.attrs[name]
		if !ok {
			t.mu.Unlock()
			t.complete(func() { done(nil, &Fault{Kind: FaultNotDefined, Reason: name}) })
			return
		}
	}
	q, ok := t.quality[name]
	if !ok {
		q = QualityValid
	}
	t.mu.Unlock()
	attr := &AttributeValue{Name: name, Value: value, Quality: q, Timestamp: time.Now()}
	t.complete(func() { done(attr, nil) })
}

func (t *SimTransport) WriteAttribute(name string, value any, done func(fault *Fault)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.complete(func() { done(&Fault{Kind: FaultCannotConnect, Reason: "closed"}) })
		return
	}
	if t.silent[name] {
		t.mu.Unlock()
		return
	}
	if f := t.faults[name]; f != nil {
		t.mu.Unlock()
		t.complete(func() { done(f) })
		return
	}
	if _, ok := t.attrs[name]; !ok {
		t.mu.Unlock()
		t.complete(func() { done(&Fault{Kind: FaultNotDefined, Reason: name}) })
		return
	}
	t.attrs[name] = value
	t.writeCount[name]++
	t.mu.Unlock()
	t.complete(func() { done(nil) })
}

func (t *SimTransport) InvokeCommand(name string, _ any, done func(result *AttributeValue, fault *Fault)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.complete(func() { done(nil, &Fault{Kind: FaultCannotConnect, Reason: "closed"}) })
		return
	}
	if t.silent[name] {
		t.mu.Unlock()
		return
	}
	if f := t.faults[name]; f != nil {
		t.mu.Unlock()
		t.complete(func() { done(nil, f) })
		return
	}
	switch name {
	case "start":
		t.state = "RUNNING"
	case "stop":
		t.state = "ON"
	default:
		t.mu.Unlock()
		t.complete(func() { done(nil, &Fault{Kind: FaultNotDefined, Reason: name}) })
		return
	}
	t.invokeCount[name]++
	t.mu.Unlock()
	t.complete(func() { done(nil, nil) })
}

func (t *SimTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

var _ Transport = (*SimTransport)(nil)
