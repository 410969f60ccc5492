package devctrl

import (
	"fmt"
	"time"
)

// Quality qualifies an attribute reading. Anything other than QualityValid
// must not satisfy a gating condition.
type Quality int

const (
	QualityInvalid Quality = iota
	QualityValid
	QualityChanging
)

func (q Quality) String() string {
	switch q {
	case QualityValid:
		return "valid"
	case QualityChanging:
		return "changing"
	default:
		return "invalid"
	}
}

// AttributeValue is a single reading of a named device attribute.
type AttributeValue struct {
	Name      string
	Value     any
	Quality   Quality
	Timestamp time.Time
}

// Float returns the reading as a float64 when the underlying value is any
// numeric type. ok is false for non-numeric values.
func (v *AttributeValue) Float() (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// FaultKind classifies transport failures. The classification drives the
// health a failed command reports: connectivity kinds degrade to unknown,
// the rest to alarm.
type FaultKind int

const (
	FaultOther FaultKind = iota
	FaultUnreachable
	FaultTimedOut
	FaultCannotConnect
	FaultNotAllowed
	FaultNotDefined
)

func (k FaultKind) String() string {
	switch k {
	case FaultUnreachable:
		return "unreachable"
	case FaultTimedOut:
		return "timed_out"
	case FaultCannotConnect:
		return "cannot_connect"
	case FaultNotAllowed:
		return "not_allowed"
	case FaultNotDefined:
		return "not_defined"
	default:
		return "other"
	}
}

// Fault is a classified transport failure.
type Fault struct {
	Kind   FaultKind
	Reason string
}

func (f *Fault) Error() string {
	if f.Reason != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
	}
	return f.Kind.String()
}

// Connectivity reports whether the fault points at the link rather than the
// operation itself.
func (f *Fault) Connectivity() bool {
	switch f.Kind {
	case FaultUnreachable, FaultTimedOut, FaultCannotConnect, FaultNotDefined:
		return true
	}
	return false
}

// Transport is the asynchronous boundary to the remote device. Every
// operation returns immediately and delivers its outcome through the done
// callback, possibly from a different goroutine. Exactly one of the callback
// arguments is non-nil.
type Transport interface {
	Connect(done func(fault *Fault))
	ReadAttribute(name string, done func(value *AttributeValue, fault *Fault))
	WriteAttribute(name string, value any, done func(fault *Fault))
	InvokeCommand(name string, arg any, done func(result *AttributeValue, fault *Fault))
	Close()
}
