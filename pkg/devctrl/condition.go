package devctrl

// RangeKind selects how a Range matches a value.
type RangeKind int

const (
	// RangeNumeric matches numeric values in the half-open interval
	// [Low, High).
	RangeNumeric RangeKind = iota
	// RangeEnumerated matches values equal to any member.
	RangeEnumerated
)

// Range describes a set of acceptable (or unacceptable) attribute values.
type Range struct {
	Kind    RangeKind
	Low     float64
	High    float64
	Members []any
}

func (r *Range) contains(v *AttributeValue) bool {
	switch r.Kind {
	case RangeEnumerated:
		for _, m := range r.Members {
			if m == v.Value {
				return true
			}
		}
		return false
	default:
		f, ok := v.Float()
		if !ok {
			return false
		}
		return r.Low <= f && f < r.High
	}
}

// Condition is a value predicate gating a command on the output of another
// source. A nil attribute (the source never produced a value) fulfills the
// condition; a reading with non-valid quality never does. When both ranges
// are set, a value inside the invalid range fails regardless of the valid
// range.
type Condition struct {
	Valid   *Range
	Invalid *Range

	fulfilled bool
	fired     bool
}

// ValidRange builds a condition accepting numeric values in [low, high).
func ValidRange(low, high float64) *Condition {
	return &Condition{Valid: &Range{Kind: RangeNumeric, Low: low, High: high}}
}

// InvalidRange builds a condition rejecting numeric values in [low, high).
func InvalidRange(low, high float64) *Condition {
	return &Condition{Invalid: &Range{Kind: RangeNumeric, Low: low, High: high}}
}

// OneOf builds a condition accepting values equal to any of the members.
func OneOf(members ...any) *Condition {
	return &Condition{Valid: &Range{Kind: RangeEnumerated, Members: members}}
}

func (c *Condition) evaluate(v *AttributeValue) bool {
	if v == nil {
		return true
	}
	if v.Quality != QualityValid {
		return false
	}
	if c.Invalid != nil && c.Invalid.contains(v) {
		return false
	}
	if c.Valid != nil {
		return c.Valid.contains(v)
	}
	return true
}

// check updates the latched fulfilled flag from the current reading.
// A fulfilled condition stays fulfilled until reset.
func (c *Condition) check(v *AttributeValue) bool {
	if !c.fulfilled && c.evaluate(v) {
		c.fulfilled = true
	}
	return c.fulfilled
}

// fire consumes the one-shot trigger. Returns true only on the first call
// after the condition became fulfilled.
func (c *Condition) fire() bool {
	if c.fulfilled && !c.fired {
		c.fired = true
		return true
	}
	return false
}

func (c *Condition) reset() {
	c.fulfilled = false
	c.fired = false
}
