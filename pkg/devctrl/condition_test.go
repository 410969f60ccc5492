package devctrl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func attr(name string, value any) *AttributeValue {
	return &AttributeValue{Name: name, Value: value, Quality: QualityValid, Timestamp: time.Now()}
}

func TestConditionNeverProducedValueIsFulfilled(t *testing.T) {
	cond := ValidRange(0, 10)
	assert.True(t, cond.evaluate(nil))
}

func TestConditionRejectsNonValidQuality(t *testing.T) {
	cond := ValidRange(0, 10)
	v := attr("gain", 5.0)
	v.Quality = QualityInvalid
	assert.False(t, cond.evaluate(v))
	v.Quality = QualityChanging
	assert.False(t, cond.evaluate(v))
}

func TestConditionNumericRangeHalfOpen(t *testing.T) {
	cond := ValidRange(1, 5)
	assert.True(t, cond.evaluate(attr("x", 1.0)))
	assert.True(t, cond.evaluate(attr("x", 4.99)))
	assert.False(t, cond.evaluate(attr("x", 5.0)))
	assert.False(t, cond.evaluate(attr("x", 0.5)))
	assert.True(t, cond.evaluate(attr("x", 3)))
	assert.False(t, cond.evaluate(attr("x", "not a number")))
}

func TestConditionEnumeratedMembership(t *testing.T) {
	cond := OneOf("ON", "RUNNING")
	assert.True(t, cond.evaluate(attr("state", "ON")))
	assert.True(t, cond.evaluate(attr("state", "RUNNING")))
	assert.False(t, cond.evaluate(attr("state", "FAULT")))
}

func TestConditionInvalidRangeOverridesValid(t *testing.T) {
	cond := &Condition{
		Valid:   &Range{Kind: RangeNumeric, Low: 0, High: 100},
		Invalid: &Range{Kind: RangeNumeric, Low: 40, High: 60},
	}
	assert.True(t, cond.evaluate(attr("x", 30.0)))
	assert.False(t, cond.evaluate(attr("x", 50.0)))
	assert.True(t, cond.evaluate(attr("x", 70.0)))
}

func TestConditionInvalidOnly(t *testing.T) {
	cond := InvalidRange(40, 60)
	assert.True(t, cond.evaluate(attr("x", 10.0)))
	assert.False(t, cond.evaluate(attr("x", 40.0)))
}

func TestConditionLatchAndOneShotFire(t *testing.T) {
	cond := ValidRange(0, 10)
	assert.False(t, cond.check(attr("x", 50.0)))
	assert.False(t, cond.fire())

	assert.True(t, cond.check(attr("x", 5.0)))
	// latched: a later out-of-range reading does not unfulfill
	assert.True(t, cond.check(attr("x", 50.0)))

	assert.True(t, cond.fire())
	assert.False(t, cond.fire())

	cond.reset()
	assert.False(t, cond.check(attr("x", 50.0)))
	assert.True(t, cond.check(attr("x", 5.0)))
	assert.True(t, cond.fire())
}
