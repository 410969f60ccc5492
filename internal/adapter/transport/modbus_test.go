package transport

import (
	"testing"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/pkg/devctrl"

	"github.com/simonvetter/modbus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRawToDeviceState(t *testing.T) {
	assert.Equal(t, "UNKNOWN", RawToDeviceState(0))
	assert.Equal(t, "INIT", RawToDeviceState(1))
	assert.Equal(t, "ON", RawToDeviceState(2))
	assert.Equal(t, "RUNNING", RawToDeviceState(3))
	assert.Equal(t, "STANDBY", RawToDeviceState(4))
	assert.Equal(t, "OFF", RawToDeviceState(7))
	// out of table
	assert.Equal(t, "UNKNOWN", RawToDeviceState(42))
	assert.Equal(t, "UNKNOWN", RawToDeviceState(-1))
}

func TestScaling(t *testing.T) {
	assert.Equal(t, 12.5, RawToScaled(125, 0.1))
	assert.Equal(t, 125.0, RawToScaled(125, 0))
	assert.Equal(t, uint16(125), ScaleToRaw(12.5, 0.1))
	assert.Equal(t, uint16(125), ScaleToRaw(125, 0))
	// rounding, not truncation
	assert.Equal(t, uint16(13), ScaleToRaw(1.26, 0.1))
}

func TestClassifyError(t *testing.T) {
	f := classifyError(modbus.ErrRequestTimedOut)
	assert.Equal(t, devctrl.FaultTimedOut, f.Kind)
	assert.True(t, f.Connectivity())

	f = classifyError(modbus.ErrIllegalDataAddress)
	assert.Equal(t, devctrl.FaultNotDefined, f.Kind)

	f = classifyError(modbus.ErrIllegalFunction)
	assert.Equal(t, devctrl.FaultNotAllowed, f.Kind)
	assert.False(t, f.Connectivity())

	f = classifyError(assert.AnError)
	assert.Equal(t, devctrl.FaultOther, f.Kind)
}

func TestProviderSelection(t *testing.T) {
	logger := zap.NewNop()

	provider, err := Provider(config.CameraConfig{Transport: "sim"}, logger)
	assert.NoError(t, err)
	tr1, err := provider()
	assert.NoError(t, err)
	tr2, err := provider()
	assert.NoError(t, err)
	// sim transport keeps its state across reconnects
	assert.Same(t, tr1, tr2)

	_, err = Provider(config.CameraConfig{Transport: "serial"}, logger)
	assert.Error(t, err)
}
