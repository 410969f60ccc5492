package transport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/pkg/devctrl"

	"github.com/reugn/go-quartz/logger"
	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

const (
	REGISTER_KIND_HOLDING = "holding"
	REGISTER_KIND_INPUT   = "input"
	REGISTER_KIND_COIL    = "coil"
)

// deviceStates maps the numeric state register of the camera head to the
// state names the controller understands.
var deviceStates = []string{"UNKNOWN", "INIT", "ON", "RUNNING", "STANDBY", "ALARM", "FAULT", "OFF"}

// ModbusTransport adapts a modbus TCP camera head to the devctrl.Transport
// boundary. The underlying client is not safe for concurrent use; every
// operation runs on its own goroutine and serializes on the transport
// mutex.
type ModbusTransport struct {
	mu     sync.Mutex
	client *modbus.ModbusClient
	regs   map[string]config.RegisterConfig
	zlog   *zap.Logger
}

func NewModbusTransport(cfg config.CameraConfig, zlog *zap.Logger) (*ModbusTransport, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port),
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(uint8(cfg.UnitId)); err != nil {
		return nil, err
	}
	regs := make(map[string]config.RegisterConfig, len(cfg.Registers))
	for _, r := range cfg.Registers {
		regs[r.Name] = r
	}
	return &ModbusTransport{
		client: client,
		regs:   regs,
		zlog:   zlog.With(zap.String("transport", "modbus")),
	}, nil
}

func (t *ModbusTransport) Connect(done func(fault *devctrl.Fault)) {
	go func() {
		t.mu.Lock()
		err := t.client.Open()
		t.mu.Unlock()
		if err != nil {
			logger.Error(err)
			done(&devctrl.Fault{Kind: devctrl.FaultCannotConnect, Reason: err.Error()})
			return
		}
		done(nil)
	}()
}

func (t *ModbusTransport) ReadAttribute(name string, done func(value *devctrl.AttributeValue, fault *devctrl.Fault)) {
	go func() {
		reg, ok := t.regs[name]
		if !ok {
			done(nil, &devctrl.Fault{Kind: devctrl.FaultNotDefined, Reason: name})
			return
		}
		t.mu.Lock()
		raw, err := t.readRegister(reg)
		t.mu.Unlock()
		if err != nil {
			logger.Error(err)
			done(nil, classifyError(err))
			return
		}
		done(t.rawToAttribute(name, reg, raw), nil)
	}()
}

func (t *ModbusTransport) WriteAttribute(name string, value any, done func(fault *devctrl.Fault)) {
	go func() {
		reg, ok := t.regs[name]
		if !ok {
			done(&devctrl.Fault{Kind: devctrl.FaultNotDefined, Reason: name})
			return
		}
		if reg.Kind == REGISTER_KIND_INPUT {
			done(&devctrl.Fault{Kind: devctrl.FaultNotAllowed, Reason: fmt.Sprintf("%s is read only", name)})
			return
		}
		f, ok := (&devctrl.AttributeValue{Value: value}).Float()
		if !ok {
			done(&devctrl.Fault{Kind: devctrl.FaultOther, Reason: fmt.Sprintf("non numeric value for %s", name)})
			return
		}
		t.mu.Lock()
		err := t.writeRegister(reg, f)
		t.mu.Unlock()
		if err != nil {
			logger.Error(err)
			done(classifyError(err))
			return
		}
		done(nil)
	}()
}

func (t *ModbusTransport) InvokeCommand(name string, _ any, done func(result *devctrl.AttributeValue, fault *devctrl.Fault)) {
	go func() {
		reg, ok := t.regs[name]
		if !ok || reg.Kind != REGISTER_KIND_COIL {
			done(nil, &devctrl.Fault{Kind: devctrl.FaultNotDefined, Reason: name})
			return
		}
		t.mu.Lock()
		err := t.client.WriteCoil(reg.Address, true)
		t.mu.Unlock()
		if err != nil {
			logger.Error(err)
			done(nil, classifyError(err))
			return
		}
		done(nil, nil)
	}()
}

func (t *ModbusTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.Close(); err != nil {
		t.zlog.Debug("modbus close", zap.Error(err))
	}
}

func (t *ModbusTransport) readRegister(reg config.RegisterConfig) (float64, error) {
	switch reg.Kind {
	case REGISTER_KIND_COIL:
		v, err := t.client.ReadCoil(reg.Address)
		if err != nil {
			return 0, err
		}
		if v {
			return 1, nil
		}
		return 0, nil
	case REGISTER_KIND_INPUT:
		v, err := t.client.ReadRegister(reg.Address, modbus.INPUT_REGISTER)
		return float64(v), err
	default:
		v, err := t.client.ReadRegister(reg.Address, modbus.HOLDING_REGISTER)
		return float64(v), err
	}
}

func (t *ModbusTransport) writeRegister(reg config.RegisterConfig, value float64) error {
	if reg.Kind == REGISTER_KIND_COIL {
		return t.client.WriteCoil(reg.Address, value != 0)
	}
	return t.client.WriteRegister(reg.Address, ScaleToRaw(value, reg.Scale))
}

func (t *ModbusTransport) rawToAttribute(name string, reg config.RegisterConfig, raw float64) *devctrl.AttributeValue {
	attr := &devctrl.AttributeValue{
		Name:      name,
		Quality:   devctrl.QualityValid,
		Timestamp: time.Now(),
	}
	if name == "state" {
		attr.Value = RawToDeviceState(raw)
		return attr
	}
	attr.Value = RawToScaled(raw, reg.Scale)
	return attr
}

// RawToDeviceState maps a state register value to a state name. Values
// outside the table map to UNKNOWN.
func RawToDeviceState(raw float64) string {
	idx := int(raw)
	if idx < 0 || idx >= len(deviceStates) {
		return deviceStates[0]
	}
	return deviceStates[idx]
}

// RawToScaled applies a register's scale factor. A zero scale means 1.
func RawToScaled(raw, scale float64) float64 {
	if scale == 0 {
		return raw
	}
	return raw * scale
}

// ScaleToRaw converts an engineering value back to a register value.
func ScaleToRaw(value, scale float64) uint16 {
	if scale == 0 {
		scale = 1
	}
	return uint16(value/scale + 0.5)
}

func classifyError(err error) *devctrl.Fault {
	msg := err.Error()
	switch {
	case errors.Is(err, modbus.ErrRequestTimedOut):
		return &devctrl.Fault{Kind: devctrl.FaultTimedOut, Reason: msg}
	case errors.Is(err, modbus.ErrIllegalDataAddress):
		return &devctrl.Fault{Kind: devctrl.FaultNotDefined, Reason: msg}
	case errors.Is(err, modbus.ErrIllegalFunction):
		return &devctrl.Fault{Kind: devctrl.FaultNotAllowed, Reason: msg}
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "use of closed"):
		return &devctrl.Fault{Kind: devctrl.FaultCannotConnect, Reason: msg}
	case strings.Contains(msg, "no route"), strings.Contains(msg, "unreachable"):
		return &devctrl.Fault{Kind: devctrl.FaultUnreachable, Reason: msg}
	default:
		return &devctrl.Fault{Kind: devctrl.FaultOther, Reason: msg}
	}
}
