package transport

import (
	"fmt"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/pkg/devctrl"

	"go.uber.org/zap"
)

// Provider returns a transport factory for the configured transport type.
// The controller calls the factory on every reconnect attempt, so the sim
// transport is created once and reused to keep its state across cycles.
func Provider(cfg config.CameraConfig, logger *zap.Logger) (func() (devctrl.Transport, error), error) {
	switch cfg.Transport {
	case "sim":
		sim := devctrl.NewSimTransport()
		return func() (devctrl.Transport, error) {
			return sim, nil
		}, nil
	case "modbus", "":
		return func() (devctrl.Transport, error) {
			return NewModbusTransport(cfg, logger)
		}, nil
	default:
		return nil, fmt.Errorf("unknown camera transport %q", cfg.Transport)
	}
}
