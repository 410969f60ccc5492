package util

import (
	"camspec2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Camera: config.CameraConfig{
			DeviceName: "testcam",
			Transport:  "sim",
			Host:       "-.-.-.-",
			Port:       502,
			UnitId:     1,
			Parameters: []config.ParameterConfig{
				{Name: "gain", Value: 2},
				{Name: "exposuretime", Value: 2},
			},
			PolledAttributes: []config.PolledAttributeConfig{
				{Name: "image", PeriodMillis: 100},
			},
			StatePollMillis:       50,
			CommandTimeoutMillis:  500,
			InitTimeoutMillis:     2000,
			SettleDelayMillis:     20,
			VerifyDelayMillis:     10,
			WatchdogTimeoutMillis: 2000,
			FullWell:              200,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		Port: 8080,
	}
}
