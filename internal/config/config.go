package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Camera   CameraConfig `mapstructure:"camera"`
	MQTT     MQTTConfig   `mapstructure:"mqtt"`

	InfluxDB InfluxDBConfig `mapstructure:"influxdb"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Port     uint           `mapstructure:"port"`
	HttpLog  bool           `mapstructure:"http_log"`
}

type CameraConfig struct {
	DeviceName string `mapstructure:"device_name"`
	// Transport selects the device backend: "modbus" or "sim"
	Transport string

	Host   string
	Port   uint
	UnitId uint `mapstructure:"unit_id"`

	// Parameters written and verified during device initialization, in
	// order
	Parameters []ParameterConfig `mapstructure:"parameters"`
	// Attributes polled while the device is operational
	PolledAttributes []PolledAttributeConfig `mapstructure:"polled_attributes"`

	StatePollMillis       uint32 `mapstructure:"state_poll_millis"`
	CommandTimeoutMillis  uint32 `mapstructure:"command_timeout_millis"`
	InitTimeoutMillis     uint32 `mapstructure:"init_timeout_millis"`
	SettleDelayMillis     uint32 `mapstructure:"settle_delay_millis"`
	VerifyDelayMillis     uint32 `mapstructure:"verify_delay_millis"`
	WatchdogTimeoutMillis uint32 `mapstructure:"watchdog_timeout_millis"`

	// FullWell is the pixel value at which the sensor clips, used for
	// the spectrum saturation level
	FullWell float64 `mapstructure:"full_well"`
	// Registers maps attribute and command names to modbus addresses
	// when transport is "modbus"
	Registers []RegisterConfig `mapstructure:"registers"`
}

type ParameterConfig struct {
	Name  string
	Value float64
}

type PolledAttributeConfig struct {
	Name         string
	PeriodMillis uint32 `mapstructure:"period_millis"`
}

type RegisterConfig struct {
	Name string
	// Kind is one of "holding", "input" or "coil"
	Kind    string
	Address uint16
	Scale   float64
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type InfluxDBConfig struct {
	Enable bool
	URL    string
	Token  string
	Org    string
	Bucket string
}

type JournalConfig struct {
	Enable bool
	Path   string
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
