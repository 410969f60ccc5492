package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE      = "bridge"
	SENSOR_ID_CAMERA_STATE      = "camera_state"
	SENSOR_ID_CAMERA_STATUS     = "camera_status"
	SENSOR_ID_SPECTRUM_PEAK     = "spectrum_peak"
	SENSOR_ID_SPECTRUM_WIDTH    = "spectrum_width"
	SENSOR_ID_SPECTRUM_SATLVL   = "spectrum_satlvl"
	SWITCH_ID_ACQUIRE           = "acquire"
	INPUT_NUMBER_ID_GAIN        = "gain"
	INPUT_NUMBER_ID_EXPOSURE    = "exposuretime"
	STATE_CLASS_MEASUREMENT     = "measurement"
	DEVICE_CLASS_CONNECTIVITY   = "connectivity"
	DEVICE_CLASS_DURATION       = "duration"
	ENTITY_CLASS_DIAGNOSTIC     = "diagnostic"
	ENTITY_CLASS_CONFIG         = "config"
	SENSOR_TYPE_SENSOR          = "sensor"
	SENSOR_TYPE_BINARY          = "binary_sensor"
	INPUT_NUMBER_MODE_BOX       = "box"
	INPUT_NUMBER_MODE_SLIDER    = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("camspec_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "MAX-IV",
		Model:        "Camspec",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Camspec %s", md5HashShort(baseTopic)),
	}
}

func CameraDevice(deviceName string) Device {
	return Device{
		Id:           fmt.Sprintf("camspec_camera_%s", md5HashShort(deviceName)),
		Manufacturer: "MAX-IV",
		Model:        "Spectrometer camera",
		Name:         deviceName,
	}
}

func CameraSensors(cameraDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Camera connection state
	sensors = append(sensors, GenericSensor{
		Device:     cameraDevice,
		Id:         SENSOR_ID_CAMERA_STATE,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Camera state",
		Icon:       "mdi:camera-iris",
		UniqueId:   uniqueId(cameraDevice.Id, SENSOR_ID_CAMERA_STATE),
	})

	// Camera status line
	sensors = append(sensors, GenericSensor{
		Device:         cameraDevice,
		Id:             SENSOR_ID_CAMERA_STATUS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Camera status",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(cameraDevice.Id, SENSOR_ID_CAMERA_STATUS),
	})

	// Spectrum peak position
	sensors = append(sensors, GenericSensor{
		Device:            cameraDevice,
		Id:                SENSOR_ID_SPECTRUM_PEAK,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Spectrum peak",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "px",
		Icon:              "mdi:chart-bell-curve",
		UniqueId:          uniqueId(cameraDevice.Id, SENSOR_ID_SPECTRUM_PEAK),
	})

	// Spectrum FWHM width
	sensors = append(sensors, GenericSensor{
		Device:            cameraDevice,
		Id:                SENSOR_ID_SPECTRUM_WIDTH,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Spectrum width",
		StateClass:        STATE_CLASS_MEASUREMENT,
		UnitOfMeasurement: "px",
		Icon:              "mdi:arrow-expand-horizontal",
		UniqueId:          uniqueId(cameraDevice.Id, SENSOR_ID_SPECTRUM_WIDTH),
	})

	// Spectrum saturation level
	sensors = append(sensors, GenericSensor{
		Device:            cameraDevice,
		Id:                SENSOR_ID_SPECTRUM_SATLVL,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Spectrum saturation level",
		StateClass:        STATE_CLASS_MEASUREMENT,
		Icon:              "mdi:gauge-full",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(cameraDevice.Id, SENSOR_ID_SPECTRUM_SATLVL),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func CameraSwitches(cameraDevice Device) []GenericSwitch {

	var switches []GenericSwitch

	// Acquisition on/off
	switches = append(switches, GenericSwitch{
		Device:   cameraDevice,
		Id:       SWITCH_ID_ACQUIRE,
		Name:     "Acquire",
		UniqueId: uniqueId(cameraDevice.Id, SWITCH_ID_ACQUIRE),
		Icon:     "mdi:record-rec",
	})

	return switches
}

func CameraInputNumbers(cameraDevice Device) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	// Gain
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       cameraDevice,
		Id:           INPUT_NUMBER_ID_GAIN,
		Name:         "Gain",
		UniqueId:     uniqueId(cameraDevice.Id, INPUT_NUMBER_ID_GAIN),
		Icon:         "mdi:knob",
		Max:          24,
		Min:          0,
		Step:         0.1,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 2,
	})

	// Exposure time
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       cameraDevice,
		Id:           INPUT_NUMBER_ID_EXPOSURE,
		Name:         "Exposure time",
		UniqueId:     uniqueId(cameraDevice.Id, INPUT_NUMBER_ID_EXPOSURE),
		Icon:         "mdi:camera-timer",
		Max:          10000,
		Min:          0.01,
		Step:         0.01,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 2,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5HashShort(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
