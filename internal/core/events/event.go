package events

import (
	. "camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/core/service"
	"camspec2mqtt/pkg/devctrl"
)

// AttributeToUpdateEvents maps a polled attribute snapshot to sensor update
// events. Non-numeric attributes (images) are handled elsewhere.
func AttributeToUpdateEvents(value *devctrl.AttributeValue) []any {
	var events []any

	switch value.Name {
	case INPUT_NUMBER_ID_GAIN, INPUT_NUMBER_ID_EXPOSURE:
		if f, ok := value.Float(); ok {
			events = append(events, InputNumberSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{
					Id: value.Name,
				},
				Value:    f,
				Decimals: 2,
			})
		}
	}

	return events
}

func DeviceStateToUpdateEvents(state devctrl.DeviceState, status string) []any {
	var events []any

	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CAMERA_STATE,
		},
		Value: state.String(),
	})
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CAMERA_STATUS,
		},
		Value: status,
	})
	// the acquire switch mirrors the acquisition state
	events = append(events, AcquireSwitchUpdateEvent(state == devctrl.StateRunning))

	return events
}

func AcquireSwitchUpdateEvent(running bool) any {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_ACQUIRE,
		},
		Value: running,
	}
}

func SpectrumStatsToUpdateEvents(stats service.SpectrumStats) []any {
	var events []any

	// Spectrum peak position
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SPECTRUM_PEAK,
		},
		Value:    stats.Peak,
		Decimals: 2,
	})
	// Spectrum FWHM width
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SPECTRUM_WIDTH,
		},
		Value:    stats.Width,
		Decimals: 2,
	})
	// Spectrum saturation level
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SPECTRUM_SATLVL,
		},
		Value:    stats.SatLevel,
		Decimals: 3,
	})

	return events
}
