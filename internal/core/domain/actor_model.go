package domain

import "camspec2mqtt/pkg/devctrl"

const (
	ACTOR_ID_MASTER   = "master"
	ACTOR_ID_CAMERA   = "camera"
	ACTOR_ID_MQTT     = "mqtt"
	ACTOR_ID_SPECTRUM = "spectrum"
	ACTOR_ID_HISTORY  = "history"
)

type GetAttributeRequest struct {
	CameraControlRequestMixIn
	Name string
}

type GetAttributeResponse struct {
	ActorResponseMixIn
	Value *devctrl.AttributeValue
}

type WriteAttributeRequest struct {
	CameraControlRequestMixIn
	Name  string
	Value any
}

type WriteAttributeResponse struct {
	ActorResponseMixIn
	// Value is the read-back verification snapshot after the write
	Value *devctrl.AttributeValue
}

type ExecCommandRequest struct {
	CameraControlRequestMixIn
	Name string
	Arg  any
}

type ExecCommandResponse struct {
	ActorResponseMixIn
	Result *devctrl.AttributeValue
}

type GetControllerStateRequest struct {
	CameraControlRequestMixIn
}

type GetControllerStateResponse struct {
	ActorResponseMixIn
	State  devctrl.DeviceState
	Status string
}

type GetSpectrumRequest struct {
	ActorRequestMixIn
}

type GetSpectrumResponse struct {
	ActorResponseMixIn
	Spectrum []float64
	Peak     float64
	Width    float64
	SatLevel float64
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
