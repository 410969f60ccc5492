package domain

import "fmt"

// CameraControlRequest marks requests the master routes to the camera
// actor.

type CameraControlRequest interface {
	ActorRequest
	CameraControlCommand() string
}

type CameraControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r CameraControlRequestMixIn) CameraControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// AcquireRequest starts or stops acquisition on the device.
type AcquireRequest struct {
	CameraControlRequestMixIn
	Enable bool
}

type AcquireResponse struct {
	ActorResponseMixIn
	Changed bool
}

// ensure interface compliance
var _ CameraControlRequest = (*AcquireRequest)(nil)
