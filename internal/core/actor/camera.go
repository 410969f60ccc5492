package actor

import (
	"fmt"
	"time"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/core/events"
	"camspec2mqtt/internal/journal"
	. "camspec2mqtt/internal/util/actorutil"
	"camspec2mqtt/pkg/devctrl"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// CameraActor owns the device controller and bridges it into the actor
// system: controller callbacks become self messages, state transitions and
// polled attributes become event stream publications.
type CameraActor struct {
	behavior actor.Behavior
	stash    *Stash

	config       *config.Config
	eventStream  *eventstream.EventStream
	newTransport func() (devctrl.Transport, error)
	controller   *devctrl.Controller
	journal      *journal.Journal

	logger *zap.Logger
}

type controllerStateChanged struct {
	state  devctrl.DeviceState
	status string
}

type attributePolled struct {
	value *devctrl.AttributeValue
}

func NewCameraActor(config *config.Config, newTransport func() (devctrl.Transport, error),
	eventStream *eventstream.EventStream, jrnl *journal.Journal, logger *zap.Logger) *CameraActor {
	act := &CameraActor{
		config:       config,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		eventStream:  eventStream,
		newTransport: newTransport,
		journal:      jrnl,
		logger:       ActorLogger(domain.ACTOR_ID_CAMERA, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *CameraActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CameraActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("camera@starting started")

		ctrl := devctrl.NewController(state.logger, controllerConfig(state.config.Camera), state.newTransport)

		// controller callbacks run on its dispatcher goroutine, bounce
		// them through the mailbox
		self := ctx.Self()
		system := ctx.ActorSystem()
		ctrl.AddStateListener(devctrl.StateListenerFunc(func(s devctrl.DeviceState, status string) {
			system.Root.Send(self, controllerStateChanged{state: s, status: status})
		}))
		for _, pa := range state.config.Camera.PolledAttributes {
			ctrl.AddPolledAttribute(pa.Name, time.Duration(pa.PeriodMillis)*time.Millisecond,
				func(value *devctrl.AttributeValue) {
					system.Root.Send(self, attributePolled{value: value})
				})
		}

		if err := ctrl.Start(); err != nil {
			panic(err)
		}
		state.controller = ctrl

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("camera@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *CameraActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("camera@default ActorHealthRequest")
		devState := state.controller.State()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_CAMERA,
			Healthy: devState != devctrl.StateUnknown,
			State:   devState.String(),
		})
	case controllerStateChanged:
		state.logger.Debug("camera@default stateChanged",
			zap.String("state", msg.state.String()), zap.String("status", msg.status))
		state.publishStateChange(msg.state, msg.status)
	case attributePolled:
		state.publishAttribute(msg.value)
	case domain.GetControllerStateRequest:
		ctx.Respond(domain.GetControllerStateResponse{
			State:  state.controller.State(),
			Status: state.controller.Status(),
		})
	case domain.GetAttributeRequest:
		state.logger.Debug("camera@default GetAttributeRequest", zap.String("name", msg.Name))
		runTask(NewBackgroundTaskNoError(ctx, func() *domain.GetAttributeResponse {
			value, err := state.controller.GetAttribute(msg.Name)
			return &domain.GetAttributeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Value:              value,
			}
		}), ForRequest(msg).ReplyTo(ctx))
	case domain.WriteAttributeRequest:
		state.logger.Debug("camera@default WriteAttributeRequest", zap.String("name", msg.Name))
		runTask(NewBackgroundTaskNoError(ctx, func() *domain.WriteAttributeResponse {
			value, err := state.controller.WriteThenVerify(msg.Name, msg.Value)
			return &domain.WriteAttributeResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Value:              value,
			}
		}), ForRequest(msg).ReplyTo(ctx))
	case domain.ExecCommandRequest:
		state.logger.Debug("camera@default ExecCommandRequest", zap.String("name", msg.Name))
		runTask(NewBackgroundTaskNoError(ctx, func() *domain.ExecCommandResponse {
			result, err := state.controller.Execute(msg.Name, msg.Arg)
			return &domain.ExecCommandResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
				Result:             result,
			}
		}), ForRequest(msg).ReplyTo(ctx))
	case domain.AcquireRequest:
		state.logger.Debug("camera@default AcquireRequest", zap.Bool("enable", msg.Enable))
		state.handleAcquire(ctx, msg)
	default:
		state.logger.Debug("camera@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CameraActor) handleAcquire(ctx actor.Context, msg domain.AcquireRequest) {
	devState := state.controller.State()
	// already there, nothing to do
	if (msg.Enable && devState == devctrl.StateRunning) ||
		(!msg.Enable && devState != devctrl.StateRunning) {
		ForRequest(msg).Respond(ctx, domain.AcquireResponse{Changed: false})
		// re-publish switch state so a stale panel snaps back
		state.eventStream.Publish(events.AcquireSwitchUpdateEvent(devState == devctrl.StateRunning))
		return
	}
	command := "stop"
	if msg.Enable {
		command = "start"
	}
	runTask(NewBackgroundTaskNoError(ctx, func() *domain.AcquireResponse {
		_, err := state.controller.Execute(command, nil)
		return &domain.AcquireResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Changed:            err == nil,
		}
	}), ForRequest(msg).ReplyTo(ctx))
}

// runTask replies when there is somebody to reply to; fire-and-forget
// requests (MQTT commands) still run.
func runTask[T any](task *SafeBackgroundTask[T], replyTo *actor.PID) {
	if replyTo != nil {
		task.PipeTo(replyTo)
	} else {
		task.Run()
	}
}

func (state *CameraActor) publishStateChange(devState devctrl.DeviceState, status string) {
	state.eventStream.Publish(domain.DeviceStateChangedEvent{
		Device: state.config.Camera.DeviceName,
		State:  devState.String(),
		Status: status,
		At:     time.Now(),
	})
	for _, ev := range events.DeviceStateToUpdateEvents(devState, status) {
		state.eventStream.Publish(ev)
	}
	if state.journal != nil {
		if err := state.journal.Record(state.config.Camera.DeviceName, devState.String(), status); err != nil {
			state.logger.Warn("camera journal record", zap.Error(err))
		}
	}
}

func (state *CameraActor) publishAttribute(value *devctrl.AttributeValue) {
	if value == nil {
		return
	}
	if image, ok := value.Value.([][]float64); ok {
		state.eventStream.Publish(domain.ImageUpdateEvent{
			Device: state.config.Camera.DeviceName,
			Image:  image,
			At:     value.Timestamp,
		})
		return
	}
	for _, ev := range events.AttributeToUpdateEvents(value) {
		state.eventStream.Publish(ev)
	}
}

func (state *CameraActor) stop() {
	state.logger.Debug("camera: stop")
	if state.controller != nil {
		state.controller.Stop()
		state.controller = nil
	}
}

func controllerConfig(cfg config.CameraConfig) devctrl.ControllerConfig {
	params := make([]devctrl.Parameter, 0, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		params = append(params, devctrl.Parameter{Name: p.Name, Value: p.Value})
	}
	millis := func(v uint32) time.Duration {
		return time.Duration(v) * time.Millisecond
	}
	return devctrl.ControllerConfig{
		Name:            cfg.DeviceName,
		Parameters:      params,
		StatePollPeriod: millis(cfg.StatePollMillis),
		CommandTimeout:  millis(cfg.CommandTimeoutMillis),
		InitTimeout:     millis(cfg.InitTimeoutMillis),
		SettleDelay:     millis(cfg.SettleDelayMillis),
		VerifyDelay:     millis(cfg.VerifyDelayMillis),
		WatchdogTimeout: millis(cfg.WatchdogTimeoutMillis),
	}
}
