package actor

import (
	"errors"
	"fmt"
	"log"
	"time"

	adactor "camspec2mqtt/internal/adapter/actor"
	"camspec2mqtt/internal/config"
	"camspec2mqtt/internal/core/domain"
	. "camspec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type CameraActorProvider func(*eventstream.EventStream) *CameraActor

// HistoryActorProvider is nil when history recording is disabled.
type HistoryActorProvider func(*eventstream.EventStream) *adactor.HistoryActor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	cameraActor        *actor.PID
	mqttActor          *actor.PID
	spectrumActor      *actor.PID
	historyActor       *actor.PID

	cameraActorProvider  CameraActorProvider
	mqttActorProvider    MQTTActorProvider
	historyActorProvider HistoryActorProvider

	logger *zap.Logger
}

type healthCheckResult struct {
	cameraActorHealthy   bool
	mqttActorHealthy     bool
	spectrumActorHealthy bool
	historyActorHealthy  bool
	checksExpected       int
	checksReceived       int
	respondTo            *actor.PID
}

func NewMasterOfPuppetsActor(config config.Config, cameraActorProvider CameraActorProvider,
	mqttActorProvider MQTTActorProvider, historyActorProvider HistoryActorProvider,
	logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          &eventstream.EventStream{},
		cameraActorProvider:  cameraActorProvider,
		mqttActorProvider:    mqttActorProvider,
		historyActorProvider: historyActorProvider,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset(state.historyActorProvider != nil)

		// start Camera child
		cameraActorPID, err := state.startCameraActor(ctx)
		if err != nil {
			panic(err)
		}
		state.cameraActor = cameraActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start Spectrum child
		spectrumActorPID, err := state.startSpectrumActor(ctx)
		if err != nil {
			panic(err)
		}
		state.spectrumActor = spectrumActorPID

		// start History child
		if state.historyActorProvider != nil {
			historyActorPID, err := state.startHistoryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.historyActor = historyActorPID
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(state.historyActor != nil)
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Camera Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.cameraActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_CAMERA,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// Spectrum Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.spectrumActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_SPECTRUM,
				Healthy: false,
			}
		})
		// History Actor Request
		if state.historyActor != nil {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.historyActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      domain.ACTOR_ID_HISTORY,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(3 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.CameraControlRequest:
		// forward to camera, replies go straight to the requester
		state.logger.Debug("master@default CameraControlRequest", zap.String("command", msg.CameraControlCommand()))
		ctx.RequestWithCustomSender(state.cameraActor, msg, ctx.Sender())
	case domain.GetSpectrumRequest:
		state.logger.Debug("master@default GetSpectrumRequest")
		ctx.RequestWithCustomSender(state.spectrumActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		// redirect parsedCommand to actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.CameraControlRequest:
					ctx.Send(state.cameraActor, pcmd)
				}
			}
		}
	case *actor.Terminated:
		// if the camera fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_CAMERA) {
			state.logger.Error("master@default camera error")
			panic(errors.New("camera terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_CAMERA:
				state.currentHealthCheck.cameraActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_SPECTRUM:
				state.currentHealthCheck.spectrumActorHealthy = true
			case domain.ACTOR_ID_HISTORY:
				state.currentHealthCheck.historyActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(3 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startCameraActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	cameraProps := actor.PropsFromProducer(func() actor.Actor {
		return state.cameraActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	cameraActorPID, err := ctx.SpawnNamed(cameraProps, domain.ACTOR_ID_CAMERA)
	if err != nil {
		return nil, err
	}

	return cameraActorPID, nil
}

func (state *MasterOfPuppetsActor) startSpectrumActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	spectrumProps := actor.PropsFromProducer(func() actor.Actor {
		return NewSpectrumActor(&state.config, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	spectrumActorPID, err := ctx.SpawnNamed(spectrumProps, domain.ACTOR_ID_SPECTRUM)
	if err != nil {
		return nil, err
	}

	return spectrumActorPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.cameraActor, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, HADISCOVERY_ACTOR_ID)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startHistoryActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	historyProps := actor.PropsFromProducer(func() actor.Actor {
		return state.historyActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	historyActorPID, err := ctx.SpawnNamed(historyProps, domain.ACTOR_ID_HISTORY)
	if err != nil {
		return nil, err
	}

	return historyActorPID, nil
}

func (state *healthCheckResult) reset(withHistory bool) {
	state.cameraActorHealthy = false
	state.mqttActorHealthy = false
	state.spectrumActorHealthy = false
	state.historyActorHealthy = false
	state.checksReceived = 0
	state.checksExpected = 3
	if withHistory {
		state.checksExpected = 4
	}
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	healthy := state.cameraActorHealthy && state.mqttActorHealthy && state.spectrumActorHealthy
	if state.checksExpected == 4 {
		healthy = healthy && state.historyActorHealthy
	}
	return healthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
