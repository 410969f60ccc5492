package actor

import (
	"context"
	"fmt"
	"time"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/history"
	"camspec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HistoryActor mirrors numeric sensor updates and controller state
// transitions into InfluxDB.
type HistoryActor struct {
	config         *config.Config
	behavior       actor.Behavior
	recorder       *history.Recorder
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription
	logger         *zap.Logger
}

func NewHistoryActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *HistoryActor {
	act := &HistoryActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		eventStream: eventStream,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HISTORY, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *HistoryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HistoryActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("history@default started")

		recorder, err := history.NewRecorder(state.config.InfluxDB, state.logger)
		if err != nil {
			// let the supervisor decide
			panic(err)
		}
		state.recorder = recorder

		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			switch value.(type) {
			case domain.FloatSensorUpdateEvent, domain.DeviceStateChangedEvent:
				system.Root.Send(self, OnEventStreamMessage{message: value})
			}
		})
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("history@default ActorHealthRequest")
		healthCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HISTORY,
			Healthy: state.recorder != nil && state.recorder.Healthy(healthCtx),
			State:   "idle",
		})
	case OnEventStreamMessage:
		state.record(msg.message)
	default:
		state.logger.Debug("history@default ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HistoryActor) record(event any) {
	switch ev := event.(type) {
	case domain.FloatSensorUpdateEvent:
		state.recorder.WriteSensorValue(state.config.Camera.DeviceName, ev.Id, ev.Value, time.Now())
	case domain.DeviceStateChangedEvent:
		state.recorder.WriteStateTransition(ev.Device, ev.State, ev.Status, ev.At)
	}
}

func (state *HistoryActor) stop() {
	state.logger.Debug("history: stop")
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
	if state.recorder != nil {
		state.recorder.Close()
		state.recorder = nil
	}
}
