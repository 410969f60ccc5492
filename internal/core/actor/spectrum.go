package actor

import (
	"fmt"

	"camspec2mqtt/internal/config"
	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/core/events"
	"camspec2mqtt/internal/core/service"
	. "camspec2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// SpectrumActor folds camera frames into a 1D spectrum, derives peak, width
// and saturation figures and publishes them as sensor updates. It keeps the
// latest result around for on-demand queries.
type SpectrumActor struct {
	behavior actor.Behavior

	config         *config.Config
	eventStream    *eventstream.EventStream
	eventStreamSub *eventstream.Subscription

	spectrum  []float64
	lastStats service.SpectrumStats
	gotFrame  bool

	logger *zap.Logger
}

type onImageUpdate struct {
	event domain.ImageUpdateEvent
}

func NewSpectrumActor(config *config.Config, eventStream *eventstream.EventStream, logger *zap.Logger) *SpectrumActor {
	act := &SpectrumActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		eventStream: eventStream,
		logger:      ActorLogger(domain.ACTOR_ID_SPECTRUM, logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *SpectrumActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SpectrumActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("spectrum@default started")

		// subscribe to eventStream for camera frames
		self := ctx.Self()
		system := ctx.ActorSystem()
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.ImageUpdateEvent); ok {
				system.Root.Send(self, onImageUpdate{event: ev})
			}
		})
	case *actor.Restarting:
		state.unsubscribe()
	case *actor.Stopping:
		state.unsubscribe()
	case domain.ActorHealthRequest:
		state.logger.Debug("spectrum@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_SPECTRUM,
			Healthy: true,
			State:   "idle",
		})
	case onImageUpdate:
		state.analyze(msg.event)
	case domain.GetSpectrumRequest:
		state.logger.Debug("spectrum@default GetSpectrumRequest")
		resp := domain.GetSpectrumResponse{
			Spectrum: state.spectrum,
			Peak:     state.lastStats.Peak,
			Width:    state.lastStats.Width,
			SatLevel: state.lastStats.SatLevel,
		}
		if !state.gotFrame {
			resp.ResponseError = fmt.Errorf("no frame received yet")
		}
		ForRequest(msg).Respond(ctx, resp)
	default:
		state.logger.Debug("spectrum@default ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *SpectrumActor) analyze(ev domain.ImageUpdateEvent) {
	spectrum, stats := service.AnalyzeImage(ev.Image, state.config.Camera.FullWell)
	if len(spectrum) == 0 {
		return
	}
	state.spectrum = spectrum
	state.lastStats = stats
	state.gotFrame = true

	state.logger.Debug("spectrum@analyze",
		zap.Float64("peak", stats.Peak),
		zap.Float64("width", stats.Width),
		zap.Float64("satlvl", stats.SatLevel))

	for _, uev := range events.SpectrumStatsToUpdateEvents(stats) {
		state.eventStream.Publish(uev)
	}
}

func (state *SpectrumActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
