package actor

import (
	"testing"
	"time"

	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/util"
	"camspec2mqtt/pkg/devctrl"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnTestCameraActor(t *testing.T, es *eventstream.EventStream) (*actor.ActorSystem, *actor.PID) {
	t.Helper()

	as := actor.NewActorSystem()

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	sim := devctrl.NewSimTransport()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCameraActor(&cfg, func() (devctrl.Transport, error) {
			return sim, nil
		}, es, nil, logger)
	})
	pid, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_CAMERA)
	if err != nil {
		t.Fatal(err)
	}
	return as, pid
}

func TestCameraActorReachesRunning(t *testing.T) {

	es := eventstream.EventStream{}
	as, pid := spawnTestCameraActor(t, &es)
	defer as.Shutdown()
	context := as.Root

	// give the controller time to connect, init and start
	deadline := time.Now().Add(10 * time.Second)
	var stateResp domain.GetControllerStateResponse
	for time.Now().Before(deadline) {
		res, err := context.RequestFuture(pid, domain.GetControllerStateRequest{}, 2*time.Second).Result()
		if err == nil {
			if resp, ok := res.(domain.GetControllerStateResponse); ok {
				stateResp = resp
				if resp.State == devctrl.StateRunning {
					break
				}
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	assert.Equal(t, devctrl.StateRunning, stateResp.State)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy)
	assert.Equal(t, "RUNNING", healthResp.State)

	context.Stop(pid)
}

func TestCameraActorAttributeRoundTrip(t *testing.T) {

	es := eventstream.EventStream{}
	as, pid := spawnTestCameraActor(t, &es)
	defer as.Shutdown()
	context := as.Root

	time.Sleep(3 * time.Second)

	// write then read back
	res, err := context.RequestFuture(pid, domain.WriteAttributeRequest{Name: "gain", Value: 7.5}, 5*time.Second).Result()
	assert.NoError(t, err)
	writeResp, ok := res.(domain.WriteAttributeResponse)
	assert.True(t, ok)
	assert.NoError(t, writeResp.GetResponseError())
	if assert.NotNil(t, writeResp.Value) {
		f, ok := writeResp.Value.Float()
		assert.True(t, ok)
		assert.Equal(t, 7.5, f)
	}

	res, err = context.RequestFuture(pid, domain.GetAttributeRequest{Name: "gain"}, 5*time.Second).Result()
	assert.NoError(t, err)
	getResp, ok := res.(domain.GetAttributeResponse)
	assert.True(t, ok)
	assert.NoError(t, getResp.GetResponseError())
	if assert.NotNil(t, getResp.Value) {
		f, ok := getResp.Value.Float()
		assert.True(t, ok)
		assert.Equal(t, 7.5, f)
	}

	context.Stop(pid)
}

func TestCameraActorPublishesImages(t *testing.T) {

	es := eventstream.EventStream{}

	images := make(chan domain.ImageUpdateEvent, 16)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.ImageUpdateEvent); ok {
			select {
			case images <- ev:
			default:
			}
		}
	})
	defer es.Unsubscribe(sub)

	as, pid := spawnTestCameraActor(t, &es)
	defer as.Shutdown()
	context := as.Root

	select {
	case ev := <-images:
		assert.Equal(t, "testcam", ev.Device)
		assert.NotEmpty(t, ev.Image)
	case <-time.After(10 * time.Second):
		t.Error("no image event received")
	}

	context.Stop(pid)
}
