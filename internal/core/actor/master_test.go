package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "camspec2mqtt/internal/adapter/actor"
	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/util"
	"camspec2mqtt/pkg/devctrl"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	sim := devctrl.NewSimTransport()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func(es *eventstream.EventStream) *CameraActor {
			return NewCameraActor(&cfg, func() (devctrl.Transport, error) {
				return sim, nil
			}, es, nil, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, nil, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(3 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	// camera control requests are forwarded to the camera child
	res, err = context.RequestFuture(pid, domain.GetControllerStateRequest{}, 5*time.Second).Result()
	assert.NoError(t, err)
	stateResp, ok := res.(domain.GetControllerStateResponse)
	assert.True(t, ok)
	assert.Equal(t, devctrl.StateRunning, stateResp.State)

	// spectrum requests are forwarded to the spectrum child
	res, err = context.RequestFuture(pid, domain.GetSpectrumRequest{}, 5*time.Second).Result()
	assert.NoError(t, err)
	spectrumResp, ok := res.(domain.GetSpectrumResponse)
	assert.True(t, ok)
	assert.NotEmpty(t, spectrumResp.Spectrum)

	context.Stop(pid)

	as.Shutdown()
}
