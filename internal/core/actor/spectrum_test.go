package actor

import (
	"testing"
	"time"

	"camspec2mqtt/internal/core/domain"
	"camspec2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSpectrumActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	defer as.Shutdown()

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	es := eventstream.EventStream{}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewSpectrumActor(&cfg, &es, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_SPECTRUM)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)

	// no frame yet
	res, err := context.RequestFuture(pid, domain.GetSpectrumRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	resp, ok := res.(domain.GetSpectrumResponse)
	assert.True(t, ok)
	assert.Error(t, resp.GetResponseError())

	// collect derived sensor updates
	floats := make(chan domain.FloatSensorUpdateEvent, 16)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.FloatSensorUpdateEvent); ok {
			select {
			case floats <- ev:
			default:
			}
		}
	})
	defer es.Unsubscribe(sub)

	// 4 rows x 16 columns, flat 10 with a bump at column 8
	image := make([][]float64, 4)
	for i := range image {
		image[i] = make([]float64, 16)
		for j := range image[i] {
			image[i][j] = 10
		}
		image[i][8] = 100
	}
	es.Publish(domain.ImageUpdateEvent{
		Device: "testcam",
		Image:  image,
		At:     time.Now(),
	})

	time.Sleep(500 * time.Millisecond)

	res, err = context.RequestFuture(pid, domain.GetSpectrumRequest{}, 2*time.Second).Result()
	assert.NoError(t, err)
	resp, ok = res.(domain.GetSpectrumResponse)
	assert.True(t, ok)
	assert.NoError(t, resp.GetResponseError())
	assert.Len(t, resp.Spectrum, 16)
	assert.InDelta(t, 8, resp.Peak, 0.001)
	assert.InDelta(t, 0, resp.Width, 0.001)
	// 4 rows * fullWell 200 -> 400/800
	assert.InDelta(t, 0.5, resp.SatLevel, 0.001)

	seen := map[string]bool{}
	for len(seen) < 3 {
		select {
		case ev := <-floats:
			seen[ev.Id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("missing spectrum sensor updates, got %v", seen)
		}
	}
	assert.True(t, seen[domain.SENSOR_ID_SPECTRUM_PEAK])
	assert.True(t, seen[domain.SENSOR_ID_SPECTRUM_WIDTH])
	assert.True(t, seen[domain.SENSOR_ID_SPECTRUM_SATLVL])

	context.Stop(pid)
}
