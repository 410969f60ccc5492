package history

import (
	"context"
	"fmt"
	"time"

	"camspec2mqtt/internal/config"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

// Recorder writes sensor readings and state transitions to InfluxDB using
// the non-blocking batched write API. Write failures are logged, never
// propagated: history is best effort.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *zap.Logger
}

func NewRecorder(cfg config.InfluxDBConfig, logger *zap.Logger) (*Recorder, error) {
	opts := influxdb2.DefaultOptions().
		SetBatchSize(50).
		SetFlushInterval(5000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("influxdb at %s not ready", cfg.URL)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
		logger:   logger.With(zap.String("component", "history")),
	}

	// drain async write errors
	go func() {
		for err := range writeAPI.Errors() {
			r.logger.Warn("influxdb write error", zap.Error(err))
		}
	}()

	return r, nil
}

// WriteSensorValue records a numeric sensor reading.
func (r *Recorder) WriteSensorValue(device, sensorId string, value float64, at time.Time) {
	p := influxdb2.NewPoint("sensor",
		map[string]string{
			"device": device,
			"sensor": sensorId,
		},
		map[string]interface{}{
			"value": value,
		},
		at)
	r.writeAPI.WritePoint(p)
}

// WriteStateTransition records a controller state change.
func (r *Recorder) WriteStateTransition(device, state, status string, at time.Time) {
	p := influxdb2.NewPoint("device_state",
		map[string]string{
			"device": device,
			"state":  state,
		},
		map[string]interface{}{
			"status": status,
		},
		at)
	r.writeAPI.WritePoint(p)
}

// Healthy pings the server.
func (r *Recorder) Healthy(ctx context.Context) bool {
	ok, err := r.client.Ping(ctx)
	return err == nil && ok
}

// Close flushes pending points and releases the client.
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}
