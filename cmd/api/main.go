package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "camspec2mqtt/internal/adapter/actor"
	"camspec2mqtt/internal/adapter/transport"
	"camspec2mqtt/internal/config"
	"camspec2mqtt/internal/core/actor"
	"camspec2mqtt/internal/journal"
	"camspec2mqtt/internal/server"
	"camspec2mqtt/internal/util/actorutil"
	"camspec2mqtt/pkg/devctrl"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Camera actor provider
	cameraProv, err := cameraActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, cameraProv, mqttActorProvider(cfg, logger),
			historyActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => CAMSPEC_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("CAMSPEC_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("camspec")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Camera.DeviceName == "" {
		return nil, errors.New("config param camera.device_name is required")
	}
	if cfg.Camera.StatePollMillis > 0 && cfg.Camera.StatePollMillis < 50 {
		return nil, errors.New("config param camera.state_poll_millis should be >= 50ms")
	}
	if cfg.Camera.WatchdogTimeoutMillis > 0 && cfg.Camera.WatchdogTimeoutMillis <= cfg.Camera.CommandTimeoutMillis {
		return nil, errors.New("config param camera.watchdog_timeout_millis must be > camera.command_timeout_millis")
	}
	if cfg.Camera.FullWell <= 0 {
		return nil, errors.New("config param camera.full_well should be > 0")
	}
	if cfg.InfluxDB.Enable && cfg.InfluxDB.URL == "" {
		return nil, errors.New("config param influxdb.url is required when influxdb.enable is set")
	}
	if cfg.Journal.Enable && cfg.Journal.Path == "" {
		return nil, errors.New("config param journal.path is required when journal.enable is set")
	}

	return &cfg, nil
}

func cameraActorProvider(cfg *config.Config, logger *zap.Logger) (actor.CameraActorProvider, error) {

	newTransport, err := transport.Provider(cfg.Camera, logger)
	if err != nil {
		return nil, err
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enable {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
	}

	return func(es *eventstream.EventStream) *actor.CameraActor {
		return actor.NewCameraActor(cfg, func() (devctrl.Transport, error) {
			return newTransport()
		}, es, jrnl, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func historyActorProvider(cfg *config.Config, logger *zap.Logger) actor.HistoryActorProvider {
	if !cfg.InfluxDB.Enable {
		return nil
	}
	return func(es *eventstream.EventStream) *adactor.HistoryActor {
		return adactor.NewHistoryActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "camspec")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("camera.transport", "modbus")
	viper.SetDefault("camera.state_poll_millis", 250)
	viper.SetDefault("camera.command_timeout_millis", 2000)
	viper.SetDefault("camera.init_timeout_millis", 7000)
	viper.SetDefault("camera.settle_delay_millis", 500)
	viper.SetDefault("camera.verify_delay_millis", 100)
	viper.SetDefault("camera.watchdog_timeout_millis", 10000)
	viper.SetDefault("camera.full_well", 65535)
	viper.SetDefault("influxdb.enable", false)
	viper.SetDefault("journal.enable", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.InfluxDB.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
