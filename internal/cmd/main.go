package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/betslip/clients"
	"github.com/mcdev12/betslip/clients/slipapi"
	"github.com/mcdev12/betslip/internal/metrics"
	"github.com/mcdev12/betslip/internal/outbox"
	"github.com/mcdev12/betslip/internal/realtime"
	"github.com/mcdev12/betslip/internal/slip"
	"github.com/mcdev12/betslip/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("BETSLIP_CONFIG", "config.yaml")
	config, err := loadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("could not load config file, using defaults")
		config = &Config{}
	}

	baseURL := getEnv("SLIP_API_URL", config.Service.BaseURL)
	channelURL := getEnv("SLIP_CHANNEL_URL", config.Service.ChannelURL)
	apiKey := getEnv("SLIP_API_KEY", "")
	storagePath := getEnv("BETSLIP_DB", firstNonEmpty(config.Storage.Path, "betslip.db"))
	metricsPort := getEnv("METRICS_PORT", firstNonEmpty(config.Metrics.Port, "9104"))

	if baseURL == "" {
		log.Fatal().Msg("SLIP_API_URL (or service.base_url) is required")
	}
	if channelURL == "" {
		log.Fatal().Msg("SLIP_CHANNEL_URL (or service.channel_url) is required")
	}

	requestTimeout := parseDuration(config.Service.RequestTimeout, clients.DefaultRequestTimeout)

	log.Info().
		Str("base_url", baseURL).
		Str("channel_url", channelURL).
		Str("storage", storagePath).
		Dur("request_timeout", requestTimeout).
		Msg("starting betslip engine")

	store, err := storage.NewSQLiteStore(storagePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open local storage")
	}
	defer store.Close()

	api := slipapi.NewClientWithTimeout(baseURL, apiKey, requestTimeout)
	clock := clockwork.NewRealClock()

	engineCfg := slip.DefaultConfig()
	engineCfg.SettleWindow = parseDuration(config.Engine.SettleWindow, engineCfg.SettleWindow)
	engineCfg.SweepInterval = parseDuration(config.Engine.SweepInterval, engineCfg.SweepInterval)

	mirror := slip.NewMirror(store, func() {
		log.Debug().Msg("slip presented")
	})
	lifecycle := slip.NewLifecycle(api, store)
	detector := slip.NewDetector(api)
	app := slip.NewApp(mirror, lifecycle, detector, store, clock, engineCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to rehydrate local state")
	}

	worker := outbox.NewWorker(store, lifecycle, outbox.DefaultConfig())
	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start outbox worker")
	}

	consumer := realtime.NewConsumer(realtime.DefaultConfig(channelURL), mirror, api, clock)
	consumer.OnCountdown = func(remaining time.Duration) {
		if remaining <= 3*time.Second {
			log.Debug().Dur("remaining", remaining).Msg("next periodic refresh")
		}
	}

	metricsSrv := metrics.StartMetricsServer(metricsPort,
		func(ctx context.Context) error {
			_, err := store.LoadDraftID(ctx)
			return err
		},
		store.DumpState,
	)

	go app.Run(ctx)
	go consumer.Run(ctx)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	consumer.Close()

	// Flush pending settle timers into the durable outbox before the run
	// context dies, then give the worker one final drain attempt. Anything
	// undelivered survives in the outbox for the next start.
	if err := app.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to flush pending writes")
	}
	if err := worker.Stop(); err != nil {
		log.Warn().Err(err).Msg("outbox worker stop")
	}
	worker.Drain(shutdownCtx)

	cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
