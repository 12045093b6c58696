package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/salon-booking/cmd/mainconfig"
	"github.com/wolfman30/salon-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-booking/internal/config"
	"github.com/wolfman30/salon-booking/internal/events"
	"github.com/wolfman30/salon-booking/internal/notify"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	expiryworker "github.com/wolfman30/salon-booking/internal/worker/expiry"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pg, err := bootstrap.BuildPostgres(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Sweeps run next to the queue consumer, so their notices go out directly.
	direct := bootstrap.BuildDirectNotifier(cfg, awsCfg, logger)
	engine := bootstrap.BuildEngine(cfg, pg, redisClient, awsCfg, direct, metrics.NewBookingMetrics(prometheus.NewRegistry()), logger)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("worker started", "component", name)
			fn(ctx)
			logger.Info("worker stopped", "component", name)
		}()
	}

	run("expiry", expiryworker.New(engine.Service, logger).WithInterval(cfg.SweepInterval).Run)

	if cfg.NotificationQueueURL != "" {
		run("notifications", notify.NewQueueConsumer(sqs.NewFromConfig(awsCfg), cfg.NotificationQueueURL, direct, logger).Start)
	}

	handlers, closeHandlers := bootstrap.BuildDeliveryHandler(cfg, awsCfg, logger)
	defer closeHandlers()
	switch {
	case cfg.UseDynamo():
		logger.Info("outbox delivery skipped; dynamodb streams carry change events")
	case len(handlers) == 0:
		logger.Info("outbox delivery disabled; no kafka brokers or archive bucket configured")
	default:
		deliverer := events.NewDeliverer(events.NewOutboxStore(pg.Pool), handlers, logger).
			WithInterval(cfg.OutboxPollInterval)
		run("outbox", deliverer.Start)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("worker shutting down")
	cancel()
	wg.Wait()
}
