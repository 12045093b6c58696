package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/salon-booking/cmd/mainconfig"
	"github.com/wolfman30/salon-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/salon-booking/internal/config"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	expiryworker "github.com/wolfman30/salon-booking/internal/worker/expiry"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

type runner interface {
	RunOnce(ctx context.Context) (expiryworker.Report, error)
}

// summary is returned to the scheduler so each invocation is visible in the
// Lambda console.
type summary struct {
	Source  string              `json:"source"`
	Applied int                 `json:"applied"`
	Sweeps  expiryworker.Report `json:"sweeps"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

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

	// Warm invocations reuse the pool and clients built here.
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	notifier := bootstrap.BuildNotifier(cfg, awsCfg, logger)
	engine := bootstrap.BuildEngine(cfg, pg, redisClient, awsCfg, notifier, metrics.NewBookingMetrics(prometheus.NewRegistry()), logger)
	worker := expiryworker.New(engine.Service, logger)

	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (summary, error) {
		return handle(ctx, worker, evt, logger)
	})
}

func handle(ctx context.Context, w runner, evt events.CloudWatchEvent, logger *logging.Logger) (summary, error) {
	source := evt.Source
	if source == "" {
		source = "manual"
	}
	report, err := w.RunOnce(ctx)
	out := summary{Source: source, Applied: report.Applied(), Sweeps: report}
	if err != nil {
		logger.Error("expiry sweep failed", "error", err, "source", source, "applied", out.Applied)
		return out, err
	}
	logger.Info("expiry sweep complete", "source", source, "applied", out.Applied)
	return out, nil
}
