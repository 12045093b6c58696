package bootstrap

import (
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/salon-booking/internal/appointments"
	"github.com/wolfman30/salon-booking/internal/archive"
	"github.com/wolfman30/salon-booking/internal/availability"
	appconfig "github.com/wolfman30/salon-booking/internal/config"
	"github.com/wolfman30/salon-booking/internal/events"
	"github.com/wolfman30/salon-booking/internal/notify"
	"github.com/wolfman30/salon-booking/internal/observability/metrics"
	"github.com/wolfman30/salon-booking/internal/payments"
	"github.com/wolfman30/salon-booking/internal/realtime"
	"github.com/wolfman30/salon-booking/internal/schedule"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

// BuildRecordStore selects the appointment repository named by RECORD_STORE.
// The Postgres store needs pg; the Dynamo store needs awsCfg.
func BuildRecordStore(cfg *appconfig.Config, pg *Postgres, awsCfg aws.Config, logger *logging.Logger) appointments.Repository {
	if cfg.UseDynamo() {
		logger.Info("record store: dynamodb", "table", cfg.DynamoAppointmentsTable)
		return appointments.NewDynamoRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoAppointmentsTable, logger)
	}
	logger.Info("record store: postgres")
	return appointments.NewPostgresRepository(pg.Pool)
}

// BuildEmailSender picks the email provider. Unknown or unconfigured
// providers fall back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			logger.Warn("email: sendgrid selected without SENDGRID_API_KEY, using stub")
			break
		}
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	return notify.NewStubEmailSender(logger)
}

// BuildSMSSender returns Twilio when credentials are present, otherwise the stub.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	twilio := notify.NewTwilioSender(notify.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, logger)
	if twilio == nil {
		return notify.NewStubSMSSender(logger)
	}
	return twilio
}

// BuildDirectNotifier sends email and SMS in-process.
func BuildDirectNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) *notify.Service {
	return notify.NewService(BuildEmailSender(cfg, awsCfg, logger), BuildSMSSender(cfg, logger), logger)
}

// BuildNotifier returns the notifier the API hands to the booking service.
// With NOTIFICATION_QUEUE_URL set, notices are queued for the worker.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.Notifier {
	if url := strings.TrimSpace(cfg.NotificationQueueURL); url != "" {
		logger.Info("notifications: queued", "queue_url", url)
		return notify.NewQueueNotifier(sqs.NewFromConfig(awsCfg), url)
	}
	return BuildDirectNotifier(cfg, awsCfg, logger)
}

// BuildDeliveryHandler assembles the outbox consumers. The returned func
// closes any writers it opened.
func BuildDeliveryHandler(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (events.MultiHandler, func()) {
	var (
		handlers events.MultiHandler
		closers  []func() error
	)
	if brokers := events.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafka := events.NewKafkaHandler(brokers)
		handlers = append(handlers, kafka)
		closers = append(closers, kafka.Close)
		logger.Info("outbox: kafka delivery enabled", "brokers", len(brokers))
	}
	if bucket := strings.TrimSpace(cfg.ArchiveBucket); bucket != "" {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		handlers = append(handlers, archive.NewStore(client, bucket, logger))
		logger.Info("outbox: archive enabled", "bucket", bucket)
	}
	return handlers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("outbox: close handler", "error", err)
			}
		}
	}
}

// Engine is the appointment core shared by the API and the worker.
type Engine struct {
	Repo      appointments.Repository
	Schedules *schedule.PostgresStore
	Service   *appointments.Service
	// Stream is nil when Redis is unavailable.
	Stream http.Handler
}

// BuildEngine wires the record store, resolver, payment gateway and
// realtime publisher into the booking service.
func BuildEngine(cfg *appconfig.Config, pg *Postgres, redisClient *redis.Client, awsCfg aws.Config, notifier notify.Notifier, m *metrics.BookingMetrics, logger *logging.Logger) *Engine {
	repo := BuildRecordStore(cfg, pg, awsCfg, logger)
	schedules := schedule.NewPostgresStore(pg.DB)
	resolver := availability.NewResolver(appointments.NewBookingSource(repo), schedules, logger, m)

	opts := []appointments.Option{
		appointments.WithNotifier(notifier),
		appointments.WithPaymentInitiator(payments.NewStripeGateway(cfg.StripeSecretKey, logger, payments.WithCurrency(cfg.StripeCurrency))),
		appointments.WithMetrics(m),
		appointments.WithNotifyTimeout(cfg.NotifyTimeout),
		appointments.WithExpiryPolicy(cfg.PendingExpiryWindow, cfg.AuthorizationTimeout),
	}
	engine := &Engine{Repo: repo, Schedules: schedules}
	if redisClient != nil {
		opts = append(opts, appointments.WithPublisher(realtime.NewPublisher(redisClient, logger)))
		engine.Stream = realtime.NewStreamHandler(realtime.NewRedisFeed(redisClient, repo, logger), cfg.CORSAllowedOrigins, logger)
	} else {
		logger.Warn("redis unavailable; realtime views disabled")
	}
	engine.Service = appointments.NewService(repo, resolver, schedules, logger, opts...)
	return engine
}
