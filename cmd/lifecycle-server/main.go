// cmd/lifecycle-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"camp-lifecycle/internal/automation"
	awsclient "camp-lifecycle/internal/common/aws"
	"camp-lifecycle/internal/common/config"
	"camp-lifecycle/internal/common/database"
	"camp-lifecycle/internal/common/logger"
	"camp-lifecycle/internal/common/observability"
	"camp-lifecycle/internal/email"
	"camp-lifecycle/internal/engine/approval"
	"camp-lifecycle/internal/engine/completion"
	"camp-lifecycle/internal/engine/lifecycle"
	"camp-lifecycle/internal/engine/transition"
	"camp-lifecycle/internal/engine/visibility"
	"camp-lifecycle/internal/events"
	"camp-lifecycle/internal/response"
	"camp-lifecycle/internal/schema"
	"camp-lifecycle/internal/search"
	"camp-lifecycle/internal/server"
)

func main() {
	var cfg *config.Config
	var err error
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Starting lifecycle server", map[string]interface{}{
		"app":         cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Infrastructure connections. Postgres and Redis are mandatory; the rest
	// degrade to disabled.
	var pg *database.PostgresClient
	if err := retryWithBackoff(ctx, "postgres", log, func() error {
		var connErr error
		pg, connErr = database.NewPostgres(cfg.Database.Postgres)
		if connErr != nil {
			return connErr
		}
		return pg.Ping(ctx)
	}); err != nil {
		log.Error("Postgres unavailable, giving up", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer pg.Close()

	var rdb *database.RedisClient
	if err := retryWithBackoff(ctx, "redis", log, func() error {
		var connErr error
		rdb, connErr = database.NewRedis(cfg.Database.Redis)
		if connErr != nil {
			return connErr
		}
		return rdb.Ping(ctx)
	}); err != nil {
		log.Error("Redis unavailable, giving up", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer rdb.Close()

	var es *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			log.Warn("Elasticsearch unavailable, search mirroring disabled", map[string]interface{}{"error": err.Error()})
			es = nil
		} else if err := es.Ping(); err != nil {
			log.Warn("Elasticsearch ping failed, search mirroring disabled", map[string]interface{}{"error": err.Error()})
			es = nil
		}
	}

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	// Outbound collaborators.
	var mailer email.Mailer
	if cfg.Email.Enabled {
		sesClient, err := awsclient.NewSESClient(ctx, cfg.Email.Region)
		if err != nil {
			log.Error("Failed to create SES client", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		mailer = sesClient
	}

	var topic events.Topic
	if cfg.Events.Enabled {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.Events.Region)
		if err != nil {
			log.Error("Failed to create SNS client", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		topic = snsClient
	}
	publisher := events.NewPublisher(topic, cfg.Events, log)

	// Engine wiring.
	schemaRepo := schema.NewRepository(pg, log)
	schemaCache := schema.NewCache(schemaRepo, rdb, time.Duration(cfg.Schema.CacheTTL)*time.Second, log)

	resolver := visibility.NewResolver(log)
	calculator := completion.NewCalculator(resolver)
	gate := approval.NewGate(pg, cfg.Approval.Threshold, cfg.Approval.Teams, log)

	responseRepo := response.NewRepository(log)
	lifecycleSvc := lifecycle.NewService(pg, schemaCache, responseRepo, calculator, gate, publisher, log)
	transitions := transition.NewEngine(pg, gate, publisher, log)

	renderer, err := email.NewRenderer()
	if err != nil {
		log.Error("Failed to compile email templates", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	emailLogs := email.NewLogRepository(pg)
	sender := email.NewSender(renderer, mailer, emailLogs, cfg.Email, log)

	audienceResolver, err := automation.NewAudienceResolver(pg, log)
	if err != nil {
		log.Error("Failed to build audience resolver", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	location, err := time.LoadLocation(cfg.Automation.Timezone)
	if err != nil {
		log.Error("Invalid automation timezone", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	dispatcher := automation.NewDispatcher(
		automation.NewRepository(pg, log),
		audienceResolver,
		sender,
		location,
		time.Duration(cfg.Automation.MinPeriodHours)*time.Hour,
		obs,
		log,
	)
	publisher.Subscribe(dispatcher)

	if es != nil {
		publisher.Subscribe(search.NewEventIndexer(search.NewIndexer(es, log), pg, log))
	}

	healthChecks := map[string]server.HealthCheck{
		"postgres": pg.Ping,
		"redis":    rdb.Ping,
	}
	srv := server.New(lifecycleSvc, transitions, gate, dispatcher, emailLogs, schemaCache,
		healthChecks, cfg.Automation.TriggerToken, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	// Optional in-process hourly trigger. Production deployments usually use
	// an external scheduler hitting /api/v1/automations/run instead; the claim
	// makes running both harmless.
	var scheduler *cron.Cron
	if cfg.Automation.InternalTrigger {
		scheduler = cron.New()
		_, err := scheduler.AddFunc("@hourly", func() {
			runCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Automation.DispatchTimeout))
			defer cancel()
			dispatcher.RunDueAutomations(runCtx, time.Now().UTC())
		})
		if err != nil {
			log.Error("Failed to schedule dispatch cron", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		scheduler.Start()
		log.Info("Internal hourly dispatch trigger enabled", nil)
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down", nil)

	if scheduler != nil {
		cronCtx := scheduler.Stop()
		<-cronCtx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	log.Info("Shutdown complete", nil)
}

// retryWithBackoff attempts fn with exponential backoff, capped at five tries.
func retryWithBackoff(ctx context.Context, name string, log logger.Logger, fn func() error) error {
	const maxAttempts = 5
	backoff := time.Second

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn("Connection attempt failed", map[string]interface{}{
			"target":  name,
			"attempt": attempt,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
