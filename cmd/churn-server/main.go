// cmd/churn-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"churn-service/internal/api"
	"churn-service/internal/churn/inference"
	"churn-service/internal/churn/model"
	"churn-service/internal/churn/schema"
	"churn-service/internal/churn/sink"
	awsclient "churn-service/internal/common/aws"
	"churn-service/internal/common/camunda"
	"churn-service/internal/common/config"
	"churn-service/internal/common/database"
	"churn-service/internal/common/logger"
	"churn-service/internal/common/observability"

	pc "churn-service/internal/workers/churn/predict-churn"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting churn service...",
		zap.String("environment", cfg.App.Environment),
		zap.String("modelVersion", cfg.Artifacts.ModelVersion),
	)

	obs := observability.New(cfg.App.Name, observability.Options{
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Load Training Artifacts ---
	trainingSchema, err := schema.NewRegistry(schema.Config{
		Path:              cfg.Artifacts.SchemaPath,
		CategoricalFields: cfg.Artifacts.CategoricalFields,
	}, log).Load()
	if err != nil {
		zapLog.Fatal("training schema unavailable", zap.Error(err))
	}

	classifier, err := model.LoadTreeEnsemble(cfg.Artifacts.ModelPath, trainingSchema)
	if err != nil {
		zapLog.Fatal("model unavailable", zap.Error(err))
	}
	zapLog.Info("Model loaded",
		zap.String("path", cfg.Artifacts.ModelPath),
		zap.Int("trees", classifier.Trees()),
	)

	opts := []inference.Option{
		inference.WithLogger(log),
		inference.WithObservability(obs),
	}
	checks := map[string]api.ReadinessCheck{}
	var sinks []sink.Sink

	// --- Init Redis with retry ---
	if cfg.Cache.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")

		ttl := time.Duration(cfg.Cache.TTL) * time.Second
		opts = append(opts, inference.WithCache(inference.NewRedisCache(redis.Client, ttl)))
		checks["redis"] = redis.Ping
	}

	// --- Init PostgreSQL with retry ---
	if cfg.Database.Postgres.Enabled {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		sinks = append(sinks, sink.NewPostgresSink(pg.DB))
		checks["postgres"] = pg.Ping
	}

	// --- Init Elasticsearch with retry ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		sinks = append(sinks, sink.NewElasticsearchSink(esClient.Client, cfg.Database.Elasticsearch.Index))
		checks["elasticsearch"] = esClient.Ping
	}

	// --- Init SNS Alerts ---
	if cfg.AWS.SNS.Enabled {
		snsClient, err := awsclient.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		sinks = append(sinks, sink.NewAlertSink(snsClient, cfg.AWS.SNS.TopicARN, cfg.Alerts.Threshold))
		zapLog.Info("SNS alerts enabled",
			zap.String("topicArn", cfg.AWS.SNS.TopicARN),
			zap.Float64("threshold", cfg.Alerts.Threshold),
		)
	}

	if len(sinks) > 0 {
		opts = append(opts, inference.WithSinks(sinks...))
	}

	service, err := inference.NewService(inference.Config{
		Schema:       trainingSchema,
		Model:        classifier,
		ModelVersion: cfg.Artifacts.ModelVersion,
	}, opts...)
	if err != nil {
		zapLog.Fatal("inference service failed", zap.Error(err))
	}

	// --- Init Zeebe Client with retry ---
	var (
		zeebeClient *camunda.Client
		predictJobs *camunda.Worker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClient(camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		checks["zeebe"] = zeebeClient.HealthCheck

		wcfg := config.GetWorkerConfig(cfg, pc.TaskType)
		handler := pc.NewHandler(
			&pc.Config{Timeout: config.GetDuration(wcfg.Timeout)},
			service, log,
		)
		predictJobs = camunda.StartWorker(zeebeClient.Zeebe(), pc.TaskType, wcfg, handler.Handle, log)
	}

	// --- HTTP Server ---
	srv := &http.Server{
		Addr: cfg.Server.Address,
		Handler: api.NewServer(service, api.Config{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
			Checks:         checks,
		}, log),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	predictJobs.Stop()
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Churn service stopped gracefully")
}
