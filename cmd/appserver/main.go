// Command appserver wires every domain service into the HTTP ingress spec 6
// describes and serves it, grounded on the teacher's cmd/server main()'s
// load-config-then-wire-then-serve shape.
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

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/enrichlayer/core/infrastructure/metrics"
	"github.com/enrichlayer/core/internal/app/breaker"
	"github.com/enrichlayer/core/internal/app/credit"
	"github.com/enrichlayer/core/internal/app/domain/provider"
	"github.com/enrichlayer/core/internal/app/enrichment"
	"github.com/enrichlayer/core/internal/app/httpapi"
	"github.com/enrichlayer/core/internal/app/provideradapter"
	"github.com/enrichlayer/core/internal/app/registry"
	"github.com/enrichlayer/core/internal/app/storage/postgres"
	"github.com/enrichlayer/core/internal/app/vault"
	"github.com/enrichlayer/core/internal/app/webhook"
	"github.com/enrichlayer/core/internal/app/workflow"
	"github.com/enrichlayer/core/internal/platform/chmigrations"
	"github.com/enrichlayer/core/internal/platform/database"
	"github.com/enrichlayer/core/internal/platform/migrations"
	"github.com/enrichlayer/core/pkg/config"
	"github.com/enrichlayer/core/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "appserver:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage != "postgres" {
		// The credit ledger's row-locking store (BeginTx + SELECT ... FOR
		// UPDATE) has no in-memory equivalent; internal/app/storage/memory
		// exists only to back unit tests for the other stores.
		return fmt.Errorf("STORAGE_BACKEND=%q is not supported by cmd/appserver; only postgres is", cfg.Storage)
	}

	log := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rawDB, err := database.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer rawDB.Close()
	if err := migrations.Apply(ctx, rawDB); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}
	if cfg.ClickHouseMigrationsEnabled && cfg.ClickHouseDSN != "" {
		if err := chmigrations.Apply(cfg.ClickHouseDSN); err != nil {
			return fmt.Errorf("apply clickhouse migrations: %w", err)
		}
	}
	db := sqlx.NewDb(rawDB, "postgres")

	var promReg *prometheus.Registry
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		promReg = prometheus.NewRegistry()
		m = metrics.New(promReg)
	}

	masterKeyProvider, err := buildMasterKeyProvider(cfg)
	if err != nil {
		return fmt.Errorf("build master key provider: %w", err)
	}
	masterKey, err := masterKeyProvider.MasterKey(ctx)
	if err != nil {
		return fmt.Errorf("resolve master key: %w", err)
	}

	var publishers credit.MultiPublisher
	if m != nil {
		publishers = append(publishers, credit.MetricsPublisher{Metrics: m})
	}
	if cfg.ClickHouseDSN != "" {
		publishers = append(publishers, credit.NewClickHouseHTTPPublisher(cfg.ClickHouseDSN))
	}
	var creditPublisher credit.EventPublisher = credit.NoopPublisher{}
	if len(publishers) > 0 {
		creditPublisher = publishers
	}
	creditSvc := credit.New(postgres.NewCreditStore(db), log, credit.WithEventPublisher(creditPublisher))

	credsSvc := vault.New(postgres.NewVaultStore(db), log,
		vault.WithAuditLog(vault.NewAuditLog(500, vault.NewPostgresAuditSink(rawDB))))

	defs, err := registry.LoadDefinitionsFromYAML(cfg.ProvidersConfigPath)
	if err != nil {
		return fmt.Errorf("load provider catalog: %w", err)
	}
	limiter := provideradapter.NewLimiter(cfg.ProviderAdapterRateLimitPerSec, int(cfg.ProviderAdapterRateLimitPerSec))
	for i, d := range defs {
		adapter, err := buildAdapter(cfg, d)
		if err != nil {
			return err
		}
		defs[i].Adapter = limiter.Wrap(d.Slug, adapter)
	}
	reg, err := registry.New(defs)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	breakers := breaker.NewRegistry(breaker.Config{})

	var activityOpts []enrichment.ActivityOption
	if m != nil {
		activityOpts = append(activityOpts, enrichment.WithActivityMetrics(m))
	}
	recordStore := postgres.NewRecordStore(db)
	activity := enrichment.NewActivity(reg, breakers, creditSvc, credsSvc, masterKey, recordStore, log, activityOpts...)

	var webhookOpts []webhook.Option
	if m != nil {
		webhookOpts = append(webhookOpts, webhook.WithMetrics(m))
	}
	webhookStore := postgres.NewWebhookStore(db)
	webhookSvc := webhook.New(webhookStore, log, webhookOpts...)
	sweeper := webhook.NewRetrySweeper(webhookSvc, webhookStore, log, cfg.WebhookMaxSweeps)
	if err := sweeper.Start(cfg.WebhookRetrySweepSchedule); err != nil {
		return fmt.Errorf("start webhook retry sweeper: %w", err)
	}
	defer sweeper.Stop()

	jobStore := postgres.NewJobStore(db)
	driver := enrichment.NewWorkflowDriver(activity, jobStore, webhookSvc, log)

	wfClient, stopWorkflow, err := buildWorkflowClient(ctx, cfg, log, driver)
	if err != nil {
		return fmt.Errorf("build workflow client: %w", err)
	}
	defer stopWorkflow()

	enrichmentSvc := enrichment.NewService(reg, creditSvc, wfClient, jobStore, recordStore, log)

	auditLog, err := httpapi.NewAuditLog(500, cfg.AuditLogPath, rawDB)
	if err != nil {
		return fmt.Errorf("build audit log: %w", err)
	}

	mux := httpapi.NewRouter(enrichmentSvc, creditSvc, credsSvc, masterKey, webhookSvc, auditLog, log, promReg, m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("appserver listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

func buildMasterKeyProvider(cfg *config.Config) (vault.MasterKeyProvider, error) {
	switch cfg.VaultBackend {
	case "azure_keyvault":
		return vault.NewAzureKeyVaultMasterKeyProvider(cfg.AzureVaultURL, cfg.AzureVaultSecretName)
	default:
		return vault.NewStaticMasterKeyProvider(cfg.VaultMasterKeyHex)
	}
}

// buildAdapter constructs the live provider.Adapter for one catalog
// definition. Base URLs and auth styles live in config rather than
// config/providers.yaml: the catalog only carries domain-shape metadata
// (fields, schemas, credit cost), per registry.LoadDefinitionsFromYAML's
// own doc comment, so transport wiring is cmd/appserver's job.
func buildAdapter(cfg *config.Config, d provider.Definition) (provider.Adapter, error) {
	switch d.Slug {
	case "apollo":
		return provideradapter.NewHTTPClient(cfg.ApolloBaseURL, "/v1/people/match", provideradapter.AuthAPIKeyHeader), nil
	case "clearbit":
		return provideradapter.NewHTTPClient(cfg.ClearbitBaseURL, "/v2/combined/find", provideradapter.AuthBearer), nil
	case "hunter":
		return provideradapter.NewHTTPClient(cfg.HunterBaseURL, "/v2/email-verifier", provideradapter.AuthQueryParam), nil
	default:
		return nil, fmt.Errorf("no adapter wiring configured for provider %q", d.Slug)
	}
}

// buildWorkflowClient selects the Redis-backed or in-process workflow
// client per WORKFLOW_BACKEND, starting the Redis Worker pool when needed.
// The returned stop func is always safe to call and always blocks until
// any started workers have returned.
func buildWorkflowClient(ctx context.Context, cfg *config.Config, log *logger.Logger, driver *enrichment.WorkflowDriver) (workflow.Client, func(), error) {
	if cfg.WorkflowBackend == "inprocess" {
		return workflow.NewInProcessClient(driver.Handler()), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	client := workflow.NewRedisClient(rdb, log)
	worker := workflow.NewWorker(rdb, driver.Handler(), log)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("workflow worker stopped: %v", err)
		}
	}()

	stop := func() {
		cancel()
		<-done
		rdb.Close()
	}
	return client, stop, nil
}
