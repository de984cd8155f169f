// Command reqflowd runs the request workflow daemon: the inbound email
// dispatcher and the deadline sweeper on their configured intervals, with a
// Prometheus metrics endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/casetrail/reqflow/classify"
	"github.com/casetrail/reqflow/config"
	"github.com/casetrail/reqflow/dsr"
	"github.com/casetrail/reqflow/email"
	"github.com/casetrail/reqflow/logger"
	"github.com/casetrail/reqflow/metrics"
	"github.com/casetrail/reqflow/store"
	"github.com/casetrail/reqflow/version"
	"github.com/casetrail/reqflow/worker"
	"github.com/casetrail/reqflow/workflow"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.GetVersionInfo())
		return
	}
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reqflowd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	logger.Configure(logger.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	log := logger.With("component", "reqflowd")
	attrs := append(version.GetBuildInfo(),
		"env", cfg.Env, "store", cfg.StoreBackend, "mail", cfg.MailBackend)
	log.InfoContext(ctx, "starting", attrs...)

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	transport, err := buildTransport(ctx, cfg)
	if err != nil {
		return err
	}

	reg := workflow.NewRegistry()
	registerWorkflows(reg, cfg)

	exporter := metrics.NewExporter(cfg.MetricsAddr)
	exporter.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := exporter.Stop(shutdownCtx); err != nil {
			log.Error("metrics exporter shutdown failed", "error", err)
		}
	}()

	inbound := worker.NewInbound(reg, st, transport, worker.WithMailbox(cfg.Mailbox))
	deadline := worker.NewDeadline(reg, st, worker.WithConcurrency(cfg.SweepConcurrency))

	runner := worker.NewRunner()
	runner.Add("inbound", cfg.InboundInterval, inbound.Run)
	runner.Add("deadline", cfg.DeadlineInterval, deadline.Run)

	log.InfoContext(ctx, "drivers scheduled",
		"inbound_interval", cfg.InboundInterval,
		"deadline_interval", cfg.DeadlineInterval,
		"metrics_addr", cfg.MetricsAddr)
	runner.Run(ctx)

	log.Info("shutting down")
	return nil
}

// registerWorkflows wires the built-in workflows. The GDPR data request
// workflow upgrades from keyword matching to LLM classification when an
// OpenAI key is configured.
func registerWorkflows(reg *workflow.Registry, cfg *config.Config) {
	var opts []dsr.Option
	if cfg.OpenAIAPIKey != "" {
		completer := classify.NewOpenAICompleter(cfg.OpenAIAPIKey, classify.WithModel(cfg.OpenAIModel))
		llm := classify.NewLLM(completer, []workflow.Event{
			dsr.EventAcknowledged,
			dsr.EventDataReceived,
			dsr.EventInfoRequested,
			dsr.EventCancelled,
		})
		opts = append(opts, dsr.WithClassifier(llm))
	}
	dsr.Register(reg, opts...)
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		return store.NewRedis(client), func() { client.Close() }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func buildTransport(ctx context.Context, cfg *config.Config) (email.Transport, error) {
	switch cfg.MailBackend {
	case config.BackendSES:
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.AWSRegion),
		}
		if cfg.AWSAccessKeyID != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		var sesOpts []email.SESOption
		if cfg.SESInboundBucket != "" {
			sesOpts = append(sesOpts,
				email.WithInboundBucket(cfg.SESInboundBucket),
				email.WithInboundPrefix(cfg.SESInboundPrefix),
			)
		}
		return email.NewSES(awsCfg, cfg.SESSender, sesOpts...), nil
	default:
		return email.NewMemory(), nil
	}
}
