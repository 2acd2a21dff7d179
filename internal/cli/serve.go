package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/transfa/assistant-service/internal/api"
	"github.com/transfa/assistant-service/internal/assistant"
	"github.com/transfa/assistant-service/internal/config"
	"github.com/transfa/assistant-service/internal/guard"
	"github.com/transfa/assistant-service/internal/scheduler"
	"github.com/transfa/assistant-service/internal/tools"
	limits "github.com/transfa/assistant-service/pkg/middleware"
	"github.com/transfa/assistant-service/pkg/openaiclient"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the stale proposal scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			bootLogger := newLogger(os.Stdout, slog.LevelInfo)
			cfg, err := config.LoadConfig(bootLogger)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(ctx, cfg, newLogger(os.Stdout, cfg.SlogLevel()))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}

	c, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	llm := openaiclient.New(openaiclient.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Timeout:           cfg.ModelTimeout,
		MaxAttempts:       cfg.ModelMaxAttempts,
		RequestsPerSecond: cfg.ModelRequestsPerSecond,
	}, c.metrics, logger)

	validator, err := guard.NewQueryValidator()
	if err != nil {
		return fmt.Errorf("load query validation rules: %w", err)
	}
	mode, err := guard.ParseMode(cfg.IntentClassifierMode)
	if err != nil {
		return err
	}
	var semantic guard.SemanticClassifier
	if cfg.SemanticClassifier {
		semantic = guard.NewLLMSemanticClassifier(llm, cfg.ClassifierModel)
	}
	classifier := guard.NewClassifier(validator, semantic, mode, c.metrics, logger)
	logger.Info("intent classifier ready", "rules", validator.RuleCount(), "mode", mode, "semantic", cfg.SemanticClassifier)

	pipeline := assistant.NewPipeline(
		classifier,
		assistant.NewOpenAIAssistant(llm, cfg.AssistantModel, 0),
		tools.NewRouter(logger, c.metrics),
		c.dispatcher,
		c.publisher,
		c.metrics,
		logger,
		assistant.Config{MaxToolRounds: cfg.MaxToolRounds, MaxMessageLength: cfg.MaxMessageLength},
	)

	chatLimiter, err := newChatLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.NewHandler(pipeline, c.dispatcher, logger), api.RouterConfig{
		Identity: api.IdentityConfig{
			JWTSecret: cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			Audience:  cfg.JWTAudience,
			DevHeader: cfg.DevIdentityHeader,
		},
		AllowedOrigins: cfg.Origins(),
		RequestTimeout: cfg.RequestTimeout,
		ChatLimiter:    chatLimiter,
		Metrics:        c.metrics,
	})

	jobs := scheduler.NewJobs(c.repo, c.publisher, logger, scheduler.Options{
		StaleSchedule: cfg.StaleProposalSchedule,
		StaleAfter:    cfg.PendingStaleAfter,
		BatchLimit:    cfg.StaleProposalBatchLimit,
	})
	sched := scheduler.NewScheduler(jobs, logger)
	if err := sched.Start(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("assistant service starting", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn("scheduler did not stop before shutdown timeout")
		}
		logger.Info("assistant service stopped")
		return err
	})
	return g.Wait()
}

func newChatLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (limits.Limiter, error) {
	if cfg.RedisURL == "" {
		return limits.NewWindowLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow(), cfg.RateLimitMaxClients), nil
	}
	client, err := openRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("using redis rate limiter")
	context.AfterFunc(ctx, func() { client.Close() })
	return limits.NewRedisWindowLimiter(client, "", "chat", cfg.RateLimitRequests, cfg.RateLimitWindow()), nil
}
