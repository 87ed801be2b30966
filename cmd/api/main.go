package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinsim/clinsim/internal/api/router"
	"github.com/clinsim/clinsim/internal/bias"
	"github.com/clinsim/clinsim/internal/casefile"
	appconfig "github.com/clinsim/clinsim/internal/config"
	"github.com/clinsim/clinsim/internal/engine"
	"github.com/clinsim/clinsim/internal/http/handlers"
	"github.com/clinsim/clinsim/internal/intent"
	"github.com/clinsim/clinsim/internal/llm"
	"github.com/clinsim/clinsim/internal/observability/metrics"
	"github.com/clinsim/clinsim/internal/persona"
	"github.com/clinsim/clinsim/internal/session"
	"github.com/clinsim/clinsim/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinsim API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"provider", cfg.Provider,
		"case_file", cfg.CaseFile,
	)

	cs, err := casefile.Load(cfg.CaseFile)
	if err != nil {
		logger.Error("failed to load case file", "error", err)
		os.Exit(1)
	}
	logger.Info("case loaded", "case_id", cs.ID, "blocks", len(cs.Blocks), "intents", len(cs.Intents))

	client, err := buildLLMClient(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize llm backend", "error", err)
		os.Exit(1)
	}

	thresholds := bias.DefaultThresholds()
	if cfg.BiasTuningFile != "" {
		thresholds, err = bias.LoadThresholds(cfg.BiasTuningFile)
		if err != nil {
			logger.Error("failed to load bias tuning file", "error", err)
			os.Exit(1)
		}
	}

	reg := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(reg)

	classifier := intent.NewClassifier(client, cs, cfg.ClassifierFailureLimit, cfg.ClassifierCooldown, cfg.GenerateTimeout, logger.Logger)
	detector := bias.NewDetector(cs, thresholds)
	analyzer := bias.NewDeepAnalyzer(client, detector, cfg.GenerateTimeout, logger.Logger)
	personas := persona.NewRegistry(
		persona.NewAnamnesisSon(client, cfg.GenerateTimeout, logger.Logger, engineMetrics.ObserveGenerationFallback),
		persona.NewExamObjective(),
		persona.NewLabsResident(client, cfg.GenerateTimeout, logger.Logger, engineMetrics.ObserveGenerationFallback),
	)

	eng := engine.New(
		cs,
		session.NewStore(),
		classifier,
		personas,
		detector,
		analyzer,
		engine.NewEventLogger(logger),
		engineMetrics,
		logger,
	)

	r := router.New(&router.Config{
		Logger:         logger,
		SessionHandler: handlers.NewSessionHandler(eng, logger),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.GenerateTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildLLMClient constructs the configured backend, optionally wrapped
// with a fallback backend.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, error) {
	primary, err := buildProvider(ctx, cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackProvider == "" || cfg.FallbackProvider == cfg.Provider {
		return primary, nil
	}

	fallback, err := buildProvider(ctx, cfg, cfg.FallbackProvider)
	if err != nil {
		logger.Warn("fallback provider unavailable, continuing without it",
			"provider", cfg.FallbackProvider, "error", err.Error())
		return primary, nil
	}
	logger.Info("llm fallback enabled", "primary", cfg.Provider, "fallback", cfg.FallbackProvider)
	return llm.NewFallbackClient(primary, fallback, logger.Logger), nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, name string) (llm.Client, error) {
	switch name {
	case "ollama":
		return llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.GenerateTimeout)
	case "openai":
		return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
}
