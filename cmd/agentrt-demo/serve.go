package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentrt/core/config"
	"github.com/agentrt/core/controller"
	"github.com/agentrt/core/httpapi"
	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/memory"
	"github.com/agentrt/core/model"
	"github.com/agentrt/core/model/anthropicmodel"
	"github.com/agentrt/core/model/middleware"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP ingress, serving the streaming chat endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewProductionLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	if cfg.Log.Dev {
		logger, err = telemetry.NewDevelopmentLogger()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
	}

	anthropicClient, err := anthropicmodel.NewFromAPIKey(cfg.Model.AnthropicAPIKey, cfg.Model.DefaultModel)
	if err != nil {
		return fmt.Errorf("build model client: %w", err)
	}
	limiter := middleware.New(float64(cfg.Model.DefaultMaxTokens)*4, float64(cfg.Model.DefaultMaxTokens)*8)
	var client model.Client = limiter.Middleware()(anthropicClient)

	registry := tools.NewRegistry()
	interrupts := interrupt.New()
	extractor := memory.New(client, memory.NewInMemoryStore(), cfg.Model.DefaultModel, logger)

	ctrl := controller.New(client, registry, interrupts, extractor, logger).
		WithTracer(telemetry.NewOTelTracer("agentrt-demo")).
		WithMetrics(telemetry.NewOTelMetrics("agentrt-demo"))

	srv := httpapi.New(cfg, ctrl, interrupts, registry, logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info(ctx, "shutting down")
	return srv.Stop(ctx)
}
