package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentrt/core/config"
	"github.com/agentrt/core/controller"
	"github.com/agentrt/core/interrupt"
	"github.com/agentrt/core/model/anthropicmodel"
	"github.com/agentrt/core/session"
	"github.com/agentrt/core/stream"
	"github.com/agentrt/core/telemetry"
	"github.com/agentrt/core/tools"
)

func runCmd() *cobra.Command {
	var multiAgent bool
	var deepThinking bool

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "drive one request through the phase graph, printing the event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// A flag left unset stays nil so the Router decides that mode.
			var ma, dt *bool
			if cmd.Flags().Changed("multi-agent") {
				ma = &multiAgent
			}
			if cmd.Flags().Changed("deep-thinking") {
				dt = &deepThinking
			}
			return runOnce(cmd.Context(), args[0], ma, dt)
		},
	}
	cmd.Flags().BoolVar(&multiAgent, "multi-agent", false, "force the multi-agent subgraph")
	cmd.Flags().BoolVar(&deepThinking, "deep-thinking", false, "force the Analysis phase")
	return cmd
}

func runOnce(ctx context.Context, message string, multiAgent, deepThinking *bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := telemetry.NewNoopLogger()
	client, err := anthropicmodel.NewFromAPIKey(cfg.Model.AnthropicAPIKey, cfg.Model.DefaultModel)
	if err != nil {
		return fmt.Errorf("build model client: %w", err)
	}

	registry := tools.NewRegistry()
	ctrl := controller.New(client, registry, interrupt.New(), nil, logger)

	req := controller.Request{
		Messages:     []controller.IncomingMessage{{Role: session.RoleUser, Content: message}},
		MultiAgent:   multiAgent,
		DeepThinking: deepThinking,
	}

	sc, es := ctrl.Start(ctx, req)
	for e := range es.Events() {
		switch e.Type {
		case stream.TypeMessage:
			p := e.Payload.(stream.MessagePayload)
			fmt.Printf("[%s] %s\n", p.Role, p.Content)
		case stream.TypeStreamEnd:
			p := e.Payload.(stream.StreamEndPayload)
			fmt.Printf("stream_end: %s (session=%s, status=%s)\n", p.Reason, sc.SessionID, sc.Status())
		}
	}
	return nil
}
