// Package main provides the agentruntime daemon: it loads a runtime
// config file, wires a Store/ModelClient/ToolExecutor, spawns an
// initial agent session when --task is given, then blocks serving
// heartbeats, follow-ups, and crash-recovery resume until interrupted.
//
// Usage:
//
//	agentruntime --config runtime.yaml --agent-id support-bot --task "say hello"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentruntime/core/internal/config"
	"github.com/agentruntime/core/internal/hooks"
	"github.com/agentruntime/core/internal/modelclient"
	"github.com/agentruntime/core/internal/observability"
	"github.com/agentruntime/core/internal/runtime"
	"github.com/agentruntime/core/internal/store"
	"github.com/agentruntime/core/internal/tools"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func main() {
	var (
		configPath string
		storePath  string
		agentID    string
		orgID      string
		task       string
	)

	rootCmd := &cobra.Command{
		Use:   "agentruntime",
		Short: "Agent Runtime - long-lived AI agent session supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, storePath, agentID, orgID, task)
		},
	}

	rootCmd.Flags().StringVar(&configPath, "config", "runtime.yaml", "Path to the runtime config file")
	rootCmd.Flags().StringVar(&storePath, "store", "agentruntime.db", "Path to the SQLite session store")
	rootCmd.Flags().StringVar(&agentID, "agent-id", "default-agent", "Agent id to spawn a session for")
	rootCmd.Flags().StringVar(&orgID, "org-id", "default-org", "Org id to scope the session to")
	rootCmd.Flags().StringVar(&task, "task", "", "Initial user message; if empty, only resumes existing sessions")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentruntime %s\n", Version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath, storePath, agentID, orgID, task string) error {
	fileCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(fileCfg.ToLogConfig())
	metrics := observability.NewMetrics()

	tracerCfg := observability.TraceConfig{ServiceName: "agentruntime"}
	if fileCfg.Tracing.Enabled {
		tracerCfg.Endpoint = fileCfg.Tracing.OTLPEndpoint
	}
	tracer, shutdownTracer := observability.NewTracer(tracerCfg)

	st, err := store.NewSQLiteStore(storePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = shutdownTracer(context.Background()) }()

	models, err := buildModelClients(ctx, fileCfg)
	if err != nil {
		return fmt.Errorf("build model clients: %w", err)
	}

	registry := tools.NewRegistry()
	executor := tools.NewExecutor(registry, tools.DefaultExecutorConfig())
	chain := hooks.NewChain(logger.Slog())

	rt := runtime.New(runtime.Deps{
		Store:    st,
		Models:   models,
		Executor: executor,
		Hooks:    chain,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	}, fileCfg.ToRuntimeConfig())

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer rt.Stop(context.Background())

	if task != "" {
		session, err := rt.Spawn(ctx, runtime.SpawnOptions{
			AgentID:        agentID,
			OrgID:          orgID,
			Provider:       fileCfg.DefaultModel.Provider,
			Model:          fileCfg.DefaultModel.ModelID,
			InitialMessage: task,
		})
		if err != nil {
			return fmt.Errorf("spawn session: %w", err)
		}
		logger.Info(ctx, "spawned session", "session_id", session.ID, "agent_id", agentID)
	}

	logger.Info(ctx, "agentruntime started", "version", Version)
	<-ctx.Done()
	logger.Info(ctx, "agentruntime shutting down")
	return nil
}

// buildModelClients constructs one ModelClient per configured provider,
// keyed by provider name, mirroring the teacher's per-provider adapter
// registration in its gateway bootstrap. bedrock has no api_keys entry
// of its own (AWS auth goes through the credential chain, not a bearer
// key), so it's wired whenever it's named in api_keys with any
// non-empty sentinel value, or selected as the default model provider.
func buildModelClients(ctx context.Context, cfg *config.FileConfig) (map[string]modelclient.ModelClient, error) {
	clients := make(map[string]modelclient.ModelClient)
	for provider, apiKey := range cfg.APIKeys {
		if apiKey == "" {
			continue
		}
		switch provider {
		case "anthropic":
			c, err := modelclient.NewAnthropicClient(modelclient.AnthropicConfig{
				APIKey:       apiKey,
				DefaultModel: cfg.DefaultModel.ModelID,
			})
			if err != nil {
				return nil, err
			}
			clients[provider] = c
		case "openai":
			c, err := modelclient.NewOpenAIClient(modelclient.OpenAIConfig{
				APIKey:       apiKey,
				DefaultModel: cfg.DefaultModel.ModelID,
			})
			if err != nil {
				return nil, err
			}
			clients[provider] = c
		case "bedrock":
			c, err := buildBedrockClient(ctx, cfg)
			if err != nil {
				return nil, err
			}
			clients[provider] = c
		}
	}
	if cfg.DefaultModel.Provider == "bedrock" {
		if _, ok := clients["bedrock"]; !ok {
			c, err := buildBedrockClient(ctx, cfg)
			if err != nil {
				return nil, err
			}
			clients["bedrock"] = c
		}
	}
	return clients, nil
}

func buildBedrockClient(ctx context.Context, cfg *config.FileConfig) (*modelclient.BedrockClient, error) {
	return modelclient.NewBedrockClient(ctx, modelclient.BedrockConfig{
		Region:          cfg.Bedrock.Region,
		AccessKeyID:     cfg.Bedrock.AccessKeyID,
		SecretAccessKey: cfg.Bedrock.SecretAccessKey,
		SessionToken:    cfg.Bedrock.SessionToken,
		DefaultModel:    cfg.DefaultModel.ModelID,
	})
}
