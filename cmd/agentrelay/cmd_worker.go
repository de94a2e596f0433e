package main

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

	"github.com/user/agentrelay/internal/awsclient"
	"github.com/user/agentrelay/internal/config"
	"github.com/user/agentrelay/internal/worker"
	"github.com/user/agentrelay/internal/worker/tools"
	"github.com/user/agentrelay/pkg/llm"
	"github.com/user/agentrelay/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the agent worker served inside the AgentCore runtime",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := newAgent(ctx, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Worker.Listen,
		Handler:           worker.NewServer(agent),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("worker started",
		"listen", cfg.Worker.Listen,
		"model", cfg.Worker.ModelID,
		"knowledge_base", cfg.Worker.KnowledgeBaseID,
		"max_iterations", cfg.Worker.MaxIterations,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("worker server: %w", err)
	}
	slog.Info("shutting down")
	return nil
}

func newAgent(ctx context.Context, cfg *config.Config) (*worker.Agent, error) {
	baseURL := cfg.Worker.ModelBaseURL
	if baseURL == "" {
		baseURL = openai.BedrockBaseURL(cfg.Worker.ModelRegion)
	}
	provider := openai.New(&llm.Config{
		BaseURL:     baseURL,
		APIKey:      cfg.Worker.APIKey,
		Model:       cfg.Worker.ModelID,
		MaxTokens:   cfg.Worker.MaxTokens,
		Temperature: cfg.Worker.Temperature,
	})

	var search *tools.KnowledgeSearch
	if cfg.Worker.KnowledgeBaseID == "" {
		slog.Warn("knowledge base not configured")
		search = tools.NewKnowledgeSearch(nil, "", cfg.Worker.KBResults)
	} else {
		kb, err := awsclient.KnowledgeBase(ctx, cfg.Worker.KBRegion)
		if err != nil {
			return nil, err
		}
		search = tools.NewKnowledgeSearch(kb, cfg.Worker.KnowledgeBaseID, cfg.Worker.KBResults)
	}
	registry := worker.NewRegistry(tools.NewCalculator(), search)

	prompt, err := worker.NewPrompt(cfg.Worker.SystemPromptPath)
	if err != nil {
		return nil, err
	}
	budget, err := worker.NewBudget(cfg.Worker.ModelID, cfg.Worker.ToolOutputTokens)
	if err != nil {
		return nil, err
	}
	return worker.NewAgent(provider, registry, prompt, budget, cfg.Worker.MaxIterations), nil
}
