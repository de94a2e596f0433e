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
	"golang.org/x/sync/errgroup"

	"github.com/user/agentrelay/internal/awsclient"
	"github.com/user/agentrelay/internal/queue"
	"github.com/user/agentrelay/internal/receiver"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-bridge", false, "run only the receiver HTTP server")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the receiver HTTP server and the queue bridge",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)
	noBridge, _ := cmd.Flags().GetBool("no-bridge")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, err := newReceiver(ctx, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Serve.Listen,
		Handler:           receiver.NewServer(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("receiver listening", "listen", cfg.Serve.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("receiver server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if !noBridge {
		b, err := newBridge(ctx, cfg)
		if err != nil {
			return err
		}
		client, err := awsclient.SQS(ctx, cfg.Queue.Region)
		if err != nil {
			return err
		}
		poller := queue.NewPoller(client, cfg.Queue.URL, b, int64(cfg.Serve.MaxConcurrent), cfg.Serve.WaitTimeSeconds)
		g.Go(func() error {
			slog.Info("bridge polling", "queue", cfg.Queue.URL, "max_concurrent", cfg.Serve.MaxConcurrent)
			return poller.Run(gctx)
		})
	}

	err = g.Wait()
	slog.Info("shutting down")
	return err
}
