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

	"github.com/mark3labs/mcp-go/server"
	"github.com/project-kaizen/kaizen/internal/config"
	kaizenserver "github.com/project-kaizen/kaizen/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveHTTP bool
	serveAddr string
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Starts the Kaizen MCP server. The default stdio transport is what AI
coding tools launch; --http serves the streamable HTTP transport at /mcp.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHTTP {
		cfg.Server.Transport = config.TransportHTTP
	}
	if serveAddr != "" {
		cfg.Server.HTTPAddr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("knowledge store close", zap.Error(err))
		}
	}()

	s := kaizenserver.New(store, logger.Named("mcp"))

	// Graceful shutdown on interrupt.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("kaizen starting",
		zap.String("version", version()),
		zap.String("transport", cfg.Server.Transport),
		zap.String("data_dir", cfg.DataDir),
	)

	switch cfg.Server.Transport {
	case config.TransportHTTP:
		return serveStreamableHTTP(ctx, s, cfg.Server.HTTPAddr)
	default:
		return serveStdio(ctx, s)
	}
}

// serveStdio speaks MCP over stdin/stdout. Logs stay on stderr.
func serveStdio(ctx context.Context, s *server.MCPServer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(zap.NewStdLog(logger.Named("stdio")))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// serveStreamableHTTP runs the HTTP transport until ctx is cancelled.
func serveStreamableHTTP(ctx context.Context, s *server.MCPServer, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s, server.WithEndpointPath("/mcp"))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("listening", zap.String("addr", addr), zap.String("path", "/mcp"))
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func version() string {
	return kaizenserver.Version
}
