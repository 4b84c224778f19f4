package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/gateway"
	"github.com/AltairaLabs/devserver-mcp/internal/ports"
)

const defaultHTTPAddr = ":8080"

var (
	httpMode   bool
	enableGRPC bool
	enableAPI  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator",
	Long: `Run the orchestrator and serve the session tools.

MCP is served on stdio unless --http is given, in which case it is served over
HTTP/SSE on server.http_addr (or :$HTTP_PORT). The gRPC gateway and the JSON
HTTP API listen on the system band ports from the config.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&httpMode, "http", false, "Serve MCP over HTTP/SSE instead of stdio")
	serveCmd.Flags().BoolVar(&enableGRPC, "grpc", true, "Serve the gRPC gateway")
	serveCmd.Flags().BoolVar(&enableAPI, "api", true, "Serve the JSON HTTP API")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(os.Stderr, debug)
	slog.SetDefault(logger)

	cfg, err := loadConfig(resolveConfigPath(configPath, os.Getenv), os.Getenv)
	if err != nil {
		return err
	}

	logger.Info("Starting devserver orchestrator",
		"version", version,
		"debug", debug,
		"http_mode", httpMode,
		"grpc_port", cfg.Server.GRPCPort,
		"api_port", cfg.Server.APIPort,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger, ports.WithProbe(ports.ListenProbe))
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var grpcServer *grpc.Server
	if enableGRPC {
		lis, err := (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen on port %d: %w", cfg.Server.GRPCPort, err)
		}
		grpcServer = grpc.NewServer()
		gateway.NewGRPCServer(a.gateway, logger).RegisterWithServer(grpcServer)
		go func() {
			logger.Info("Starting gRPC gateway", "port", cfg.Server.GRPCPort)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
				cancel()
			}
		}()
	}

	var apiServer *http.Server
	if enableAPI {
		apiServer = gateway.NewHTTPAPI(a.gateway, logger).NewServer(fmt.Sprintf(":%d", cfg.Server.APIPort))
		go func() {
			logger.Info("Starting HTTP API", "port", cfg.Server.APIPort)
			if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP API error", "error", err)
				cancel()
			}
		}()
	}

	var (
		sseServer *server.SSEServer
		sseAddr   string
	)
	if httpMode {
		sseAddr = cfg.Server.HTTPAddr
		if sseAddr == "" {
			sseAddr = defaultHTTPAddr
		}
		sseServer = a.gateway.NewSSEServer(sseAddr, cfg.Server.BaseURL)
	}

	go func() {
		if sseServer != nil {
			if err := sseServer.Start(sseAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("MCP server error", "error", err)
			}
			cancel()
			return
		}
		if err := a.gateway.ServeStdio(); err != nil {
			logger.Error("MCP server error", "error", err)
		}
		// stdin closed: the client is gone.
		cancel()
	}()

	go a.runCleanup(ctx, logger)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Server stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer shutdownCancel()

	if err := a.orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sessions did not stop cleanly", "error", err)
	}
	if apiServer != nil {
		_ = apiServer.Shutdown(shutdownCtx)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if sseServer != nil {
		_ = sseServer.Shutdown(shutdownCtx)
	}
	cancel()

	logger.Info("Shutdown complete")
	return nil
}
