package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dlanger/refract-mcp/internal/config"
	"github.com/dlanger/refract-mcp/internal/mcp"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "refract",
	Short: "Long-running code-analysis and refactoring MCP server",
	Long: `refract loads a multi-project codebase once, keeps it resident in
memory, and exposes analysis and staged-edit refactoring operations as MCP
tools over stdio.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	RunE:  runServe,
}

func main() {
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("config", "", "path to YAML config file (default: $REFRACT_CONFIG)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		cfgPath = os.Getenv("REFRACT_CONFIG")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	// Logs go to stderr; stdout is reserved for the MCP protocol.
	setupLogging(cfg.LogLevel)
	slog.Info("refract starting", "version", version, "config", cfgPath)

	srv, err := mcp.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("MCP server ready, listening on stdio")
		errChan <- srv.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())
		cancel()
		srv.Shutdown(context.Background())
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}
