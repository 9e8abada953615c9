package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dlanger/refract-mcp/internal/config"
	"github.com/dlanger/refract-mcp/internal/engine"
	"github.com/dlanger/refract-mcp/internal/plugin"
	"github.com/dlanger/refract-mcp/internal/session"
	"github.com/dlanger/refract-mcp/internal/tools"
	"github.com/dlanger/refract-mcp/internal/watch"
)

const (
	// ServerName is the MCP server name.
	ServerName = "refract-mcp"
	// ServerVersion is the current server version.
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the session and plugin registries.
type Server struct {
	mcp      *server.MCPServer
	sessions *session.Registry
	plugins  *plugin.Registry
	cfg      *config.Config
}

// NewServer builds the full stack: engine, session registry, plugin
// registry with the built-in catalog, and the MCP tool surface.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var engOpts []engine.TextEngineOption
	if cfg.Engine.MaxFileSize > 0 {
		engOpts = append(engOpts, engine.WithMaxFileSize(cfg.Engine.MaxFileSize))
	}
	if len(cfg.Engine.Extensions) > 0 {
		engOpts = append(engOpts, engine.WithExtensions(cfg.Engine.Extensions...))
	}
	eng := engine.NewTextEngine(engOpts...)

	sessions := session.NewRegistry(eng, watch.NewFSRecorder, session.RegistryConfig{
		MaxSessions:   cfg.MaxSessions,
		IdleTimeout:   cfg.IdleTimeout.Std(),
		SweepInterval: cfg.SweepInterval.Std(),
	})

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		sessions: sessions,
		plugins:  plugin.NewRegistry(),
		cfg:      cfg,
	}

	s.plugins.Register(tools.SessionPlugin(sessions, s.settingsFor("session", 100)))
	s.plugins.Register(tools.EditPlugin(sessions, s.settingsFor("edit", 90)))
	s.plugins.Register(tools.AnalysisPlugin(sessions, s.settingsFor("analysis", 80)))
	s.plugins.Register(s.systemPlugin())

	loadReport, err := s.plugins.DiscoverAndLoad()
	if err != nil {
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	for _, f := range loadReport.Failures {
		slog.Warn("plugin load failure", "plugin", f.PluginID, "error", f.Error)
	}

	initReport, err := s.plugins.InitializeAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("initialize plugins: %w", err)
	}
	slog.Info("plugins initialized",
		"ready", len(initReport.Succeeded), "failed", len(initReport.Failures))

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// settingsFor resolves plugin settings from the config file, applying the
// built-in default priority when the file does not override it.
func (s *Server) settingsFor(name string, defaultPriority int) plugin.Settings {
	pc := s.cfg.PluginFor(name)
	settings := plugin.Settings{
		Enabled:               pc.Enabled == nil || *pc.Enabled,
		Priority:              defaultPriority,
		OperationTimeout:      pc.OperationTimeout.Std(),
		EnableDetailedLogging: pc.EnableDetailedLogging,
		Options:               pc.Options,
	}
	if pc.Priority > 0 {
		settings.Priority = pc.Priority
	}
	if settings.OperationTimeout == 0 {
		settings.OperationTimeout = plugin.DefaultOperationTimeout
	}
	return settings
}

// registerTools exposes every dispatchable tool through mcp-go. The handler
// goes through plugin dispatch, so timeout, cancellation, and error
// normalization apply uniformly.
func (s *Server) registerTools() error {
	for _, desc := range s.plugins.GetTools() {
		name := desc.Name
		s.mcp.AddTool(toMCPTool(desc), func(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			args, ok := request.Params.Arguments.(map[string]interface{})
			if !ok {
				args = map[string]interface{}{}
			}
			value, err := s.plugins.Dispatch(ctx, name, args)
			if err != nil {
				return nil, toMCPError(err)
			}
			return mcpgo.NewToolResultText(marshalResult(value)), nil
		})
	}
	return nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	s.sessions.Start()
	defer s.Shutdown(context.Background())
	return server.ServeStdio(s.mcp)
}

// Shutdown stops the sweeper, disposes sessions, and shuts plugins down in
// reverse priority order.
func (s *Server) Shutdown(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report, _ := s.plugins.ShutdownAll(sctx)
	if report != nil {
		for _, f := range report.Failures {
			slog.Warn("plugin shutdown failure", "plugin", f.PluginID, "error", f.Error)
		}
	}
	s.sessions.Close()
}

// Sessions exposes the session registry to the CLI layer.
func (s *Server) Sessions() *session.Registry {
	return s.sessions
}

// Plugins exposes the plugin registry to the CLI layer.
func (s *Server) Plugins() *plugin.Registry {
	return s.plugins
}

// toMCPTool converts a tool descriptor to the mcp-go tool definition.
func toMCPTool(desc plugin.ToolDescriptor) mcpgo.Tool {
	schema := mcpgo.ToolInputSchema{Type: "object"}
	if desc.InputSchema != nil {
		if props, ok := desc.InputSchema["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		if req, ok := desc.InputSchema["required"].([]string); ok {
			schema.Required = req
		}
	}
	return mcpgo.Tool{
		Name:        desc.Name,
		Description: desc.Description,
		InputSchema: schema,
	}
}
