package plugin

import (
	"context"
	"time"
)

// State is a plugin lifecycle state.
type State string

const (
	StateDiscovered   State = "discovered"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateInitFailed   State = "init_failed"
	StateShuttingDown State = "shutting_down"
	StateShutDown     State = "shut_down"
)

// HealthStatus classifies plugin health.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// Health is a point-in-time health report for one plugin.
type Health struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Settings is the recognized per-plugin configuration surface. Options
// carries plugin-specific keys the core does not interpret.
type Settings struct {
	Enabled               bool           `validate:"-"`
	Priority              int            `validate:"gte=0,lte=1000"`
	OperationTimeout      time.Duration  `validate:"gt=0"`
	EnableDetailedLogging bool           `validate:"-"`
	Options               map[string]any `validate:"-"`
}

// Handler executes one tool call. Arguments arrive as decoded JSON; the
// returned value is serialized into the tool result payload.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is a single named invocable operation owned by a plugin.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Enabled     bool
	Handler     Handler
}

// Plugin is a unit of related tools sharing configuration, lifecycle, and
// health reporting. Lifecycle hooks are optional function fields; a nil hook
// is a successful no-op.
type Plugin struct {
	ID          string
	Name        string
	Description string
	Category    string
	Settings    Settings
	Tools       []Tool

	// Init is called once after settings validation. Returning an error
	// marks the plugin InitFailed; its tools never dispatch.
	Init func(ctx context.Context) error

	// Shutdown is called during ShutdownAll, reverse priority order.
	Shutdown func(ctx context.Context) error
}

// ToolDescriptor is the externally visible description of one tool.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	PluginID    string         `json:"plugin_id"`
	Category    string         `json:"category"`
	Priority    int            `json:"priority"`
	Enabled     bool           `json:"enabled"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Factory constructs one plugin. Factories are registered up front;
// DiscoverAndLoad runs them with partial-failure semantics.
type Factory func() (*Plugin, error)
