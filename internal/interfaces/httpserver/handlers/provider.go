package handlers

import (
	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/dispatch"
	"toolhub/services/conversion-api/internal/domain/execution"
	"toolhub/services/conversion-api/internal/domain/tool"
)

// Provider wires HTTP handlers.
type Provider struct {
	Tools      *ToolHandler
	Executions *ExecutionHandler
}

func NewProvider(cfg *config.Config, registry *tool.Registry, dispatcher *dispatch.Dispatcher, executions *execution.Service, log zerolog.Logger) *Provider {
	return &Provider{
		Tools:      NewToolHandler(cfg, registry, dispatcher, log),
		Executions: NewExecutionHandler(cfg, executions, dispatcher, log),
	}
}
