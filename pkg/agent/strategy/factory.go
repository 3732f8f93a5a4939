package strategy

import (
	"github.com/dana-ai/dana/pkg/agent"
	"github.com/dana-ai/dana/pkg/config"
	"github.com/dana-ai/dana/pkg/models"
)

// Factory maps mode tags to strategy implementations.
type Factory struct{}

// NewFactory creates the strategy factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create builds the strategy for a mode tag.
func (f *Factory) Create(tag string) (agent.Strategy, error) {
	switch config.AgentMode(tag) {
	case config.AgentModeToolDriven:
		return &toolDriven{}, nil
	case config.AgentModeTaskDriven:
		return &taskDriven{}, nil
	case config.AgentModeHybrid:
		return &hybrid{}, nil
	case config.AgentModeAutonomous:
		return &autonomous{}, nil
	case config.AgentModeStaged:
		return &staged{}, nil
	default:
		return nil, models.NewError(models.KindInvalidInput, "unknown agent mode %q", tag)
	}
}
