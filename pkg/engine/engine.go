// Package engine constructs the configured dialog-engine backend.
package engine

import (
	"fmt"

	"fbgate/pkg/bot"
	"fbgate/pkg/config"
	"fbgate/pkg/engine/openai"
	"fbgate/pkg/engine/remote"
)

// New builds the engine selected by engine.kind. An empty kind selects the
// remote engine.
func New(cfg *config.Config) (bot.Engine, error) {
	switch cfg.Engine.Kind {
	case "", "remote":
		return remote.New(cfg.Engine.Remote)
	case "openai":
		return openai.New(cfg.Engine.OpenAI)
	default:
		return nil, fmt.Errorf("unknown engine kind: %s", cfg.Engine.Kind)
	}
}
