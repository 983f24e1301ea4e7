package embedding

import (
	"log/slog"
	"sync"

	"github.com/taskvault/taskvault/internal/config"
)

var (
	resolveOnce sync.Once
	resolved    Provider
)

// FromConfig resolves the process-wide provider. The first call wins;
// later calls return the same instance regardless of cfg, so a
// configuration change requires a process restart. Provider identity
// is infrastructure, not request-scoped state.
func FromConfig(cfg *config.Config) Provider {
	resolveOnce.Do(func() {
		resolved = newProvider(cfg)
		slog.Info("embedding provider resolved",
			"provider", resolved.Name(),
			"dimensions", resolved.Dimensions())
	})
	return resolved
}

// newProvider builds a provider from configuration without caching.
func newProvider(cfg *config.Config) Provider {
	if cfg.Embedding.APIKey == "" {
		return NewDisabled(cfg.Embedding.Dimensions)
	}
	return NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
}
