package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskvault/taskvault/internal/config"
	errs "github.com/taskvault/taskvault/internal/errors"
)

func TestDisabledAlwaysUnavailable(t *testing.T) {
	p := NewDisabled(0)

	_, err := p.Embed(context.Background(), "anything")
	assert.True(t, errs.HasCode(err, errs.CodeProviderUnavailable), "Embed error = %v", err)
	assert.Equal(t, DefaultDimensions, p.Dimensions())
}

func TestDisabledKeepsConfiguredDimensions(t *testing.T) {
	p := NewDisabled(256)
	assert.Equal(t, 256, p.Dimensions())
}

func TestNewProviderSelection(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		wantName string
	}{
		{"no key resolves disabled", "", "disabled"},
		{"key resolves openai", "sk-test", "openai/text-embedding-3-small"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Embedding.APIKey = tt.apiKey

			p := newProvider(cfg)
			assert.Equal(t, tt.wantName, p.Name())
			assert.Equal(t, cfg.Embedding.Dimensions, p.Dimensions())
		})
	}
}

func TestFromConfigCachesInstance(t *testing.T) {
	cfg := config.DefaultConfig()

	a := FromConfig(cfg)
	cfg.Embedding.APIKey = "sk-late" // must not re-resolve
	b := FromConfig(cfg)

	assert.Same(t, a, b, "one provider instance serves the process")
}

func TestOpenAIName(t *testing.T) {
	p := NewOpenAI("sk-test", "", 0)
	assert.Equal(t, "openai/text-embedding-3-small", p.Name())
	assert.Equal(t, DefaultDimensions, p.Dimensions())
}
