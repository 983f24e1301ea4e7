package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	errs "github.com/taskvault/taskvault/internal/errors"
)

// OpenAI implements Provider against the OpenAI embeddings API.
type OpenAI struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAI creates an OpenAI-backed provider. Model defaults to
// text-embedding-3-small and dims to DefaultDimensions; both 3-series
// models accept a requested output dimensionality.
func NewOpenAI(apiKey, model string, dims int) *OpenAI {
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		dims:   dims,
	}
}

// Embed requests one embedding. HTTP 429 maps to RATE_LIMITED, any
// other failure to PROVIDER_UNAVAILABLE.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: openai.Int(int64(o.dims)),
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) && apierr.StatusCode == 429 {
			return nil, errs.ErrRateLimited(o.Name()).WithCause(err)
		}
		return nil, errs.ErrProviderUnavailable(o.Name()).WithCause(err)
	}
	if len(resp.Data) == 0 {
		return nil, errs.ErrProviderUnavailable(o.Name()).WithCause(fmt.Errorf("empty embedding response"))
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	if len(vec) != o.dims {
		return nil, errs.ErrDimensionMismatch(len(vec), o.dims)
	}
	return vec, nil
}

// Dimensions returns the requested output size.
func (o *OpenAI) Dimensions() int { return o.dims }

// Name identifies the provider and model.
func (o *OpenAI) Name() string { return "openai/" + o.model }
