// Package embedding converts text to fixed-dimension vectors for
// similarity search. One provider instance serves the whole process;
// it is resolved once from configuration at startup and is safe for
// concurrent use.
package embedding

import "context"

// DefaultDimensions is the documented vector size when none is
// configured. The document store's vector index must be provisioned
// with the same value.
const DefaultDimensions = 1024

// Provider converts text to a fixed-length vector. Implementations
// fail with PROVIDER_UNAVAILABLE or RATE_LIMITED; callers that persist
// data treat both as soft failures and write without a vector.
type Provider interface {
	// Embed returns a vector of exactly Dimensions() elements.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the provider's declared output size. All vectors
	// in one project's memory collection share this dimensionality.
	Dimensions() int

	// Name identifies the provider in logs and error messages.
	Name() string
}
