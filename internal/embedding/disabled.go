package embedding

import (
	"context"

	errs "github.com/taskvault/taskvault/internal/errors"
)

// Disabled is the no-op provider resolved when no API key is
// configured. Embed always fails with PROVIDER_UNAVAILABLE, which
// dependent writes treat as "store without a vector" and search treats
// as "no results".
type Disabled struct {
	dims int
}

// NewDisabled creates a disabled provider. It still declares a
// dimensionality so the document store can validate caller-supplied
// vectors against the collection's established size.
func NewDisabled(dims int) *Disabled {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Disabled{dims: dims}
}

// Embed always fails with PROVIDER_UNAVAILABLE.
func (d *Disabled) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errs.ErrProviderUnavailable(d.Name())
}

// Dimensions returns the declared vector size.
func (d *Disabled) Dimensions() int { return d.dims }

// Name identifies the provider.
func (d *Disabled) Name() string { return "disabled" }
