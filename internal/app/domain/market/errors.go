package market

import (
	"errors"
	"fmt"
)

// ErrUpstream marks a provider-side failure: non-2xx responses, transport
// errors, or malformed payloads. Recovered locally via stale-cache
// fallback when possible, otherwise propagated.
var ErrUpstream = errors.New("upstream market data failure")

// ErrInvalidStats marks a derived statistics sanity-check failure. Never
// retried: repeating a structurally invalid derivation cannot fix it.
var ErrInvalidStats = errors.New("invalid derived statistics")

// ErrInvalidDataset marks a malformed derived dataset shape.
var ErrInvalidDataset = errors.New("invalid derived dataset")

// UpstreamError decorates ErrUpstream with request detail.
func UpstreamError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
