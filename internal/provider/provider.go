// Package provider defines the vendor-adapter contract (§4.1) and the
// thread-safe registry that tracks capability and health metadata for each
// registered provider (§4.2).
package provider

import (
	"context"

	"github.com/wxxb789/vprism/types"
)

// Provider is a named, stateless vendor adapter. All cross-query state
// (health, score, circuit state) lives in the registry, router, and breaker
// registry — never inside a Provider implementation.
type Provider interface {
	// Name returns the provider's unique identifier.
	Name() string

	// Capability is static and pure.
	Capability() types.ProviderCapability

	// Authenticate is idempotent and may be a no-op.
	Authenticate(ctx context.Context) (bool, error)

	// CanHandle reports capability ⊇ query requirements.
	CanHandle(q types.DataQuery) bool

	// GetData fetches data for the query, failing with a *types.Error when
	// the capability is violated or the upstream refuses.
	GetData(ctx context.Context, q types.DataQuery) (types.DataResponse, error)

	// StreamData is equivalent to iterating GetData(query).Data; no
	// separate transport contract exists at this layer.
	StreamData(ctx context.Context, q types.DataQuery) (<-chan types.DataPoint, error)

	// RealtimeQuote returns absent (nil, nil) when unsupported.
	RealtimeQuote(ctx context.Context, symbol, market string) (map[string]string, error)
}

// BaseProvider implements CanHandle and StreamData in terms of Capability
// and GetData so concrete adapters only need to supply the vendor-specific
// parts. Adapters embed it and override Name/Authenticate/GetData/RealtimeQuote.
type BaseProvider struct {
	Cap types.ProviderCapability
}

func (b BaseProvider) Capability() types.ProviderCapability { return b.Cap }

func (b BaseProvider) CanHandle(q types.DataQuery) bool {
	return b.Cap.Accepts(q)
}
