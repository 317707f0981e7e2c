package payments

import (
	"fmt"

	"github.com/farmcart/farmcart-backend/pkg/enums"
	pkgerrors "github.com/farmcart/farmcart-backend/pkg/errors"
)

// Registry resolves the adapter for a payment provider name.
type Registry struct {
	providers map[enums.PaymentProvider]Provider
}

// NewRegistry indexes the given adapters by provider name.
func NewRegistry(providers ...Provider) (*Registry, error) {
	indexed := make(map[enums.PaymentProvider]Provider, len(providers))
	for _, provider := range providers {
		if provider == nil {
			return nil, fmt.Errorf("nil payment provider")
		}
		name := provider.Name()
		if _, exists := indexed[name]; exists {
			return nil, fmt.Errorf("duplicate payment provider %s", name)
		}
		indexed[name] = provider
	}
	return &Registry{providers: indexed}, nil
}

// Get returns the adapter registered for the name.
func (r *Registry) Get(name enums.PaymentProvider) (Provider, error) {
	provider, ok := r.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported payment provider %q", name))
	}
	return provider, nil
}

// Names lists the registered providers, useful for health and config output.
func (r *Registry) Names() []enums.PaymentProvider {
	names := make([]enums.PaymentProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
