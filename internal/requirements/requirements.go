// Package requirements collects human-readable errors from independent status providers.
package requirements

import (
	"github.com/samber/lo"
)

// Status is a provider's current condition. An empty Error means the requirement is met.
type Status struct {
	Error string
}

type Provider interface {
	Name() string
	Status() Status
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc struct {
	ID    string
	Check func() Status
}

func (p ProviderFunc) Name() string   { return p.ID }
func (p ProviderFunc) Status() Status { return p.Check() }

// Aggregator polls its providers in registration order.
type Aggregator struct {
	providers []Provider
}

func NewAggregator(providers ...Provider) *Aggregator {
	return &Aggregator{providers: providers}
}

// Errors returns the unmet requirements, first provider first.
func (a *Aggregator) Errors() []string {
	errs := lo.FilterMap(a.providers, func(p Provider, _ int) (string, bool) {
		st := p.Status()
		return st.Error, st.Error != ""
	})
	if errs == nil {
		return []string{}
	}
	return errs
}

// Failing returns the names of providers reporting an error.
func (a *Aggregator) Failing() []string {
	names := lo.FilterMap(a.providers, func(p Provider, _ int) (string, bool) {
		return p.Name(), p.Status().Error != ""
	})
	if names == nil {
		return []string{}
	}
	return names
}
