package usecase

import (
	"fmt"
	"strings"

	"FinRelay/internal/domain/models"
	"FinRelay/pkg/config"
)

// FailurePolicy decides how an upstream non-2xx response reaches the caller.
type FailurePolicy string

const (
	// PolicyMarker answers 200 with "status":"FAILURE" and the upstream code inside the envelope.
	PolicyMarker FailurePolicy = config.PolicyMarker
	// PolicyPassthrough answers with the upstream status code.
	PolicyPassthrough FailurePolicy = config.PolicyPassthrough
)

// Operation is the fixed template behind one `endpoint` selector value.
type Operation struct {
	Endpoint string
	Path     string
	Required []string       // beyond the provider's shared parameters
	Optional []models.Param // name and default value
	Fixed    []models.Param // upstream params that never come from the caller
}

// Provider is one proxy instance: an upstream API, its operations and its credential strategy.
type Provider struct {
	Name           string // instance name, used for metrics and audit
	Source         string // envelope "source" tag
	BaseURL        string
	Shared         []string       // required by every operation
	SharedOptional []models.Param // optional for every operation, with defaults
	Identifiers    []string       // params echoed in the envelope
	Headers        map[string]string
	Operations     []Operation
	Auth           Authenticator
	Policy         FailurePolicy
}

// Operation returns the template for an endpoint selector.
func (p *Provider) Operation(endpoint string) (*Operation, bool) {
	for i := range p.Operations {
		if p.Operations[i].Endpoint == endpoint {
			return &p.Operations[i], true
		}
	}
	return nil, false
}

// Endpoints lists the accepted selector values in table order.
func (p *Provider) Endpoints() []string {
	out := make([]string, len(p.Operations))
	for i, op := range p.Operations {
		out[i] = op.Endpoint
	}
	return out
}

// Validate checks the table is usable; called once at wiring time.
func (p *Provider) Validate() error {
	if p.Name == "" || p.Source == "" {
		return fmt.Errorf("provider name and source are required")
	}
	if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
		return fmt.Errorf("provider %s: base url must be http(s): %q", p.Name, p.BaseURL)
	}
	if len(p.Operations) == 0 {
		return fmt.Errorf("provider %s: no operations", p.Name)
	}
	if p.Auth == nil {
		return fmt.Errorf("provider %s: no authenticator", p.Name)
	}
	if p.Policy != PolicyMarker && p.Policy != PolicyPassthrough {
		return fmt.Errorf("provider %s: unknown failure policy %q", p.Name, p.Policy)
	}
	seen := make(map[string]bool, len(p.Operations))
	for _, op := range p.Operations {
		if seen[op.Endpoint] {
			return fmt.Errorf("provider %s: duplicate endpoint %q", p.Name, op.Endpoint)
		}
		seen[op.Endpoint] = true
	}
	return nil
}
