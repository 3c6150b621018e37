// Package groww describes the Groww trading API (Indian markets) as a proxy provider.
package groww

import (
	"fmt"

	"FinRelay/internal/domain/models"
	"FinRelay/internal/usecase"
	"FinRelay/pkg/config"
)

const (
	Source         = "groww"
	DefaultBaseURL = "https://api.groww.in"
	DefaultSegment = "CASH"
	APIVersion     = "1.0"
)

// Operations is the Groww operation table, in the order accepted values are listed.
var Operations = []usecase.Operation{
	{
		Endpoint: "quote",
		Path:     "/v1/live-data/quote",
		Required: []string{"trading_symbol"},
	},
	{
		Endpoint: "candles",
		Path:     "/v1/historical/candles",
		Required: []string{"groww_symbol", "start_time", "end_time", "candle_interval"},
	},
}

// New builds a Groww provider instance from its config entry.
func New(cfg config.Provider) (usecase.Provider, error) {
	if cfg.Kind != config.KindGroww {
		return usecase.Provider{}, fmt.Errorf("groww: unexpected provider kind %q", cfg.Kind)
	}
	auth, err := usecase.NewAuthenticator(cfg.Auth, cfg.CredentialKeys)
	if err != nil {
		return usecase.Provider{}, fmt.Errorf("groww %s: %w", cfg.Name, err)
	}
	policy := usecase.FailurePolicy(cfg.FailurePolicy)
	if policy == "" {
		policy = usecase.PolicyMarker
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := usecase.Provider{
		Name:           cfg.Name,
		Source:         Source,
		BaseURL:        baseURL,
		Shared:         []string{"exchange"},
		SharedOptional: []models.Param{{Name: "segment", Value: DefaultSegment}},
		Identifiers:    []string{"exchange", "segment"},
		Headers: map[string]string{
			"Accept":        "application/json",
			"X-API-VERSION": APIVersion,
		},
		Operations: Operations,
		Auth:       auth,
		Policy:     policy,
	}
	if err := p.Validate(); err != nil {
		return usecase.Provider{}, err
	}
	return p, nil
}
