// Package alphavantage describes the Alpha Vantage API (US markets) as a proxy provider.
package alphavantage

import (
	"fmt"

	"FinRelay/internal/domain/models"
	"FinRelay/internal/usecase"
	"FinRelay/pkg/config"
)

const (
	Source         = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
)

// Operations is the Alpha Vantage operation table. Every operation hits /query and is
// told apart upstream by the fixed "function" parameter.
var Operations = []usecase.Operation{
	{
		Endpoint: "quote",
		Path:     "/query",
		Fixed:    []models.Param{{Name: "function", Value: "GLOBAL_QUOTE"}},
	},
	{
		Endpoint: "ohlcv",
		Path:     "/query",
		Optional: []models.Param{{Name: "outputsize", Value: "full"}},
		Fixed:    []models.Param{{Name: "function", Value: "TIME_SERIES_DAILY_ADJUSTED"}},
	},
	{
		Endpoint: "fundamentals",
		Path:     "/query",
		Fixed:    []models.Param{{Name: "function", Value: "OVERVIEW"}},
	},
}

// New builds an Alpha Vantage provider instance from its config entry.
func New(cfg config.Provider) (usecase.Provider, error) {
	if cfg.Kind != config.KindAlphaVantage {
		return usecase.Provider{}, fmt.Errorf("alphavantage: unexpected provider kind %q", cfg.Kind)
	}
	auth, err := usecase.NewAuthenticator(cfg.Auth, cfg.CredentialKeys)
	if err != nil {
		return usecase.Provider{}, fmt.Errorf("alphavantage %s: %w", cfg.Name, err)
	}
	policy := usecase.FailurePolicy(cfg.FailurePolicy)
	if policy == "" {
		policy = usecase.PolicyPassthrough
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	p := usecase.Provider{
		Name:        cfg.Name,
		Source:      Source,
		BaseURL:     baseURL,
		Shared:      []string{"symbol"},
		Identifiers: []string{"symbol"},
		Headers:     map[string]string{},
		Operations:  Operations,
		Auth:        auth,
		Policy:      policy,
	}
	if err := p.Validate(); err != nil {
		return usecase.Provider{}, err
	}
	return p, nil
}
