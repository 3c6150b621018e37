package usecase

import (
	"fmt"

	"FinRelay/pkg/config"
	xhttp "FinRelay/pkg/http"
)

// Authenticator attaches resolved credentials to an upstream request.
type Authenticator interface {
	// Keys lists the credential keys to resolve, in the order Apply receives them.
	Keys() []string
	// Tag is echoed in the envelope "auth" field; empty omits it.
	Tag() string
	Apply(req *xhttp.RequestOptions, secrets []string)
}

// BearerAuth sends "Authorization: Bearer <token>".
type BearerAuth struct {
	TokenKey string
}

func (a BearerAuth) Keys() []string { return []string{a.TokenKey} }
func (a BearerAuth) Tag() string    { return "bearer_token" }

func (a BearerAuth) Apply(req *xhttp.RequestOptions, secrets []string) {
	req.Headers["Authorization"] = "Bearer " + secrets[0]
}

// KeySecretAuth sends an API key and secret as a header pair.
type KeySecretAuth struct {
	KeyKey       string
	SecretKey    string
	KeyHeader    string
	SecretHeader string
}

func (a KeySecretAuth) Keys() []string { return []string{a.KeyKey, a.SecretKey} }
func (a KeySecretAuth) Tag() string    { return "api_key" }

func (a KeySecretAuth) Apply(req *xhttp.RequestOptions, secrets []string) {
	req.Headers[a.KeyHeader] = secrets[0]
	req.Headers[a.SecretHeader] = secrets[1]
}

// QueryKeyAuth embeds the key in the upstream query string; no auth header is sent.
type QueryKeyAuth struct {
	Key   string
	Param string
}

func (a QueryKeyAuth) Keys() []string { return []string{a.Key} }
func (a QueryKeyAuth) Tag() string    { return "" }

func (a QueryKeyAuth) Apply(req *xhttp.RequestOptions, secrets []string) {
	req.QueryParams.Set(a.Param, secrets[0])
}

// NewAuthenticator builds the strategy named by a provider's auth scheme.
func NewAuthenticator(scheme string, keys []string) (Authenticator, error) {
	switch scheme {
	case config.AuthBearer:
		if len(keys) != 1 {
			return nil, fmt.Errorf("bearer auth needs 1 credential key, got %d", len(keys))
		}
		return BearerAuth{TokenKey: keys[0]}, nil
	case config.AuthAPIKey:
		if len(keys) != 2 {
			return nil, fmt.Errorf("api_key auth needs 2 credential keys, got %d", len(keys))
		}
		return KeySecretAuth{
			KeyKey:       keys[0],
			SecretKey:    keys[1],
			KeyHeader:    "X-API-KEY",
			SecretHeader: "X-API-SECRET",
		}, nil
	case config.AuthQueryKey:
		if len(keys) != 1 {
			return nil, fmt.Errorf("query_key auth needs 1 credential key, got %d", len(keys))
		}
		return QueryKeyAuth{Key: keys[0], Param: "apikey"}, nil
	default:
		return nil, fmt.Errorf("unknown auth scheme: %s", scheme)
	}
}
