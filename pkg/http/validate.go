package http

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// MissingParams returns, in declaration order, every required query parameter
// that is absent or empty.
func MissingParams(ctx context.Context, query url.Values, required []string) []string {
	if len(required) == 0 {
		return nil
	}

	data := make(map[string]interface{}, len(required))
	rules := make(map[string]interface{}, len(required))
	for _, name := range required {
		data[name] = query.Get(name)
		rules[name] = "required"
	}

	failed := validate.ValidateMapCtx(ctx, data, rules)
	if len(failed) == 0 {
		return nil
	}

	missing := make([]string, 0, len(failed))
	for _, name := range required {
		if _, bad := failed[name]; bad {
			missing = append(missing, name)
		}
	}
	return missing
}

// OneOf reports whether value is in allowed; an empty value never matches.
func OneOf(value string, allowed []string) bool {
	if value == "" {
		return false
	}
	return validate.Var(value, "oneof="+strings.Join(allowed, " ")) == nil
}
