package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePayload_JSONKeptVerbatim(t *testing.T) {
	got := NormalizePayload([]byte(`{"ltp":2945.5}`))
	assert.JSONEq(t, `{"ltp":2945.5}`, string(got))
}

func TestNormalizePayload_NonJSONWrapped(t *testing.T) {
	for _, body := range []string{"<html>Bad Gateway</html>", "", "   ", "{broken"} {
		got := NormalizePayload([]byte(body))
		var raw RawPayload
		require.NoError(t, json.Unmarshal(got, &raw), "body %q", body)
		assert.Equal(t, body, raw.Raw)
	}
}

func TestEnvelope_MarshalJSON(t *testing.T) {
	env := &Envelope{
		Source:      "groww",
		Auth:        "bearer_token",
		Endpoint:    "quote",
		Identifiers: []Param{{Name: "exchange", Value: "NSE"}, {Name: "segment", Value: "CASH"}},
		Status:      StatusFailure,
		HTTPStatus:  401,
		FetchedAt:   time.Date(2025, 1, 2, 3, 4, 5, 123_000_000, time.FixedZone("IST", 19800)),
		Data:        json.RawMessage(`{"message":"unauthorised"}`),
	}

	b, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"source":"groww",
		"auth":"bearer_token",
		"endpoint":"quote",
		"exchange":"NSE",
		"segment":"CASH",
		"status":"FAILURE",
		"http_status":401,
		"fetched_at_utc":"2025-01-01T21:34:05.123Z",
		"data":{"message":"unauthorised"}
	}`, string(b))
}

func TestEnvelope_MarshalJSON_OmitsEmptyOptionalFields(t *testing.T) {
	env := &Envelope{
		Source:      "alphavantage",
		Endpoint:    "fundamentals",
		Identifiers: []Param{{Name: "symbol", Value: "IBM"}},
		FetchedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "auth")
	assert.NotContains(t, m, "status")
	assert.NotContains(t, m, "http_status")
	assert.Equal(t, "2025-01-02T03:04:05.000Z", m["fetched_at_utc"])
	assert.Nil(t, m["data"])
}

func TestEnvelope_MarshalJSON_KeepsUpstreamBytes(t *testing.T) {
	env := Envelope{
		Source:    "groww",
		Endpoint:  "quote",
		FetchedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:      NormalizePayload([]byte("<b>A&B</b>")),
	}
	b, err := env.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"data":{"raw":"<b>A&B</b>"}`)
}
