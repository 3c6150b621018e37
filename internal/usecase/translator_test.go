package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"FinRelay/internal/domain/models"
	"FinRelay/internal/domain/repository/mocks"
	"FinRelay/internal/service/alphavantage"
	"FinRelay/internal/service/credentials"
	"FinRelay/internal/service/groww"
	"FinRelay/internal/usecase"
	"FinRelay/pkg/config"
	xhttp "FinRelay/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type capturedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
}

type fakeUpstream struct {
	mu     sync.Mutex
	calls  []capturedRequest
	status int
	body   string
	server *httptest.Server
}

func newFakeUpstream(t *testing.T, status int, body string) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{status: status, body: body}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, capturedRequest{Path: r.URL.Path, Query: r.URL.Query(), Header: r.Header.Clone()})
		f.mu.Unlock()
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) Calls() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedRequest(nil), f.calls...)
}

var fixedNow = time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func growwProvider(t *testing.T, baseURL string, apiKey bool) usecase.Provider {
	t.Helper()
	cfg := config.DefaultProviders()[0]
	if apiKey {
		cfg = config.DefaultProviders()[1]
	}
	cfg.BaseURL = baseURL
	p, err := groww.New(cfg)
	require.NoError(t, err)
	return p
}

func avProvider(t *testing.T, baseURL string) usecase.Provider {
	t.Helper()
	cfg := config.DefaultProviders()[2]
	cfg.BaseURL = baseURL
	p, err := alphavantage.New(cfg)
	require.NoError(t, err)
	return p
}

func newTranslator(p usecase.Provider, creds credentials.Source, opts ...usecase.TranslatorOption) *usecase.Translator {
	opts = append([]usecase.TranslatorOption{usecase.WithClock(func() time.Time { return fixedNow })}, opts...)
	return usecase.NewTranslator(p, xhttp.NewClient(xhttp.WithTimeout(5*time.Second)), creds, opts...)
}

func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return q
}

func envelopeJSON(t *testing.T, res *usecase.Result) map[string]interface{} {
	t.Helper()
	b, err := json.Marshal(res.Envelope)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func requireAppError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	require.Error(t, err)
	var appErr *xhttp.AppError
	require.True(t, errors.As(err, &appErr), "want *AppError, got %T", err)
	assert.Equal(t, status, appErr.Status)
	if msg != "" {
		assert.Equal(t, msg, appErr.Message)
	}
}

func TestTranslate_GrowwQuote_Success(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"status":"SUCCESS","payload":{"last_price":2500.5}}`)
	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok-123"})

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "RELIANCE"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	calls := up.Calls()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, "/v1/live-data/quote", c.Path)
	assert.Equal(t, url.Values{
		"exchange":       {"NSE"},
		"segment":        {"CASH"},
		"trading_symbol": {"RELIANCE"},
	}, c.Query)
	assert.Equal(t, "Bearer tok-123", c.Header.Get("Authorization"))
	assert.Equal(t, "application/json", c.Header.Get("Accept"))
	assert.Equal(t, "1.0", c.Header.Get("X-API-VERSION"))

	b, err := json.Marshal(res.Envelope)
	require.NoError(t, err)
	assert.Equal(t,
		`{"source":"groww","auth":"bearer_token","endpoint":"quote","exchange":"NSE","segment":"CASH",`+
			`"fetched_at_utc":"2025-03-04T05:06:07.890Z","data":{"status":"SUCCESS","payload":{"last_price":2500.5}}}`,
		string(b))
}

func TestTranslate_GrowwCandles_ForwardsOnlyTemplateParams(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"candles":[]}`)
	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok"})

	q := query("endpoint", "candles", "exchange", "BSE", "segment", "FNO",
		"groww_symbol", "BSE-RELIANCE", "start_time", "2025-01-01 09:15:00",
		"end_time", "2025-01-01 15:30:00", "candle_interval", "5", "debug", "1")
	res, err := tr.Translate(context.Background(), q)
	require.NoError(t, err)

	calls := up.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v1/historical/candles", calls[0].Path)
	assert.Equal(t, url.Values{
		"exchange":        {"BSE"},
		"segment":         {"FNO"},
		"groww_symbol":    {"BSE-RELIANCE"},
		"start_time":      {"2025-01-01 09:15:00"},
		"end_time":        {"2025-01-01 15:30:00"},
		"candle_interval": {"5"},
	}, calls[0].Query)

	env := envelopeJSON(t, res)
	assert.Equal(t, "FNO", env["segment"])
	assert.Equal(t, "candles", env["endpoint"])
}

func TestTranslate_GrowwKeySecretAuth(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	creds := credentials.Static{"GROWW_API_KEY": "k", "GROWW_API_SECRET": "s"}
	tr := newTranslator(growwProvider(t, up.server.URL, true), creds)

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "TCS"))
	require.NoError(t, err)

	calls := up.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "k", calls[0].Header.Get("X-API-KEY"))
	assert.Equal(t, "s", calls[0].Header.Get("X-API-SECRET"))
	assert.Empty(t, calls[0].Header.Get("Authorization"))
	assert.Equal(t, "api_key", envelopeJSON(t, res)["auth"])
}

func TestTranslate_MissingCredentialIs500BeforeValidation(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{})

	for _, q := range []url.Values{
		query(),
		query("endpoint", "nope"),
		query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "TCS"),
	} {
		_, err := tr.Translate(context.Background(), q)
		requireAppError(t, err, http.StatusInternalServerError, "Missing GROWW_ACCESS_TOKEN env var")
	}
	assert.Empty(t, up.Calls())
}

func TestTranslate_MissingSecondCredential(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	tr := newTranslator(growwProvider(t, up.server.URL, true), credentials.Static{"GROWW_API_KEY": "k"})

	_, err := tr.Translate(context.Background(), query("endpoint", "quote"))
	requireAppError(t, err, http.StatusInternalServerError, "Missing GROWW_API_SECRET env var")
	assert.Empty(t, up.Calls())
}

func TestTranslate_InvalidRequests(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	gr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok"})
	av := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "key"})

	tests := []struct {
		name string
		tr   *usecase.Translator
		q    url.Values
		msg  string
	}{
		{"groww missing endpoint", gr, query("exchange", "NSE"), "Missing required param: endpoint. Use quote|candles"},
		{"groww unknown endpoint", gr, query("endpoint", "depth", "exchange", "NSE"), "Invalid endpoint. Use quote|candles"},
		{"groww quote missing all", gr, query("endpoint", "quote"), "Missing required params for quote: exchange, trading_symbol"},
		{"groww quote empty symbol", gr, query("endpoint", "quote", "exchange", "NSE", "trading_symbol", ""), "Missing required params for quote: trading_symbol"},
		{"groww candles partial", gr, query("endpoint", "candles", "exchange", "NSE", "groww_symbol", "NSE-TCS", "end_time", "x"),
			"Missing required params for candles: start_time, candle_interval"},
		{"av missing endpoint", av, query("symbol", "IBM"), "Missing required param: endpoint. Use quote|ohlcv|fundamentals"},
		{"av unknown endpoint", av, query("endpoint", "news", "symbol", "IBM"), "Invalid endpoint. Use quote|ohlcv|fundamentals"},
		{"av missing symbol", av, query("endpoint", "ohlcv"), "Missing required params for ohlcv: symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.tr.Translate(context.Background(), tt.q)
			requireAppError(t, err, http.StatusBadRequest, tt.msg)
		})
	}
	assert.Empty(t, up.Calls())
}

func TestTranslate_AlphaVantageOperations(t *testing.T) {
	tests := []struct {
		endpoint string
		extra    []string
		want     url.Values
	}{
		{"quote", nil, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {"IBM"}, "apikey": {"av-key"}}},
		{"ohlcv", nil, url.Values{"function": {"TIME_SERIES_DAILY_ADJUSTED"}, "symbol": {"IBM"}, "outputsize": {"full"}, "apikey": {"av-key"}}},
		{"ohlcv", []string{"outputsize", "compact"}, url.Values{"function": {"TIME_SERIES_DAILY_ADJUSTED"}, "symbol": {"IBM"}, "outputsize": {"compact"}, "apikey": {"av-key"}}},
		{"fundamentals", []string{"outputsize", "compact"}, url.Values{"function": {"OVERVIEW"}, "symbol": {"IBM"}, "apikey": {"av-key"}}},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint+strings.Join(tt.extra, "="), func(t *testing.T) {
			up := newFakeUpstream(t, http.StatusOK, `{"Symbol":"IBM"}`)
			tr := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "av-key"})

			q := query(append([]string{"endpoint", tt.endpoint, "symbol", "IBM"}, tt.extra...)...)
			res, err := tr.Translate(context.Background(), q)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, res.Status)

			calls := up.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, "/query", calls[0].Path)
			assert.Equal(t, tt.want, calls[0].Query)
			assert.Empty(t, calls[0].Header.Get("Authorization"))

			b, err := json.Marshal(res.Envelope)
			require.NoError(t, err)
			assert.Equal(t,
				`{"source":"alphavantage","endpoint":"`+tt.endpoint+`","symbol":"IBM","fetched_at_utc":"2025-03-04T05:06:07.890Z","data":{"Symbol":"IBM"}}`,
				string(b))
		})
	}
}

func TestTranslate_NonJSONBodyIsWrapped(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, "<html>maintenance</html>")
	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok"})

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "TCS"))
	require.NoError(t, err)
	env := envelopeJSON(t, res)
	assert.Equal(t, map[string]interface{}{"raw": "<html>maintenance</html>"}, env["data"])
}

func TestTranslate_MarkerPolicyOnUpstreamFailure(t *testing.T) {
	up := newFakeUpstream(t, http.StatusUnauthorized, `{"error":"token expired"}`)
	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok"})

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "TCS"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	b, err := json.Marshal(res.Envelope)
	require.NoError(t, err)
	assert.Equal(t,
		`{"source":"groww","auth":"bearer_token","endpoint":"quote","exchange":"NSE","segment":"CASH",`+
			`"status":"FAILURE","http_status":401,"fetched_at_utc":"2025-03-04T05:06:07.890Z","data":{"error":"token expired"}}`,
		string(b))
}

func TestTranslate_PassthroughPolicyOnUpstreamFailure(t *testing.T) {
	up := newFakeUpstream(t, http.StatusServiceUnavailable, "busy")
	tr := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "key"})

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "symbol", "IBM"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)

	env := envelopeJSON(t, res)
	assert.NotContains(t, env, "status")
	assert.NotContains(t, env, "http_status")
	assert.Equal(t, map[string]interface{}{"raw": "busy"}, env["data"])
}

func TestTranslate_PassthroughOfNonErrorStatusBecomes502(t *testing.T) {
	up := newFakeUpstream(t, http.StatusNotModified, "")
	tr := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "key"})

	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "symbol", "IBM"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, res.Status)
}

func TestTranslate_TransportErrorIs500AndRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	tr := newTranslator(avProvider(t, baseURL), credentials.Static{"ALPHAVANTAGE_KEY": "s3cr3t/key"})
	_, err := tr.Translate(context.Background(), query("endpoint", "quote", "symbol", "IBM"))
	requireAppError(t, err, http.StatusInternalServerError, "")
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.NotContains(t, err.Error(), url.QueryEscape("s3cr3t/key"))
	assert.Contains(t, err.Error(), "REDACTED")
}

func TestTranslate_RepeatedRequestsDifferOnlyInTimestamp(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"price":1}`)
	calls := 0
	clock := func() time.Time {
		calls++
		return fixedNow.Add(time.Duration(calls) * time.Second)
	}
	tr := usecase.NewTranslator(avProvider(t, up.server.URL), xhttp.NewClient(),
		credentials.Static{"ALPHAVANTAGE_KEY": "key"}, usecase.WithClock(clock))

	q := query("endpoint", "quote", "symbol", "IBM")
	r1, err := tr.Translate(context.Background(), q)
	require.NoError(t, err)
	r2, err := tr.Translate(context.Background(), q)
	require.NoError(t, err)

	e1, e2 := envelopeJSON(t, r1), envelopeJSON(t, r2)
	assert.NotEqual(t, e1["fetched_at_utc"], e2["fetched_at_utc"])
	delete(e1, "fetched_at_utc")
	delete(e2, "fetched_at_utc")
	assert.Equal(t, e1, e2)
	assert.Equal(t, up.Calls()[0], up.Calls()[1])
}

func TestTranslate_RecordsAuditAndMetrics(t *testing.T) {
	up := newFakeUpstream(t, http.StatusBadRequest, `{"error":"bad symbol"}`)
	ctrl := gomock.NewController(t)
	rec := mocks.NewMockFetchRecorder(ctrl)
	m := mocks.NewMockMetrics(ctrl)

	m.EXPECT().RecordUpstream("groww", "quote", models.OutcomeUpstreamFailure, gomock.Any())
	rec.EXPECT().Record(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev *models.FetchEvent) {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "groww", ev.Provider)
		assert.Equal(t, "quote", ev.Endpoint)
		assert.Equal(t, http.StatusBadRequest, ev.UpstreamStatus)
		assert.Equal(t, models.OutcomeUpstreamFailure, ev.Outcome)
		assert.Equal(t, map[string]string{"exchange": "NSE", "segment": "CASH"}, ev.Identifiers)
		assert.Equal(t, len(`{"error":"bad symbol"}`), ev.Bytes)
		assert.Equal(t, fixedNow, ev.FetchedAt)
	})

	tr := newTranslator(growwProvider(t, up.server.URL, false), credentials.Static{"GROWW_ACCESS_TOKEN": "tok"},
		usecase.WithRecorder(rec), usecase.WithMetrics(m))
	_, err := tr.Translate(context.Background(), query("endpoint", "quote", "exchange", "NSE", "trading_symbol", "X"))
	require.NoError(t, err)
}

func TestTranslate_CountsErrorsByKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockMetrics(ctrl)
	m.EXPECT().RecordError("alphavantage", xhttp.CodeConfiguration)
	m.EXPECT().RecordError("alphavantage", xhttp.CodeInvalidRequest)

	p := avProvider(t, "http://127.0.0.1:1")
	tr := newTranslator(p, credentials.Static{}, usecase.WithMetrics(m))
	_, err := tr.Translate(context.Background(), query("endpoint", "quote"))
	require.Error(t, err)

	tr = newTranslator(p, credentials.Static{"ALPHAVANTAGE_KEY": "k"}, usecase.WithMetrics(m))
	_, err = tr.Translate(context.Background(), query("endpoint", "quote"))
	require.Error(t, err)
}

func TestTranslate_CancelledContextIsUnexpected(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{}`)
	tr := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "k"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Translate(ctx, query("endpoint", "quote", "symbol", "IBM"))
	requireAppError(t, err, http.StatusInternalServerError, "")
	assert.Empty(t, up.Calls())
}

func TestTranslate_SlowAuditSinkDoesNotDelayResponse(t *testing.T) {
	up := newFakeUpstream(t, http.StatusOK, `{"Global Quote":{}}`)
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)

	published := make(chan struct{})
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *models.FetchEvent) error {
		time.Sleep(time.Second)
		close(published)
		return nil
	})
	pub.EXPECT().Close().Return(nil)

	auditor := usecase.NewFetchAuditor(pub, nil, nil, nil, config.BackendKafka, 2*time.Second)
	tr := newTranslator(avProvider(t, up.server.URL), credentials.Static{"ALPHAVANTAGE_KEY": "k"},
		usecase.WithRecorder(auditor))

	start := time.Now()
	res, err := tr.Translate(context.Background(), query("endpoint", "quote", "symbol", "IBM"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, auditor.Close())
	select {
	case <-published:
	default:
		t.Fatal("queued event was not written before Close returned")
	}
}
