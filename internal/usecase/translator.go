package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FinRelay/internal/domain/models"
	drepo "FinRelay/internal/domain/repository"
	"FinRelay/internal/service/credentials"
	xhttp "FinRelay/pkg/http"

	"github.com/google/uuid"
)

// Upstream performs the single outbound call.
type Upstream interface {
	SendRequest(ctx context.Context, opts *xhttp.RequestOptions) (*xhttp.Response, error)
}

// Result is a successful translation: the envelope and the status to answer with.
type Result struct {
	Status   int
	Envelope *models.Envelope
}

// Translator maps one inbound query to one upstream call and back. It keeps no state
// between requests; the provider table and credential source are read-only.
type Translator struct {
	provider Provider
	client   Upstream
	creds    credentials.Source
	recorder drepo.FetchRecorder
	metrics  drepo.Metrics
	now      func() time.Time
}

// TranslatorOption configures Translator.
type TranslatorOption func(*Translator)

// WithRecorder attaches the audit recorder.
func WithRecorder(r drepo.FetchRecorder) TranslatorOption {
	return func(t *Translator) { t.recorder = r }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m drepo.Metrics) TranslatorOption {
	return func(t *Translator) { t.metrics = m }
}

// WithClock overrides the capture-time clock.
func WithClock(now func() time.Time) TranslatorOption {
	return func(t *Translator) { t.now = now }
}

// NewTranslator creates a translator for one provider instance.
func NewTranslator(p Provider, client Upstream, creds credentials.Source, opts ...TranslatorOption) *Translator {
	t := &Translator{
		provider: p,
		client:   client,
		creds:    creds,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Provider returns the instance descriptor.
func (t *Translator) Provider() *Provider {
	return &t.provider
}

// Translate runs credential resolution, validation, the upstream call and normalization.
// Errors are *xhttp.AppError values classified as invalid request, configuration or unexpected.
func (t *Translator) Translate(ctx context.Context, query url.Values) (*Result, error) {
	res, err := t.translate(ctx, query)
	if err != nil {
		var appErr *xhttp.AppError
		if !errors.As(err, &appErr) {
			appErr = xhttp.UnexpectedError(err)
		}
		if t.metrics != nil {
			t.metrics.RecordError(t.provider.Name, appErr.Code)
		}
		return nil, appErr
	}
	return res, nil
}

func (t *Translator) translate(ctx context.Context, query url.Values) (*Result, error) {
	secrets, err := t.resolveCredentials()
	if err != nil {
		return nil, err
	}

	op, err := t.selectOperation(query.Get("endpoint"))
	if err != nil {
		return nil, err
	}

	required := make([]string, 0, len(t.provider.Shared)+len(op.Required))
	required = append(required, t.provider.Shared...)
	required = append(required, op.Required...)
	if missing := xhttp.MissingParams(ctx, query, required); len(missing) > 0 {
		return nil, xhttp.InvalidRequestErrorf("Missing required params for %s: %s", op.Endpoint, strings.Join(missing, ", "))
	}

	params := t.upstreamParams(op, query, required)
	req := &xhttp.RequestOptions{
		Method:      http.MethodGet,
		URL:         strings.TrimRight(t.provider.BaseURL, "/") + op.Path,
		Headers:     make(map[string]string, len(t.provider.Headers)+2),
		QueryParams: params,
	}
	for k, v := range t.provider.Headers {
		req.Headers[k] = v
	}
	t.provider.Auth.Apply(req, secrets)

	start := time.Now()
	resp, err := t.client.SendRequest(ctx, req)
	fetchedAt := t.now()
	elapsed := time.Since(start)

	identifiers := t.identifiers(params)
	if err != nil {
		t.observe(ctx, op, identifiers, 0, models.OutcomeTransportError, 0, elapsed, fetchedAt)
		return nil, xhttp.UnexpectedError(redact(err, secrets))
	}

	env := &models.Envelope{
		Source:      t.provider.Source,
		Auth:        t.provider.Auth.Tag(),
		Endpoint:    op.Endpoint,
		Identifiers: identifiers,
		FetchedAt:   fetchedAt,
		Data:        models.NormalizePayload(resp.Body),
	}
	status := http.StatusOK
	outcome := models.OutcomeOK
	if !resp.OK() {
		outcome = models.OutcomeUpstreamFailure
		switch t.provider.Policy {
		case PolicyMarker:
			env.Status = models.StatusFailure
			env.HTTPStatus = resp.StatusCode
		case PolicyPassthrough:
			status = passthroughStatus(resp.StatusCode)
		}
	}
	t.observe(ctx, op, identifiers, resp.StatusCode, outcome, len(resp.Body), elapsed, fetchedAt)

	return &Result{Status: status, Envelope: env}, nil
}

func (t *Translator) resolveCredentials() ([]string, error) {
	keys := t.provider.Auth.Keys()
	secrets := make([]string, len(keys))
	for i, key := range keys {
		v, ok := t.creds.Lookup(key)
		if !ok {
			return nil, xhttp.ConfigurationErrorf("Missing %s env var", key)
		}
		secrets[i] = v
	}
	return secrets, nil
}

func (t *Translator) selectOperation(endpoint string) (*Operation, error) {
	accepted := strings.Join(t.provider.Endpoints(), "|")
	if endpoint == "" {
		return nil, xhttp.InvalidRequestErrorf("Missing required param: endpoint. Use %s", accepted)
	}
	if !xhttp.OneOf(endpoint, t.provider.Endpoints()) {
		return nil, xhttp.InvalidRequestErrorf("Invalid endpoint. Use %s", accepted)
	}
	op, _ := t.provider.Operation(endpoint)
	return op, nil
}

// upstreamParams fills the operation template: fixed params, validated required params,
// then optional params with defaults. Nothing else from the inbound query is forwarded.
func (t *Translator) upstreamParams(op *Operation, query url.Values, required []string) url.Values {
	params := url.Values{}
	for _, p := range op.Fixed {
		params.Set(p.Name, p.Value)
	}
	for _, name := range required {
		params.Set(name, query.Get(name))
	}
	optional := make([]models.Param, 0, len(t.provider.SharedOptional)+len(op.Optional))
	optional = append(optional, t.provider.SharedOptional...)
	optional = append(optional, op.Optional...)
	for _, p := range optional {
		v := query.Get(p.Name)
		if v == "" {
			v = p.Value
		}
		params.Set(p.Name, v)
	}
	return params
}

func (t *Translator) identifiers(params url.Values) []models.Param {
	out := make([]models.Param, 0, len(t.provider.Identifiers))
	for _, name := range t.provider.Identifiers {
		out = append(out, models.Param{Name: name, Value: params.Get(name)})
	}
	return out
}

func (t *Translator) observe(ctx context.Context, op *Operation, ids []models.Param, status int, outcome string, size int, elapsed time.Duration, fetchedAt time.Time) {
	if t.metrics != nil {
		t.metrics.RecordUpstream(t.provider.Name, op.Endpoint, outcome, elapsed.Seconds())
	}
	if t.recorder == nil {
		return
	}
	idMap := make(map[string]string, len(ids))
	for _, p := range ids {
		idMap[p.Name] = p.Value
	}
	t.recorder.Record(ctx, &models.FetchEvent{
		ID:             uuid.NewString(),
		Provider:       t.provider.Name,
		Source:         t.provider.Source,
		Endpoint:       op.Endpoint,
		Identifiers:    idMap,
		UpstreamStatus: status,
		Outcome:        outcome,
		DurationMs:     elapsed.Milliseconds(),
		Bytes:          size,
		FetchedAt:      fetchedAt.UTC(),
	})
}

// passthroughStatus relays 4xx/5xx as-is. 1xx and 304 responses must not carry a body
// and other 3xx codes would redirect the caller, so those become 502.
func passthroughStatus(code int) int {
	if code >= 400 && code <= 599 {
		return code
	}
	return http.StatusBadGateway
}

// redact strips secret values (raw and query-escaped) from an error message; transport
// errors embed the full upstream URL, which may carry a URL key.
func redact(err error, secrets []string) error {
	msg := err.Error()
	for _, s := range secrets {
		if s == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, "REDACTED")
		if esc := url.QueryEscape(s); esc != s {
			msg = strings.ReplaceAll(msg, esc, "REDACTED")
		}
	}
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}
