package models

import "time"

// Fetch outcomes.
const (
	OutcomeOK              = "ok"
	OutcomeUpstreamFailure = "upstream_failure"
	OutcomeTransportError  = "transport_error"
)

// FetchEvent records one upstream call for the audit trail.
type FetchEvent struct {
	ID             string            `json:"id"`
	Provider       string            `json:"provider"`
	Source         string            `json:"source"`
	Endpoint       string            `json:"endpoint"`
	Identifiers    map[string]string `json:"identifiers"`
	UpstreamStatus int               `json:"upstream_status"`
	Outcome        string            `json:"outcome"`
	DurationMs     int64             `json:"duration_ms"`
	Bytes          int               `json:"bytes"`
	FetchedAt      time.Time         `json:"fetched_at"`
}

// Key groups events of one provider operation.
func (e *FetchEvent) Key() string {
	return e.Provider + ":" + e.Endpoint
}
