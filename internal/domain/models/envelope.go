package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// FetchedAtLayout is ISO-8601 UTC with millisecond precision, e.g. 2025-01-02T03:04:05.123Z.
const FetchedAtLayout = "2006-01-02T15:04:05.000Z07:00"

// StatusFailure marks an envelope whose upstream call returned a non-2xx status.
const StatusFailure = "FAILURE"

// Param is an ordered name/value pair.
type Param struct {
	Name  string
	Value string
}

// Envelope is the normalized response wrapping one upstream payload.
// It is built once per request and never mutated afterwards.
type Envelope struct {
	Source      string
	Auth        string
	Endpoint    string
	Identifiers []Param
	Status      string
	HTTPStatus  int
	FetchedAt   time.Time
	Data        json.RawMessage
}

// MarshalJSON writes the envelope with identifying params inlined at the top level.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v interface{}) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := encodeTo(&buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		return encodeTo(&buf, v)
	}

	if err := write("source", e.Source); err != nil {
		return nil, err
	}
	if e.Auth != "" {
		if err := write("auth", e.Auth); err != nil {
			return nil, err
		}
	}
	if err := write("endpoint", e.Endpoint); err != nil {
		return nil, err
	}
	for _, p := range e.Identifiers {
		if err := write(p.Name, p.Value); err != nil {
			return nil, err
		}
	}
	if e.Status != "" {
		if err := write("status", e.Status); err != nil {
			return nil, err
		}
		if err := write("http_status", e.HTTPStatus); err != nil {
			return nil, err
		}
	}
	if err := write("fetched_at_utc", e.FetchedAt.UTC().Format(FetchedAtLayout)); err != nil {
		return nil, err
	}
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if err := write("data", data); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeTo appends v as JSON without HTML escaping, so upstream text keeps its bytes.
func encodeTo(buf *bytes.Buffer, v interface{}) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// RawPayload wraps an upstream body that is not JSON.
type RawPayload struct {
	Raw string `json:"raw"`
}

// NormalizePayload embeds a JSON body verbatim; anything else becomes {"raw": text}.
func NormalizePayload(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	var buf bytes.Buffer
	if err := encodeTo(&buf, RawPayload{Raw: string(body)}); err != nil {
		return json.RawMessage(`{"raw":""}`)
	}
	return buf.Bytes()
}
