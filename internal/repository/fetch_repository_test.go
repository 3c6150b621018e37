package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"FinRelay/internal/domain/models"
	pkgkafka "FinRelay/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_PublishKeysByOperation(t *testing.T) {
	w := &memWriter{}
	producer, err := pkgkafka.NewProducer("finrelay.upstream_fetches", pkgkafka.WithWriter(w))
	require.NoError(t, err)
	pub := NewKafkaPublisher(producer)

	ev := &models.FetchEvent{
		ID:             "abc",
		Provider:       "alphavantage",
		Source:         "alphavantage",
		Endpoint:       "ohlcv",
		Identifiers:    map[string]string{"symbol": "IBM"},
		UpstreamStatus: 200,
		Outcome:        models.OutcomeOK,
		DurationMs:     120,
		Bytes:          2048,
		FetchedAt:      time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), ev))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "alphavantage:ohlcv", string(w.msgs[0].Key))

	var got models.FetchEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, *ev, got)

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}

func TestNewClickHouseStorage_RejectsBadIdentifiers(t *testing.T) {
	_, err := NewClickHouseStorage(nil, "finrelay", "fetches; DROP TABLE x", nil)
	assert.Error(t, err)

	_, err = NewClickHouseStorage(nil, "", "fetches", nil)
	assert.Error(t, err)

	s, err := NewClickHouseStorage(nil, "finrelay", "upstream_fetches", nil)
	require.NoError(t, err)
	assert.Equal(t, "finrelay.upstream_fetches", s.(*ClickHouseStorage).qualified())
	assert.NoError(t, s.Close())
}

func TestClickHouseStorage_CloseCallsCloser(t *testing.T) {
	closed := false
	s, err := NewClickHouseStorage(nil, "finrelay", "upstream_fetches", func() error {
		closed = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
