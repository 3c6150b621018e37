package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishEncodesValues(t *testing.T) {
	w := &recordingWriter{}
	p, err := NewProducer("audit", WithWriter(w))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), []byte("k1"), map[string]int{"n": 1}))
	require.NoError(t, p.Publish(context.Background(), []byte("k2"), "plain"))
	require.NoError(t, p.Publish(context.Background(), nil, []byte("raw")))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, []byte("k1"), w.msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "plain", string(w.msgs[1].Value))
	assert.Equal(t, "raw", string(w.msgs[2].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_PublishWrapsWriteErrors(t *testing.T) {
	p, err := NewProducer("audit", WithWriter(&recordingWriter{err: errors.New("leader not available")}))
	require.NoError(t, err)

	err = p.Publish(context.Background(), nil, "x")
	assert.EqualError(t, err, "kafka write audit: leader not available")
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer("")
	assert.EqualError(t, err, "topic is required")

	_, err = NewProducer("audit")
	assert.EqualError(t, err, "brokers are required")

	p, err := NewProducer("audit", WithBrokers([]string{"localhost:9092"}), WithHashByKey(true), WithCompression("zstd"))
	require.NoError(t, err)
	assert.Equal(t, "audit", p.Topic())
	require.NoError(t, p.Close())
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Lz4, parseCompression("lz4"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression("unknown"))
}
