package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "topk-reports")

	err := p.Publish(context.Background(), Event{Key: "run-1", Value: map[string]int{"a": 3}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "run-1", string(w.msgs[0].Key))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, 3, decoded["a"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishErrors(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := NewProducerWithWriter(&fakeWriter{err: boom}, "t")
	assert.ErrorIs(t, p.Publish(context.Background(), Event{Key: "k", Value: 1}), boom)

	_, err := Encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}
