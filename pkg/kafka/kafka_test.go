package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "analytics-events")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "a", Value: map[string]int{"n": 1}},
		{Key: "b", Value: "text"},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 2)
	assert.Equal(t, "a", string(w.written[0].Key))
	assert.JSONEq(t, `{"n":1}`, string(w.written[0].Value))
	assert.JSONEq(t, `"text"`, string(w.written[1].Value))

	require.NoError(t, p.Publish(context.Background(), Event{Key: "c", Value: 3}))
	assert.Len(t, w.written, 3)
	assert.Equal(t, "analytics-events", p.Topic())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_Errors(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "t")

	err := p.PublishBatch(context.Background(), []Event{{Key: "k", Value: make(chan int)}})
	require.Error(t, err)
	assert.Empty(t, w.written)

	w.err = errors.New("broker down")
	err = p.Publish(context.Background(), Event{Key: "k", Value: 1})
	assert.ErrorIs(t, err, w.err)

	assert.NoError(t, p.PublishBatch(context.Background(), nil))
}

type fakeReader struct {
	mu          sync.Mutex
	pending     []kafka.Message
	committed   []int64
	closed      bool
	failFetches int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.failFetches > 0 {
		r.failFetches--
		r.mu.Unlock()
		return kafka.Message{}, errors.New("broker not available")
	}
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumer_CommitsHandledMessages(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: []byte("ok")},
		{Offset: 2, Value: []byte("bad")},
		{Offset: 3, Value: []byte("ok")},
	}}
	var (
		mu   sync.Mutex
		seen []string
	)
	handler := func(_ context.Context, _ []byte, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(value))
		if string(value) == "bad" {
			return errors.New("rejected")
		}
		return nil
	}
	c := newConsumer(r, "t", handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{1, 3}, r.committed)
	assert.True(t, r.closed)
	assert.Equal(t, ConsumerStats{Handled: 2, Failed: 1}, c.Stats())
}

func TestConsumer_BacksOffOnFetchErrors(t *testing.T) {
	r := &fakeReader{failFetches: 8, pending: []kafka.Message{{Offset: 1}}}
	handled := make(chan struct{})
	c := newConsumer(r, "t", func(context.Context, []byte, []byte) error {
		close(handled)
		return nil
	})
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) { waits = append(waits, d) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	<-handled
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
		5 * time.Second,
	}, waits)
	assert.Equal(t, int64(8), c.Stats().FetchErrors)
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		Type string `json:"type"`
	}
	got, err := DecodeJSON[event]([]byte(`{"type":"search"}`))
	require.NoError(t, err)
	assert.Equal(t, "search", got.Type)

	_, err = DecodeJSON[event]([]byte(`{`))
	assert.Error(t, err)
}
