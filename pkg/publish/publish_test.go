package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	s := hrv.Snapshot{
		SessionID: "abc",
		Time:      time.UnixMilli(1700000000123),
		Beats:     36,
		MeanHR:    72,
		MeanPPI:   833,
		RMSSD:     41,
		SDNN:      37,
	}

	b, err := Encode("pulse.hrv", s)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, Message{
		Topic:     "pulse.hrv",
		Ts:        1700000000123,
		SessionID: "abc",
		Beats:     36,
		MeanHR:    72,
		MeanPPI:   833,
		RMSSD:     41,
		SDNN:      37,
	}, got)
}

func TestConnect_Unreachable(t *testing.T) {
	// Port 1 is never a NATS server.
	_, err := Connect("nats://127.0.0.1:1",
		nats.Timeout(200*time.Millisecond),
		nats.RetryOnFailedConnect(false),
	)
	assert.Error(t, err)
}

func TestConnect_RetriesInBackground(t *testing.T) {
	p, err := Connect("nats://127.0.0.1:1", nats.Timeout(200*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, p.nc.IsConnected())

	// Buffered until the broker shows up; the caller does not wait.
	start := time.Now()
	assert.NoError(t, p.Publish(context.Background(), "pulse.hrv", hrv.Snapshot{MeanHR: 70}))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.NoError(t, p.Close())
}

func TestNATS_PublishCancelled(t *testing.T) {
	p, err := Connect("nats://127.0.0.1:1", nats.Timeout(200*time.Millisecond))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "pulse.hrv", hrv.Snapshot{}), context.Canceled)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), "x", hrv.Snapshot{}))
}

func TestFunc(t *testing.T) {
	var topics []string
	boom := errors.New("boom")
	p := Func(func(_ context.Context, topic string, _ hrv.Snapshot) error {
		topics = append(topics, topic)
		return boom
	})

	err := p.Publish(context.Background(), "pulse.hrv", hrv.Snapshot{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"pulse.hrv"}, topics)
}
