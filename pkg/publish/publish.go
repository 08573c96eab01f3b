// Package publish sends completed HRV snapshots to a message broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/nats-io/nats.go"
)

// Publisher delivers one snapshot to a topic. Implementations must honour
// ctx so a slow broker cannot stall the caller.
type Publisher interface {
	Publish(ctx context.Context, topic string, s hrv.Snapshot) error
}

var (
	_ Publisher = (*NATS)(nil)
	_ Publisher = Nop{}
	_ Publisher = Func(nil)
)

// Message is the wire payload.
type Message struct {
	Topic     string `json:"topic"`
	Ts        int64  `json:"ts"` // unix millis of completion
	SessionID string `json:"session_id,omitempty"`
	Beats     int    `json:"beats"`
	MeanHR    int    `json:"mean_hr"`
	MeanPPI   int    `json:"mean_ppi"`
	RMSSD     int    `json:"rmssd"`
	SDNN      int    `json:"sdnn"`
}

// NewMessage builds the payload for s.
func NewMessage(topic string, s hrv.Snapshot) Message {
	return Message{
		Topic:     topic,
		Ts:        s.Time.UnixMilli(),
		SessionID: s.SessionID,
		Beats:     s.Beats,
		MeanHR:    s.MeanHR,
		MeanPPI:   s.MeanPPI,
		RMSSD:     s.RMSSD,
		SDNN:      s.SDNN,
	}
}

// Encode returns the JSON payload for s.
func Encode(topic string, s hrv.Snapshot) ([]byte, error) {
	b, err := json.Marshal(NewMessage(topic, s))
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

// NATS publishes snapshots as JSON over a NATS connection.
type NATS struct {
	nc *nats.Conn
}

// Connect dials the NATS server at url. The client reconnects forever in the
// background, and a broker that is down at startup is picked up once it comes
// up; messages published meanwhile wait in the reconnect buffer.
func Connect(url string, opts ...nats.Option) (*NATS, error) {
	base := []nats.Option{
		nats.Name("gopulse"),
		nats.Timeout(3 * time.Second),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(nc *nats.Conn) {
			log.Printf("Connected to NATS at %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return &NATS{nc: nc}, nil
}

// Publish queues s on the connection's write buffer and returns. Delivery is
// fire-and-forget: no server acknowledgment is awaited.
func (p *NATS) Publish(ctx context.Context, topic string, s hrv.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Encode(topic, s)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(topic, b); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close drains pending messages and closes the connection. A connection that
// never reached the broker is closed outright.
func (p *NATS) Close() error {
	if !p.nc.IsConnected() {
		p.nc.Close()
		return nil
	}
	return p.nc.Drain()
}

// Nop discards every snapshot.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, string, hrv.Snapshot) error { return nil }

// Func adapts a function to Publisher.
type Func func(ctx context.Context, topic string, s hrv.Snapshot) error

// Publish calls f.
func (f Func) Publish(ctx context.Context, topic string, s hrv.Snapshot) error {
	return f(ctx, topic, s)
}
