package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// natsSubjectPrefix namespaces the subjects, one per table.
const natsSubjectPrefix = "realtime."

// NATS is a Hub over core NATS subjects.
type NATS struct {
	conn *nats.Conn
}

// DialNATS connects with unlimited reconnects.
func DialNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("pst-admin-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("realtime: connect nats: %w", err)
	}
	return &NATS{conn: nc}, nil
}

// NewNATS wraps an existing connection.
func NewNATS(nc *nats.Conn) *NATS { return &NATS{conn: nc} }

func natsSubject(table string) string { return natsSubjectPrefix + table }

// Publish sends c on the table's subject.
func (n *NATS) Publish(_ context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(natsSubject(c.Table), b); err != nil {
		return fmt.Errorf("realtime: publish: %w", err)
	}
	publishedTotal.WithLabelValues(c.Table, string(c.Event)).Inc()
	return nil
}

// Subscribe listens on the filter's table subject. NATS runs the callback on
// one goroutine per subscription, so h sees changes in order.
func (n *NATS) Subscribe(ctx context.Context, f Filter, h Handler) (*Subscription, error) {
	s, err := n.conn.Subscribe(natsSubject(f.Table), func(m *nats.Msg) {
		c, err := decodeChange(m.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", m.Subject).Msg("realtime: bad change payload")
			return
		}
		if f.Match(c) {
			h(c)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: subscribe %s: %w", f.Table, err)
	}
	sub := newSubscription(func() { _ = s.Unsubscribe() })
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error { return n.conn.Drain() }
