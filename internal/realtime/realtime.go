// Package realtime fans out row-change notifications (inserts, updates and
// deletes on contacts and messages) to subscribers such as the conversation
// stream endpoints.
//
// A Hub is the transport. The in-process Memory hub serves single-instance
// deployments and tests; the Redis and NATS hubs let several API instances
// share one change feed. Delivery is at-most-once with no replay: a
// subscriber only sees changes published after it subscribed.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventKind is the kind of row change.
type EventKind string

// Change kinds.
const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// Tables that publish changes.
const (
	TableContacts = "contacts"
	TableMessages = "messages"
)

// Change is one row change. Keys holds the columns subscribers may filter on
// (for messages: id and contact_id); Row is the full row as JSON.
type Change struct {
	Table string            `json:"table"`
	Event EventKind         `json:"event"`
	Keys  map[string]string `json:"keys,omitempty"`
	Row   json.RawMessage   `json:"row,omitempty"`
	At    time.Time         `json:"at"`
}

// NewChange marshals row into a Change.
func NewChange(table string, ev EventKind, row any, keys map[string]string) (Change, error) {
	b, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("realtime: marshal %s row: %w", table, err)
	}
	return Change{Table: table, Event: ev, Keys: keys, Row: b, At: time.Now().UTC()}, nil
}

// Filter selects changes for a subscriber. Empty Events accepts every kind;
// an empty Column accepts every row.
type Filter struct {
	Table  string
	Events []EventKind
	Column string
	Value  string
}

// Match reports whether c passes the filter.
func (f Filter) Match(c Change) bool {
	if c.Table != f.Table {
		return false
	}
	if len(f.Events) > 0 {
		ok := false
		for _, e := range f.Events {
			if e == c.Event {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Column != "" && c.Keys[f.Column] != f.Value {
		return false
	}
	return true
}

// Handler receives matching changes, one at a time, in arrival order.
type Handler func(Change)

// Hub publishes and subscribes to changes.
type Hub interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe registers h until ctx is done or the subscription is closed.
	Subscribe(ctx context.Context, f Filter, h Handler) (*Subscription, error)
	Close() error
}

// Subscription is a registered handler.
type Subscription struct {
	once   sync.Once
	cancel func()
	done   chan struct{}
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel, done: make(chan struct{})}
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

// Done is closed once the subscription stops.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func decodeChange(b []byte) (Change, error) {
	var c Change
	err := json.Unmarshal(b, &c)
	return c, err
}
