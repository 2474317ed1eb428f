// Package eventsink forwards card edges seen by a listening session to external
// consumers: the log and an MQTT broker.
package eventsink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gregLibert/nfc-reader/pkg/contactless"
	"github.com/gregLibert/nfc-reader/pkg/tlv"
)

// Sink receives card edges.
type Sink interface {
	Publish(ev contactless.Event) error
}

// Message is the wire form of an edge.
type Message struct {
	ID     string    `json:"id"`
	Reader string    `json:"reader"`
	Edge   string    `json:"edge"`
	ATR    string    `json:"atr,omitempty"`
	Card   string    `json:"card,omitempty"`
	Time   time.Time `json:"time"`
}

// NewMessage describes ev. The card name is only known for insertions.
func NewMessage(ev contactless.Event) Message {
	m := Message{
		ID:     ev.ID.String(),
		Reader: ev.Reader,
		Edge:   ev.Edge.String(),
		ATR:    tlv.Spaced(ev.ATR),
		Time:   ev.Time.UTC(),
	}
	if len(ev.ATR) > 0 {
		if p, _ := contactless.Classify(ev.ATR); p.Name != "" {
			m.Card = p.Name
		} else {
			m.Card = "unknown"
		}
	}
	return m
}

// LogSink writes every edge to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ev contactless.Event) error {
	m := NewMessage(ev)
	s.Logger.Info("card "+m.Edge, "card_id", m.ID, "reader", m.Reader, "atr", m.ATR, "card", m.Card)
	return nil
}

// Handler fans every edge out to sinks. A failing sink is logged and does not stop
// the others nor the listener.
func Handler(logger *slog.Logger, sinks ...Sink) contactless.Handler {
	return func(_ context.Context, ev contactless.Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Publish(ev); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("publish card event", "card_id", ev.ID, "error", err)
		}
		return nil
	}
}
