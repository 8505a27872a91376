// Package eventsvc publishes domain events to NATS.
package eventsvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
)

// publisher is the part of *nats.Conn we use.
type publisher interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type NatsPublisher struct {
	conn   publisher
	prefix string
	logger core.Logger
}

var _ core.EventPublisher = (*NatsPublisher)(nil)

// New connects to NATS when nats.url is set, and returns a no-op publisher otherwise.
func New(conf *core.Config, logger core.Logger) (core.EventPublisher, error) {
	if conf.NatsURL == "" {
		return core.NewNoopPublisher(), nil
	}
	nc, err := nats.Connect(
		conf.NatsURL,
		nats.Name(conf.AppName),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", err)
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to nats")
	}
	return newNatsPublisher(nc, conf.AppName, logger), nil
}

func newNatsPublisher(conn publisher, prefix string, logger core.Logger) *NatsPublisher {
	return &NatsPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on, e.g. "schoolhub.user.registered".
func (p *NatsPublisher) Subject(eventType string) string {
	return core.CleanString(p.prefix, true /* lower */) + "." + eventType
}

func (p *NatsPublisher) Publish(ctx context.Context, evt core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}
	if err := p.conn.Publish(p.Subject(evt.Type), data); err != nil {
		return errors.Wrapf(err, "publishing %s", evt.Type)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Error("draining nats connection", err)
	}
}
