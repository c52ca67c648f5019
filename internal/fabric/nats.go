package fabric

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
}

// NATS is a bus backed by core NATS subjects. Subject patterns map one to one.
type NATS struct {
	conn *nats.Conn
	log  *zerolog.Logger
}

// ConnectNATS establishes a connection that reconnects forever.
func ConnectNATS(cfg NATSConfig, logger *zerolog.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("kasichat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			ev := logger.Error().Err(err)
			if sub != nil {
				ev = ev.Str("subject", sub.Subject)
			}
			ev.Msg("nats async error")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, log: logger}, nil
}

func (n *NATS) Publish(_ context.Context, subject string, payload []byte) error {
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

func (n *NATS) Subscribe(_ context.Context, pattern string, h Handler) (Subscription, error) {
	sub, err := n.conn.Subscribe(pattern, func(msg *nats.Msg) {
		h(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", pattern, err)
	}
	// Make sure the server knows about the interest before returning.
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return sub, nil
}

// Close drains pending deliveries and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

var _ Bus = (*NATS)(nil)
