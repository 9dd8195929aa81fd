package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	logx "github.com/rodrigorodrigues/kairos/pkg/logx"
)

type natsPublisher struct {
	conn *nats.Conn
}

func newNATSPublisher(rawURL, nodeID string, timeout time.Duration, log logx.Logger) (*natsPublisher, error) {
	conn, err := nats.Connect(rawURL,
		nats.Name("kairos-"+nodeID),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("relay nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("relay nats reconnected", logx.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay nats connect: %w", err)
	}
	return &natsPublisher{conn: conn}, nil
}

// Publish hands the message to the client's outbound buffer; ctx is only
// checked before buffering.
func (p *natsPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.conn.Publish(subject, payload)
}

func (p *natsPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
