package natsclient

import (
	"fmt"
	"time"

	"github.com/hoplink/hoplink/config"
	"github.com/nats-io/nats.go"
)

const connectTimeout = 5 * time.Second

// Connect dials NATS and opens a JetStream context. The click stream
// rides on JetStream, so a server without it enabled is unusable and the
// error surfaces here rather than on the first publish.
func Connect(cfg config.NATSConfig) (*nats.Conn, nats.JetStreamContext, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 4222
	}

	opts := []nats.Option{
		nats.Name("hoplink"),
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(fmt.Sprintf("nats://%s:%d", host, port), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("nats: jetstream: %w", err)
	}
	return conn, js, nil
}
