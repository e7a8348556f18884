package natsclient

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerLink/config"
	"go.uber.org/zap"
)

const (
	clientName     = "powerlink"
	dialTimeout    = 5 * time.Second
	reconnectWait  = 2 * time.Second
	publishMaxWait = 5 * time.Second
)

// Connect dials NATS and returns the JetStream context the click pipeline
// publishes and consumes through. Reconnects are unbounded; connection
// state changes are reported on log.
func Connect(cfg config.NATSConfig, log *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("nats")

	opts := []nats.Option{
		nats.Name(clientName),
		nats.Timeout(dialTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("async error", fields...)
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(URL(cfg), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("nats: connect %s: %w", URL(cfg), err)
	}

	js, err := nc.JetStream(nats.MaxWait(publishMaxWait))
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("nats: jetstream: %w", err)
	}
	return nc, js, nil
}

// URL renders the server address, defaulting to a local NATS.
func URL(cfg config.NATSConfig) string {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = nats.DefaultPort
	}
	return "nats://" + net.JoinHostPort(host, strconv.Itoa(port))
}
