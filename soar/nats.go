package soar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultNATSSubjectPrefix is prepended to the alert type to form the subject
const DefaultNATSSubjectPrefix = "argus.alerts"

// MsgPublisher is the part of *nats.Conn the alert publisher needs
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSConfig configures the alert bus connection
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// ConnectNATS dials the bus with reconnect handlers that log state changes
func ConnectNATS(cfg NATSConfig, logger *zap.SugaredLogger) (*nats.Conn, error) {
	name := cfg.Name
	if name == "" {
		name = "argus"
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSPublisher publishes the playbook payload on the alert bus so other
// responders can subscribe by alert type. It implements Orchestrator.
type NATSPublisher struct {
	pub    MsgPublisher
	prefix string
	logger *zap.SugaredLogger
}

// NewNATSPublisher creates a publisher on pub. An empty prefix uses
// DefaultNATSSubjectPrefix.
func NewNATSPublisher(pub MsgPublisher, prefix string, logger *zap.SugaredLogger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultNATSSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: prefix, logger: logger}
}

// Subject returns the subject alerts of alertType are published on
func (n *NATSPublisher) Subject(alertType string) string {
	return n.prefix + "." + alertType
}

// Trigger implements Orchestrator
func (n *NATSPublisher) Trigger(_ context.Context, alertType, ip, details string) error {
	data, err := json.Marshal(ShufflePayload{
		Source:      PayloadSource,
		AlertType:   alertType,
		MaliciousIP: ip,
		Details:     details,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert message: %w", err)
	}

	headers := nats.Header{}
	headers.Set("x-alert-type", alertType)
	if ip != "" {
		headers.Set("x-source-ip", ip)
	}
	msg := &nats.Msg{
		Subject: n.Subject(alertType),
		Data:    data,
		Header:  headers,
	}
	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	n.logger.Debugw("Published alert", "subject", msg.Subject, "ip", ip)
	return nil
}
