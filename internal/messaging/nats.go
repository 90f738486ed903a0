// Package messaging provides a NATS client wrapper for publishing match
// lifecycle events to downstream consumers. Consumers subscribe to their
// own per-user subjects; this service only publishes.
package messaging

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns for match lifecycle events. Each carries a
// ".<user_id>" suffix so clients subscribe to their own stream only.
const (
	SubjectMatchCommitted = "match.committed"
	SubjectMatchConfirmed = "match.confirmed"
	SubjectMatchRejected  = "match.rejected"
)

// NATSClient wraps the NATS connection with helper methods for publishing.
type NATSClient struct {
	conn *nats.Conn
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "matchd",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{conn: nc}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

func userSubject(base string, userID int64) string {
	return base + "." + strconv.FormatInt(userID, 10)
}

// PublishMatchCommitted publishes a committed-pairing event for a user.
func (c *NATSClient) PublishMatchCommitted(userID int64, data []byte) error {
	return c.Publish(userSubject(SubjectMatchCommitted, userID), data)
}

// PublishMatchConfirmed publishes a both-accepted event for a user.
func (c *NATSClient) PublishMatchConfirmed(userID int64, data []byte) error {
	return c.Publish(userSubject(SubjectMatchConfirmed, userID), data)
}

// PublishMatchRejected publishes a rejected-pairing event for a user.
func (c *NATSClient) PublishMatchRejected(userID int64, data []byte) error {
	return c.Publish(userSubject(SubjectMatchRejected, userID), data)
}

// Close drains the NATS connection, flushing any buffered publishes.
func (c *NATSClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}
