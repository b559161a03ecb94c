// Package queue integrates with RabbitMQ: a publisher shared by the HTTP
// handlers and the inventory manager, and consumers for the catalog's
// event lifecycle messages. All queues are durable and all publishes are
// persistent; the broker is the integration bus between the catalog, this
// service and the notification service.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

var allQueues = []string{
	QueueEventCreated,
	QueueEventUpdated,
	QueueEventCancelled,
	QueueTicketReserved,
	QueueTicketPurchased,
	QueueTicketCancelled,
	QueueNotification,
}

// Client is a reconnecting RabbitMQ publisher. Safe for concurrent use;
// a single channel is shared and guarded by the mutex since publishes are
// short and infrequent relative to broker throughput.
type Client struct {
	url     string
	retries int
	backoff time.Duration
	logger  *logrus.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewClient returns an unconnected Client. Call Connect before publishing;
// Publish will also redial on demand after a broker outage.
func NewClient(url string, retries int, backoff time.Duration, logger *logrus.Logger) *Client {
	if retries < 1 {
		retries = 1
	}
	return &Client{url: url, retries: retries, backoff: backoff, logger: logger}
}

// Connect dials the broker and declares every queue the service touches.
// Declaring inbound queues here as well makes startup order between this
// service and the catalog irrelevant.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	for _, name := range allQueues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare %s: %w", name, err)
		}
	}
	c.conn = conn
	c.ch = ch
	return nil
}

// Close shuts down the underlying connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Publish marshals the payload and publishes it persistently to the named
// queue, redialing and retrying on failure. Callers publish after their
// database transaction commits; a returned error means the local state is
// authoritative and the message was dropped after exhausting retries.
func (c *Client) Publish(ctx context.Context, queueName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queueName, err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		if c.ch == nil {
			if err := c.connectLocked(); err != nil {
				lastErr = err
				continue
			}
		}
		if err := c.ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
			lastErr = err
			c.logger.WithError(err).WithField("queue", queueName).Warn("publish failed, reconnecting")
			c.dropLocked()
			continue
		}
		return nil
	}
	c.logger.WithError(lastErr).WithField("queue", queueName).Error("publish exhausted retries")
	return fmt.Errorf("publish %s: %w", queueName, lastErr)
}

func (c *Client) dropLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}
