package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
	"github.com/eventtix/ticket-service/internal/monitoring"
)

// EventHandler processes the catalog's event lifecycle messages. The
// inventory manager implements it.
type EventHandler interface {
	HandleEventCreated(ctx context.Context, msg EventCreated) error
	HandleEventUpdated(ctx context.Context, msg EventUpdated) error
	HandleEventCancelled(ctx context.Context, msg EventCancelled) error
}

// defaultRequeueDelay is the pause before a transient failure is nacked
// back onto its queue. Without it an out-of-order message (an update
// arriving before its event is provisioned) would bounce between broker
// and consumer as fast as the network allows.
const defaultRequeueDelay = 2 * time.Second

// Consumer subscribes to the inbound event queues and dispatches each
// message to the handler.
type Consumer struct {
	url          string
	handler      EventHandler
	logger       *logrus.Logger
	requeueDelay time.Duration
}

// NewConsumer returns a Consumer for the given broker URL.
func NewConsumer(url string, handler EventHandler, logger *logrus.Logger) *Consumer {
	return &Consumer{url: url, handler: handler, logger: logger, requeueDelay: defaultRequeueDelay}
}

// Run consumes the three inbound queues until the context is cancelled.
// It maintains its own connection so a publisher-side failure never stalls
// consumption, and reconnects with capped exponential backoff.
func (c *Consumer) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.WithError(err).Warnf("consumer dial failed; retrying in %s", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := c.consumeLoop(ctx, conn); err != nil {
			c.logger.WithError(err).Warn("consume loop ended; reconnecting")
		}
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.logger.WithError(err).Warn("set QoS failed")
	}

	// One dispatch goroutine per inbound queue. The goroutines exit when
	// the connection (and with it the delivery channels) is closed, so
	// nothing leaks across reconnects.
	var wg sync.WaitGroup
	for _, name := range []string{QueueEventCreated, QueueEventUpdated, QueueEventCancelled} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
		msgs, err := ch.Consume(name, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", name, err)
		}
		wg.Add(1)
		go func(name string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			for d := range msgs {
				d := d
				c.dispatch(ctx, name, &d)
			}
		}(name, msgs)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return errors.New("deliveries channel closed")
	}
}

func (c *Consumer) dispatch(ctx context.Context, queueName string, d *amqp.Delivery) {
	var err error
	switch queueName {
	case QueueEventCreated:
		var msg EventCreated
		if err = json.Unmarshal(d.Body, &msg); err == nil {
			err = c.handler.HandleEventCreated(ctx, msg)
		}
	case QueueEventUpdated:
		var msg EventUpdated
		if err = json.Unmarshal(d.Body, &msg); err == nil {
			err = c.handler.HandleEventUpdated(ctx, msg)
		}
	case QueueEventCancelled:
		var msg EventCancelled
		if err = json.Unmarshal(d.Body, &msg); err == nil {
			err = c.handler.HandleEventCancelled(ctx, msg)
		}
	default:
		err = fmt.Errorf("no handler for queue %s", queueName)
	}

	if err == nil {
		monitoring.TrackInventoryEvent(queueName, "ok")
		_ = d.Ack(false)
		return
	}
	if permanent(err) {
		// Malformed or unsatisfiable message. Requeueing would loop forever.
		c.logger.WithError(err).WithField("queue", queueName).Error("dropping message")
		monitoring.TrackInventoryEvent(queueName, "dropped")
		_ = d.Nack(false, false)
		return
	}
	c.logger.WithError(err).WithField("queue", queueName).Warn("requeueing message")
	monitoring.TrackInventoryEvent(queueName, "requeued")
	// Holding the delivery briefly keeps a transient failure from
	// ping-ponging through the broker at full speed.
	select {
	case <-ctx.Done():
	case <-time.After(c.requeueDelay):
	}
	_ = d.Nack(false, true)
}

func permanent(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.Is(err, model.ErrInvariant)
}
