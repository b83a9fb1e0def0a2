package ingest

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/denisok6893-rgb/property-ranking/internal/logging"
)

type Config struct {
	URL         string
	Queue       string
	Prefetch    int
	ConsumerTag string
}

// Consumer reads outcome events from a durable RabbitMQ queue.
type Consumer struct {
	cfg     Config
	conn    *amqp.Connection
	ch      *amqp.Channel
	handler *Handler
	log     zerolog.Logger
}

// Dial connects, sets QoS and declares the queue.
func Dial(cfg Config, h *Handler) (*Consumer, error) {
	if cfg.URL == "" || cfg.Queue == "" {
		return nil, errors.New("ingest: url and queue are required")
	}
	log := logging.Component("ingest").With().Str("queue", cfg.Queue).Logger()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}

	log.Info().Int("prefetch", cfg.Prefetch).Msg("connected to rabbitmq")
	return &Consumer{cfg: cfg, conn: conn, ch: ch, handler: h, log: log}, nil
}

// Run consumes until ctx is cancelled or the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %q: %w", c.cfg.Queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumer stopping")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("ingest: delivery channel closed")
			}
			settle(c.handler, d, c.log)
		}
	}
}

func (c *Consumer) Close() error {
	chErr := c.ch.Close()
	connErr := c.conn.Close()
	return errors.Join(chErr, connErr)
}

// settle acks handled deliveries and rejects malformed ones without requeue.
func settle(h *Handler, d amqp.Delivery, log zerolog.Logger) {
	if err := h.HandleMessage(d.Body); err != nil {
		log.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("rejecting outcome event")
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error().Err(nackErr).Msg("nack failed")
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Msg("ack failed")
	}
}
