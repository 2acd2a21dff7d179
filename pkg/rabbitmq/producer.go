/**
 * @description
 * This package publishes assistant events to RabbitMQ: intent classifier
 * audit records and transfer proposal lifecycle transitions. All events go to
 * one durable topic exchange and are routed by key.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 *
 * @notes
 * - Publishing is best effort. Callers log failures and carry on; no business
 *   operation waits on the broker.
 * - EventProducerFallback stands in when the broker is unreachable at startup.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/transfa/assistant-service/internal/domain"
)

// DefaultExchange is the topic exchange used when none is configured.
const DefaultExchange = "assistant_events"

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error
	PublishIntentDecision(ctx context.Context, event domain.IntentDecisionEvent) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	declared bool
	logger   *slog.Logger
}

// NewEventProducer dials the broker and opens a channel.
func NewEventProducer(amqpURL, exchange string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Bounded dial timeout so startup does not hang on an unreachable broker.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.With("component", "rabbitmq_producer"),
	}, nil
}

// Publish marshals body as JSON and sends it with the routing key. A failed
// publish reopens the channel and tries once more.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, routingKey, payload)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel", "exchange", p.exchange, "routing_key", routingKey, "error", err)
	if reopenErr := p.reopenLocked(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.publishLocked(ctx, routingKey, payload)
}

func (p *EventProducer) publishLocked(ctx context.Context, routingKey string, payload []byte) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	})
}

func (p *EventProducer) reopenLocked() error {
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = ch
	p.declared = false
	return nil
}

// PublishTransferEvent publishes a proposal lifecycle transition.
func (p *EventProducer) PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error {
	return p.Publish(ctx, routingKey, event)
}

// PublishIntentDecision publishes an intent classifier audit record.
func (p *EventProducer) PublishIntentDecision(ctx context.Context, event domain.IntentDecisionEvent) error {
	return p.Publish(ctx, domain.RoutingKeyIntentDecided, event)
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body any) error {
	p.logger().Debug("publish skipped", "mode", "fallback", "routing_key", routingKey)
	return nil
}

func (p *EventProducerFallback) PublishTransferEvent(ctx context.Context, routingKey string, event domain.TransferEvent) error {
	p.logger().Debug("transfer event publish skipped", "mode", "fallback", "routing_key", routingKey, "proposal_id", event.ProposalID)
	return nil
}

func (p *EventProducerFallback) PublishIntentDecision(ctx context.Context, event domain.IntentDecisionEvent) error {
	p.logger().Debug("intent decision publish skipped", "mode", "fallback", "intent", event.Intent, "method", event.Method)
	return nil
}

func (p *EventProducerFallback) Close() {}

func (p *EventProducerFallback) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	// Stray characters before the scheme come from badly quoted env files.
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

var (
	_ Publisher = (*EventProducer)(nil)
	_ Publisher = (*EventProducerFallback)(nil)
)
