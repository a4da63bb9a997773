// Package pubsub implements scrape.Publisher over Google Cloud Pub/Sub and
// the matching subscription receive loop.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapebench/internal/logging"
)

// Publisher publishes JSON payloads, creating one topic publisher per topic.
type Publisher struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// New creates a Publisher backed by client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{client: client, publishers: make(map[string]*pubsub.Publisher)}
}

// Publish marshals the payload to JSON and publishes it to topic. The
// current trace context rides along in the message attributes.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string)}
	otel.GetTextMapPropagator().Inject(ctx, &carrier{attrs: msg.Attributes})

	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	pub, ok := p.publishers[name]
	if !ok {
		pub = p.client.Publisher(name)
		p.publishers[name] = pub
	}
	return pub
}

// Stop flushes and stops every topic publisher.
func (p *Publisher) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, name)
	}
}

// VerifyTopic fails unless topic exists and is active in project.
func VerifyTopic(ctx context.Context, client *pubsub.Client, project, topic string) error {
	got, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: fmt.Sprintf("projects/%s/topics/%s", project, topic),
	})
	if err != nil {
		return fmt.Errorf("get pubsub topic %q: %w", topic, err)
	}
	if got.GetState() != pubsubpb.Topic_ACTIVE {
		return fmt.Errorf("pubsub topic %q in project %q is not active", topic, project)
	}
	return nil
}

// Handler processes one message body. A nil return acks the message.
type Handler func(ctx context.Context, data []byte) error

// Receive pulls from subscription until ctx ends, extracting trace context
// from each message before calling handler. Handler errors nack the message
// so Pub/Sub redelivers it.
func Receive(ctx context.Context, client *pubsub.Client, subscription string, handler Handler, logger *zap.Logger) error {
	logger = logging.OrNop(logger).With(zap.String("subscription", subscription))
	err := client.Subscriber(subscription).Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		if herr := Deliver(ctx, m.Attributes, m.Data, handler); herr != nil {
			logger.Warn("message handling failed", zap.String("message_id", m.ID), zap.Error(herr))
			m.Nack()
			return
		}
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive %s: %w", subscription, err)
	}
	return nil
}

// Deliver calls handler with the trace context carried by attrs.
func Deliver(ctx context.Context, attrs map[string]string, data []byte, handler Handler) error {
	if attrs != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, &carrier{attrs: attrs})
	}
	return handler(ctx, data)
}

// carrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type carrier struct {
	attrs map[string]string
}

func (c *carrier) Get(key string) string {
	return c.attrs[key]
}

func (c *carrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
