// Package memory contains an in-memory publisher that stands in for the
// Pub/Sub broker in tests and single-process runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Subscriber receives the JSON body of every message published to a topic.
type Subscriber func(ctx context.Context, data []byte) error

// Publisher stores published payloads for inspection and fans them out to
// subscribers.
type Publisher struct {
	mu          sync.RWMutex
	messages    []PublishedMessage
	subscribers map[string][]Subscriber
	wg          sync.WaitGroup
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
	Data    []byte
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{subscribers: make(map[string][]Subscriber)}
}

// Subscribe registers fn for topic. Delivery is asynchronous.
func (p *Publisher) Subscribe(topic string, fn Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers[topic] = append(p.subscribers[topic], fn)
}

// Publish records the message, delivers it and returns a pseudo ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	id := fmt.Sprintf("memory-%d", len(p.messages))
	subs := append([]Subscriber(nil), p.subscribers[topic]...)
	p.mu.Unlock()

	deliverCtx := context.WithoutCancel(ctx)
	for _, fn := range subs {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = fn(deliverCtx, data)
		}()
	}
	return id, nil
}

// Wait blocks until every delivery started so far has returned.
func (p *Publisher) Wait() {
	p.wg.Wait()
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
