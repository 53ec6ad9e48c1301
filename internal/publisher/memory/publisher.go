// Package memory records published note events in memory. The crawl command
// uses it when publishing is enabled without a broker, and tests inspect it.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("memory publisher closed")

// Publisher keeps every published payload, grouped by topic.
type Publisher struct {
	mu      sync.RWMutex
	log     []PublishedMessage
	byTopic map[string][]int
	closed  bool
}

// PublishedMessage captures one publish call. ID matches the value Publish
// returned for it.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{byTopic: make(map[string][]int)}
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("publish to %s: %w", topic, ErrClosed)
	}
	id := fmt.Sprintf("memory-%d", len(p.log)+1)
	p.byTopic[topic] = append(p.byTopic[topic], len(p.log))
	p.log = append(p.log, PublishedMessage{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of every recorded publish in order.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.log))
	copy(out, p.log)
	return out
}

// Topic returns the messages published to topic, oldest first.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	idx := p.byTopic[topic]
	out := make([]PublishedMessage, 0, len(idx))
	for _, i := range idx {
		out = append(out, p.log[i])
	}
	return out
}

// Close stops accepting messages. Recorded messages stay readable.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
