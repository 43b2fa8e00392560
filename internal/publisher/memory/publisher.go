// Package memory keeps stored-movie notifications in process. It backs the
// memory store driver, where nothing outside the process could consume them.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DefaultCapacity bounds the retained notifications.
const DefaultCapacity = 1024

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
}

// Publisher retains the most recent notifications, dropping the oldest once
// capacity is reached.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	ring     []PublishedMessage
	next     int
	total    int
}

// New returns a Publisher holding at most capacity messages. A non-positive
// capacity means DefaultCapacity.
func New(capacity int) *Publisher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Publisher{capacity: capacity, ring: make([]PublishedMessage, 0, capacity)}
}

// Publish records the message under a sequential ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("publish canceled: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total++
	msg := PublishedMessage{ID: fmt.Sprintf("memory-%d", p.total), Topic: topic, Payload: payload}
	if len(p.ring) < p.capacity {
		p.ring = append(p.ring, msg)
	} else {
		p.ring[p.next] = msg
	}
	p.next = (p.next + 1) % p.capacity
	return msg.ID, nil
}

// Messages returns the retained messages, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, 0, len(p.ring))
	if len(p.ring) < p.capacity {
		return append(out, p.ring...)
	}
	out = append(out, p.ring[p.next:]...)
	return append(out, p.ring[:p.next]...)
}

// Dropped reports how many messages were evicted to respect capacity.
func (p *Publisher) Dropped() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total - len(p.ring)
}
