// Package bus provides the async event bus connecting each account's
// connection supervisor to its downstream consumers (link ingestion,
// join queue, auto-replier).
package bus

import (
	"context"
	"sync"
	"time"
)

// StateEvent announces a connection-state transition for one account.
type StateEvent struct {
	AccountID string    `json:"account_id"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InboundMessage represents a message received on an account's connection.
type InboundMessage struct {
	AccountID  string    `json:"account_id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	IsGroup    bool      `json:"is_group,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AllAccounts subscribes a callback to events from every account.
const AllAccounts = "*"

// EventBus decouples supervisors from their consumers. Producers publish
// into bounded channels; a single dispatcher goroutine fans events out to
// per-account subscribers, so a slow consumer exerts back-pressure on the
// bus rather than on the supervisor's provider event loop.
type EventBus struct {
	state     chan *StateEvent
	inbound   chan *InboundMessage
	stateSubs map[string][]func(*StateEvent)
	msgSubs   map[string][]func(*InboundMessage)
	mu        sync.RWMutex
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		state:     make(chan *StateEvent, 100),
		inbound:   make(chan *InboundMessage, 100),
		stateSubs: make(map[string][]func(*StateEvent)),
		msgSubs:   make(map[string][]func(*InboundMessage)),
	}
}

// PublishState sends a connection-state event to subscribers.
func (b *EventBus) PublishState(evt *StateEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.state <- evt
}

// PublishInbound sends an inbound message to subscribers.
func (b *EventBus) PublishInbound(msg *InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.inbound <- msg
}

// SubscribeState registers a callback for state events of one account,
// or of all accounts when accountID is AllAccounts.
func (b *EventBus) SubscribeState(accountID string, callback func(*StateEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateSubs[accountID] = append(b.stateSubs[accountID], callback)
}

// SubscribeInbound registers a callback for inbound messages of one account,
// or of all accounts when accountID is AllAccounts.
func (b *EventBus) SubscribeInbound(accountID string, callback func(*InboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgSubs[accountID] = append(b.msgSubs[accountID], callback)
}

// Dispatch runs the fan-out loop. This should be run as a goroutine; it
// returns when the context is cancelled.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-b.state:
			b.mu.RLock()
			callbacks := append([]func(*StateEvent){}, b.stateSubs[evt.AccountID]...)
			callbacks = append(callbacks, b.stateSubs[AllAccounts]...)
			b.mu.RUnlock()
			for _, cb := range callbacks {
				cb(evt)
			}
		case msg := <-b.inbound:
			b.mu.RLock()
			callbacks := append([]func(*InboundMessage){}, b.msgSubs[msg.AccountID]...)
			callbacks = append(callbacks, b.msgSubs[AllAccounts]...)
			b.mu.RUnlock()
			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// StateSize returns the number of pending state events.
func (b *EventBus) StateSize() int {
	return len(b.state)
}

// InboundSize returns the number of pending inbound messages.
func (b *EventBus) InboundSize() int {
	return len(b.inbound)
}
