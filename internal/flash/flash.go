// Package flash collects user-facing messages for the duration of one
// request. Handlers render the collected messages next to their payload.
package flash

import (
	"context"
	"sync"
)

// Message levels.
const (
	LevelError   = "error"
	LevelSuccess = "success"
)

// Message is one entry of the bag.
type Message struct {
	Level string `json:"type"`
	Text  string `json:"text"`
}

// Bag holds the messages of a request.
type Bag struct {
	mu   sync.Mutex
	msgs []Message
}

func (b *Bag) add(level, text string) {
	b.mu.Lock()
	b.msgs = append(b.msgs, Message{Level: level, Text: text})
	b.mu.Unlock()
}

// Messages returns a copy of the collected messages.
func (b *Bag) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

type bagKey struct{}

// WithBag attaches a fresh bag to ctx.
func WithBag(ctx context.Context) (context.Context, *Bag) {
	b := &Bag{}
	return context.WithValue(ctx, bagKey{}, b), b
}

// FromContext returns the bag of ctx, or nil.
func FromContext(ctx context.Context) *Bag {
	b, _ := ctx.Value(bagKey{}).(*Bag)
	return b
}

// Messenger writes into the bag carried by the context. Messages posted
// on a context without a bag are dropped.
type Messenger struct{}

func (Messenger) AddError(ctx context.Context, msg string) {
	if b := FromContext(ctx); b != nil {
		b.add(LevelError, msg)
	}
}

func (Messenger) AddSuccess(ctx context.Context, msg string) {
	if b := FromContext(ctx); b != nil {
		b.add(LevelSuccess, msg)
	}
}
