// Package event provides the publish/subscribe and hook capabilities that
// the book and renderer hold.
package event

import (
	"context"
	"sync"
)

// Topics published by the book and renderer.
const (
	BookReady            = "book:ready"
	BookLoadFailed       = "book:loadFailed"
	BookChapterDisplayed = "book:chapterDisplayed"
	BookChapterFailed    = "book:chapterLoadFailed"
	BookAtStart          = "book:atStart"
	BookAtEnd            = "book:atEnd"
	BookPageChanged      = "book:pageChanged"
	BookPageListReady    = "book:pageListReady"
	BookLocationsReady   = "book:locationsReady"

	RendererChapterUnload    = "renderer:chapterUnload"
	RendererChapterUnloaded  = "renderer:chapterUnloaded"
	RendererChapterDisplayed = "renderer:chapterDisplayed"
	RendererLocationChanged  = "renderer:locationChanged"
	RendererVisibleRange     = "renderer:visibleRangeChanged"
	RendererSpreads          = "renderer:spreads"
	RendererResized          = "renderer:resized"

	LocationsChanged = "locations:changed"
)

// Handler receives a published payload.
type Handler func(payload any)

type subscription struct {
	id      int
	handler Handler
}

// Emitter is a topic-based observable.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string][]subscription)}
}

// Subscribe registers h for topic and returns an id for Unsubscribe.
func (e *Emitter) Subscribe(topic string, h Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.subs[topic] = append(e.subs[topic], subscription{id: e.nextID, handler: h})
	return e.nextID
}

// Unsubscribe removes the subscription with id from topic.
func (e *Emitter) Unsubscribe(topic string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.subs[topic]
	for i, s := range subs {
		if s.id == id {
			e.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish calls every handler of topic in subscription order.
func (e *Emitter) Publish(topic string, payload any) {
	e.mu.RLock()
	subs := append([]subscription(nil), e.subs[topic]...)
	e.mu.RUnlock()
	for _, s := range subs {
		s.handler(payload)
	}
}

// Forward republishes every payload of topic on dst under the same topic.
func (e *Emitter) Forward(dst *Emitter, topics ...string) {
	for _, topic := range topics {
		e.Subscribe(topic, func(payload any) { dst.Publish(topic, payload) })
	}
}

// Hook is a callback run at a named point, in registration order.
type Hook[T any] func(ctx context.Context, target T) error

// Hooks is an ordered list of hooks.
type Hooks[T any] struct {
	mu    sync.Mutex
	hooks []Hook[T]
}

// Register appends h. With toFront it runs before existing hooks.
func (hs *Hooks[T]) Register(h Hook[T], toFront bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if toFront {
		hs.hooks = append([]Hook[T]{h}, hs.hooks...)
		return
	}
	hs.hooks = append(hs.hooks, h)
}

// Len returns the number of registered hooks.
func (hs *Hooks[T]) Len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.hooks)
}

// Trigger runs all hooks sequentially and stops at the first error.
func (hs *Hooks[T]) Trigger(ctx context.Context, target T) error {
	hs.mu.Lock()
	hooks := append([]Hook[T](nil), hs.hooks...)
	hs.mu.Unlock()
	for _, h := range hooks {
		if err := h(ctx, target); err != nil {
			return err
		}
	}
	return nil
}
