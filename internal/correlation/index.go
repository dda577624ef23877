// Package correlation maps messages announcing orders back to those orders, so a
// reaction on the message can act on the order. Only the latest listing per chat
// resolves.
package correlation

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"orderbridge/internal/metrics"
)

const defaultMaxChats = 1024

// generation is one listing's message-to-order mapping.
type generation struct {
	seq     uint64
	entries map[string]string
}

// Index is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	chats    *lru.Cache[string, *generation]
	lastSeq  uint64
	maxChats int
	metrics  *metrics.Metrics
}

// Option configures an Index.
type Option func(*Index)

// WithMaxChats caps how many chats keep a live generation. The chat whose
// listing is oldest is dropped first.
func WithMaxChats(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.maxChats = n
		}
	}
}

// WithMetrics records evictions and the number of tracked chats.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

// New creates an empty Index.
func New(opts ...Option) (*Index, error) {
	ix := &Index{maxChats: defaultMaxChats}
	for _, opt := range opts {
		opt(ix)
	}
	chats, err := lru.NewWithEvict[string, *generation](ix.maxChats, func(string, *generation) {
		ix.metrics.RecordEviction()
	})
	if err != nil {
		return nil, fmt.Errorf("correlation: create chat cache: %w", err)
	}
	ix.chats = chats
	return ix, nil
}

// BeginGeneration discards the chat's previous mapping and opens an empty one.
// It returns the new generation number.
func (ix *Index) BeginGeneration(chatID string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.beginLocked(chatID)
}

func (ix *Index) beginLocked(chatID string) uint64 {
	ix.lastSeq++
	// Replace, never clear: readers holding the old map keep a consistent view.
	ix.chats.Add(chatID, &generation{seq: ix.lastSeq, entries: map[string]string{}})
	ix.metrics.SetChatsTracked(ix.chats.Len())
	return ix.lastSeq
}

// Record links messageID to orderID in the chat's current generation,
// opening one if the chat has none.
func (ix *Index) Record(chatID, messageID, orderID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	gen, ok := ix.chats.Peek(chatID)
	if !ok {
		ix.beginLocked(chatID)
		gen, _ = ix.chats.Peek(chatID)
	}
	gen.entries[messageID] = orderID
}

// Resolve returns the order announced by messageID in the chat's current generation.
// It does not change any state, so repeated calls return the same answer.
func (ix *Index) Resolve(chatID, messageID string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	gen, ok := ix.chats.Peek(chatID)
	if !ok {
		return "", false
	}
	orderID, ok := gen.entries[messageID]
	return orderID, ok
}

// Generation returns the chat's current generation number, or 0 if it has none.
func (ix *Index) Generation(chatID string) uint64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	gen, ok := ix.chats.Peek(chatID)
	if !ok {
		return 0
	}
	return gen.seq
}

// Len returns the number of chats holding a generation.
func (ix *Index) Len() int {
	return ix.chats.Len()
}
