package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Documents live in a map of JSON trees and
// subscribers are notified after every committed write.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]any
	hub     *hub
	latency time.Duration
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithLatency delays every operation, which lets tests exercise timeouts.
func WithLatency(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.latency = d
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newHub(func(ctx context.Context, path Path) ([]byte, error) {
		return readInner(ctx, path, s.loadDocument)
	})
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *MemoryStore) loadDocument(_ context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[collection+"/"+id]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// CreateDocument stores the initial value of a new document.
func (s *MemoryStore) CreateDocument(ctx context.Context, path Path, initial any) error {
	if len(path) != 2 {
		return ErrInvalidPath
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	doc, err := newDocument(initial)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.docs[path.docKey()]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	s.docs[path.docKey()] = doc
	s.mu.Unlock()

	s.hub.notify(path)
	return nil
}

// FetchOnce reads the value at path.
func (s *MemoryStore) FetchOnce(ctx context.Context, path Path, timeout time.Duration) ([]byte, error) {
	if _, _, err := path.Document(); err != nil {
		return nil, err
	}
	fetchCtx, cancel := fetchContext(ctx, timeout)
	defer cancel()
	if err := s.wait(fetchCtx); err != nil {
		return nil, timeoutErr(fetchCtx, err)
	}

	data, err := readInner(fetchCtx, path, s.loadDocument)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, nil
}

// Subscribe delivers the value at path now and after every change to its document.
func (s *MemoryStore) Subscribe(ctx context.Context, path Path, onChange func([]byte)) (*Subscription, error) {
	if _, _, err := path.Document(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, path, onChange), nil
}

// Unsubscribe stops a subscription.
func (s *MemoryStore) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	sub.cancel()
	return nil
}

// PartialUpdate merges fields at path.
func (s *MemoryStore) PartialUpdate(ctx context.Context, path Path, fields map[string]any) error {
	if _, _, err := path.Document(); err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.docs[path.docKey()]
	if !ok {
		doc = map[string]any{}
	}
	if err := applyUpdate(doc, path.Inner(), fields); err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path.docKey()] = doc
	s.mu.Unlock()

	s.hub.notify(path)
	return nil
}

// SetField replaces the value at path.
func (s *MemoryStore) SetField(ctx context.Context, path Path, value any) error {
	if _, _, err := path.Document(); err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.docs[path.docKey()]
	if !ok {
		doc = map[string]any{}
	}
	next, err := applySet(doc, path.Inner(), value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if next == nil {
		delete(s.docs, path.docKey())
	} else {
		s.docs[path.docKey()] = next
	}
	s.mu.Unlock()

	s.hub.notify(path)
	return nil
}

// Subscribers returns the number of live subscriptions.
func (s *MemoryStore) Subscribers() int {
	return s.hub.count()
}
