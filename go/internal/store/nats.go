package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig configures the JetStream key-value bucket that holds documents.
type NATSConfig struct {
	Bucket     string
	History    uint8
	TTL        time.Duration // How long an untouched session survives
	Replicas   int
	MaxRetries int // Optimistic write attempts before giving up
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		Bucket:     "BLUFF_GAMES",
		History:    1,
		TTL:        24 * time.Hour,
		Replicas:   1,
		MaxRetries: 16,
	}
}

// NATSStore keeps one document per key in a JetStream key-value bucket. Writes
// are read-modify-write cycles guarded by the entry revision, so concurrent
// partial updates never lose each other's fields.
type NATSStore struct {
	js      jetstream.JetStream
	kv      jetstream.KeyValue
	config  NATSConfig
	hub     *hub
	watcher jetstream.KeyWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

var _ Store = (*NATSStore)(nil)

// NewNATSStore ensures the bucket exists and starts watching it for changes.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, cfg NATSConfig) (*NATSStore, error) {
	s := &NATSStore{js: js, config: cfg, done: make(chan struct{})}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	s.hub = newHub(func(ctx context.Context, path Path) ([]byte, error) {
		return readInner(ctx, path, s.loadDocument)
	})

	watchCtx, cancel := context.WithCancel(context.Background())
	watcher, err := s.kv.WatchAll(watchCtx, jetstream.UpdatesOnly())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch bucket: %w", err)
	}
	s.watcher = watcher
	s.cancel = cancel
	go s.watch(watchCtx)

	return s, nil
}

func (s *NATSStore) ensureBucket(ctx context.Context) error {
	kv, err := s.js.KeyValue(ctx, s.config.Bucket)
	if err == nil {
		s.kv = kv
		log.Info().Str("bucket", s.config.Bucket).Msg("using existing key-value bucket")
		return nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return fmt.Errorf("get bucket: %w", err)
	}

	kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      s.config.Bucket,
		Description: "Trivia bluff game sessions",
		History:     s.config.History,
		TTL:         s.config.TTL,
		Storage:     jetstream.FileStorage,
		Replicas:    s.config.Replicas,
	})
	if err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	s.kv = kv
	log.Info().Str("bucket", s.config.Bucket).Msg("created key-value bucket")
	return nil
}

func (s *NATSStore) watch(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-s.watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				continue
			}
			path, err := pathFromKey(entry.Key())
			if err != nil {
				log.Warn().Str("key", entry.Key()).Msg("ignoring change to unexpected key")
				continue
			}
			s.hub.notify(path)
		}
	}
}

// Close stops the bucket watcher and every subscription.
func (s *NATSStore) Close() error {
	s.cancel()
	err := s.watcher.Stop()
	<-s.done
	return err
}

func kvKey(path Path) string {
	return path[0] + "." + path[1]
}

func pathFromKey(key string) (Path, error) {
	collection, id, ok := strings.Cut(key, ".")
	if !ok || collection == "" || id == "" {
		return nil, ErrInvalidPath
	}
	return Doc(collection, id), nil
}

func (s *NATSStore) loadDocument(ctx context.Context, collection, id string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, kvKey(Doc(collection, id)))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, nil
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return entry.Value(), nil
}

// CreateDocument stores the initial value of a new document.
func (s *NATSStore) CreateDocument(ctx context.Context, path Path, initial any) error {
	if len(path) != 2 {
		return ErrInvalidPath
	}
	doc, err := newDocument(initial)
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.kv.Create(ctx, kvKey(path), data); err != nil {
		if isRevisionConflict(err) {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

// FetchOnce reads the value at path.
func (s *NATSStore) FetchOnce(ctx context.Context, path Path, timeout time.Duration) ([]byte, error) {
	if _, _, err := path.Document(); err != nil {
		return nil, err
	}
	fetchCtx, cancel := fetchContext(ctx, timeout)
	defer cancel()

	data, err := readInner(fetchCtx, path, s.loadDocument)
	if err != nil {
		return nil, timeoutErr(fetchCtx, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, nil
}

// Subscribe delivers the value at path now and after every change to its document.
func (s *NATSStore) Subscribe(ctx context.Context, path Path, onChange func([]byte)) (*Subscription, error) {
	if _, _, err := path.Document(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, path, onChange), nil
}

// Unsubscribe stops a subscription.
func (s *NATSStore) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	sub.cancel()
	return nil
}

// PartialUpdate merges fields at path.
func (s *NATSStore) PartialUpdate(ctx context.Context, path Path, fields map[string]any) error {
	if _, _, err := path.Document(); err != nil {
		return err
	}
	return s.modify(ctx, path, func(doc map[string]any) (map[string]any, error) {
		if err := applyUpdate(doc, path.Inner(), fields); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// SetField replaces the value at path.
func (s *NATSStore) SetField(ctx context.Context, path Path, value any) error {
	if _, _, err := path.Document(); err != nil {
		return err
	}
	return s.modify(ctx, path, func(doc map[string]any) (map[string]any, error) {
		return applySet(doc, path.Inner(), value)
	})
}

// modify runs a read-modify-write cycle, retrying when another writer got in
// between the read and the write.
func (s *NATSStore) modify(ctx context.Context, path Path, fn func(map[string]any) (map[string]any, error)) error {
	key := kvKey(path)
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		var (
			doc      map[string]any
			revision uint64
		)
		entry, err := s.kv.Get(ctx, key)
		switch {
		case err == nil:
			revision = entry.Revision()
			if doc, err = decodeDocument(entry.Value()); err != nil {
				return err
			}
		case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
			doc = map[string]any{}
		default:
			return fmt.Errorf("get key: %w", err)
		}

		next, err := fn(doc)
		if err != nil {
			return err
		}

		err = s.write(ctx, key, next, revision)
		if err == nil {
			return nil
		}
		if !isRevisionConflict(err) {
			return err
		}
		log.Debug().
			Str("key", key).
			Int("attempt", attempt).
			Msg("revision conflict, retrying write")
	}
	return fmt.Errorf("write %s: too many concurrent writers", path)
}

func (s *NATSStore) write(ctx context.Context, key string, doc map[string]any, revision uint64) error {
	if doc == nil {
		if revision == 0 {
			return nil
		}
		return s.kv.Delete(ctx, key, jetstream.LastRevision(revision))
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if revision == 0 {
		_, err = s.kv.Create(ctx, key, data)
	} else {
		_, err = s.kv.Update(ctx, key, data, revision)
	}
	return err
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
