package store

import (
	"bytes"
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// reader loads the latest encoded document for a subscription delivery. It returns
// nil bytes when the document does not exist.
type reader func(ctx context.Context, path Path) ([]byte, error)

// hub fans document changes out to subscribers. Deliveries are coalesced: a signal
// only says "something changed", and the subscriber reads the newest value when it
// gets around to it, so a slow callback never works through a stale backlog.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[uint64]*subscriber
	read reader
}

type subscriber struct {
	sub      *Subscription
	onChange func([]byte)
	signal   chan struct{}
}

func newHub(read reader) *hub {
	return &hub{
		subs: make(map[string]map[uint64]*subscriber),
		read: read,
	}
}

func (h *hub) subscribe(ctx context.Context, path Path, onChange func([]byte)) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	s := &subscriber{
		sub:      newSubscription(path, cancel),
		onChange: onChange,
		signal:   make(chan struct{}, 1),
	}

	h.mu.Lock()
	key := path.docKey()
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]*subscriber)
	}
	h.subs[key][s.sub.id] = s
	count := len(h.subs[key])
	h.mu.Unlock()

	log.Debug().
		Str("path", path.String()).
		Int("subscribers", count).
		Msg("subscription registered")

	// the current value is delivered right away
	s.signal <- struct{}{}
	go h.deliver(subCtx, s)
	return s.sub
}

func (h *hub) deliver(ctx context.Context, s *subscriber) {
	defer func() {
		h.remove(s.sub)
		close(s.sub.done)
	}()

	var last []byte
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
			value, err := h.read(ctx, s.sub.path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Str("path", s.sub.path.String()).Msg("failed to read document for subscriber")
				continue
			}
			if delivered && bytes.Equal(last, value) {
				continue
			}
			last, delivered = value, true
			s.onChange(value)
		}
	}
}

func (h *hub) notify(path Path) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs[path.docKey()] {
		select {
		case s.signal <- struct{}{}:
		default:
		}
	}
}

// notifyAll wakes every subscriber, used after a change feed was interrupted.
func (h *hub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subs {
		for _, s := range subs {
			select {
			case s.signal <- struct{}{}:
			default:
			}
		}
	}
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := sub.path.docKey()
	if subs, ok := h.subs[key]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(h.subs, key)
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// readInner narrows a full document read to the subscribed location.
func readInner(ctx context.Context, path Path, loadDoc func(ctx context.Context, collection, id string) ([]byte, error)) ([]byte, error) {
	collection, id, err := path.Document()
	if err != nil {
		return nil, err
	}
	data, err := loadDoc(ctx, collection, id)
	if err != nil || data == nil {
		return nil, err
	}
	if len(path.Inner()) == 0 {
		return data, nil
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	return encodeAt(doc, path.Inner())
}
