package store

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrNotFound is returned when no document exists at a path.
	ErrNotFound = errors.New("document not found")
	// ErrTimedOut is returned when the backend did not answer within the caller's bound.
	ErrTimedOut = errors.New("store timed out")
	// ErrInvalidPath is returned for paths that do not address a document.
	ErrInvalidPath = errors.New("invalid store path")
	// ErrExists is returned when creating a document that already exists.
	ErrExists = errors.New("document already exists")
)

// Store is the realtime document store the game engine reads and writes.
// Implementations hold no game logic.
type Store interface {
	// CreateDocument writes the initial value of a new document.
	CreateDocument(ctx context.Context, path Path, initial any) error
	// FetchOnce reads the JSON value at path, failing with ErrTimedOut after timeout.
	FetchOnce(ctx context.Context, path Path, timeout time.Duration) ([]byte, error)
	// Subscribe delivers the current value at path and then every committed change.
	// A nil value means the location is empty.
	Subscribe(ctx context.Context, path Path, onChange func(value []byte)) (*Subscription, error)
	// Unsubscribe stops deliveries for sub.
	Unsubscribe(sub *Subscription) error
	// PartialUpdate atomically replaces the named fields below path and leaves every
	// sibling untouched. A field name may be a slash separated sub-path.
	PartialUpdate(ctx context.Context, path Path, fields map[string]any) error
	// SetField replaces exactly the value at path. A nil value deletes it.
	SetField(ctx context.Context, path Path, value any) error
}

// Path addresses a location in the store. The first two segments name a document
// (collection and id); any further segments address a location inside it.
type Path []string

// Doc builds the path of a document.
func Doc(collection, id string) Path {
	return Path{collection, id}
}

// ParsePath splits a slash separated path, ignoring empty segments.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// Child returns a path below p.
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	for _, seg := range segments {
		out = append(out, ParsePath(seg)...)
	}
	return out
}

// Document returns the document part of the path.
func (p Path) Document() (collection, id string, err error) {
	if len(p) < 2 {
		return "", "", ErrInvalidPath
	}
	return p[0], p[1], nil
}

// Inner returns the segments below the document.
func (p Path) Inner() []string {
	if len(p) <= 2 {
		return nil
	}
	return p[2:]
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) docKey() string {
	return p[0] + "/" + p[1]
}

var subscriptionSeq atomic.Uint64

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id     uint64
	path   Path
	cancel context.CancelFunc
	done   chan struct{}
}

func newSubscription(path Path, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		id:     subscriptionSeq.Add(1),
		path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Path returns the subscribed path.
func (s *Subscription) Path() Path {
	return s.path
}

// Done is closed once the subscription has stopped delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// fetchContext bounds ctx by timeout and translates a deadline into ErrTimedOut.
func fetchContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return err
}
