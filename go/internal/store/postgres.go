package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/sqlutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS bluff_documents (
    collection TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    doc        JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
)`

type PostgresConfig struct {
	DatabaseURL   string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel string        // Channel name written by every commit
	PingInterval  time.Duration // Keeps the listener connection alive
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		NotifyChannel: "bluff_documents",
		PingInterval:  90 * time.Second,
	}
}

// PostgresStore keeps each document as a JSONB row. Writes lock the row, change the
// tree and NOTIFY in the same transaction; a LISTEN connection turns the
// notifications into subscriber deliveries.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener
	cfg      PostgresConfig
	hub      *hub
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates the schema if needed and starts listening for changes.
func NewPostgresStore(ctx context.Context, db *sql.DB, cfg PostgresConfig) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for document changes")

	s := &PostgresStore{
		db:       db,
		listener: l,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	s.hub = newHub(func(ctx context.Context, path Path) ([]byte, error) {
		return readInner(ctx, path, s.loadDocument)
	})

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(listenCtx)
	return s, nil
}

func (s *PostgresStore) listen(ctx context.Context) {
	defer close(s.done)

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case note := <-s.listener.Notify:
			if note == nil {
				// the connection was re-established and notifications may have been missed
				s.hub.notifyAll()
				continue
			}
			path := ParsePath(note.Extra)
			if _, _, err := path.Document(); err != nil {
				log.Warn().Str("payload", note.Extra).Msg("ignoring malformed notification")
				continue
			}
			s.hub.notify(path)
		case <-pingTicker.C:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// Close stops listening. The *sql.DB belongs to the caller.
func (s *PostgresStore) Close() error {
	s.cancel()
	<-s.done
	return s.listener.Close()
}

// docQueries is the statement set used inside a write transaction.
type docQueries struct {
	tx      *sql.Tx
	channel string
}

func (q docQueries) insert(ctx context.Context, collection, id string, doc []byte) (bool, error) {
	res, err := q.tx.ExecContext(ctx,
		`INSERT INTO bluff_documents (collection, id, doc) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, string(doc))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q docQueries) lock(ctx context.Context, collection, id string) ([]byte, error) {
	var doc []byte
	err := q.tx.QueryRowContext(ctx,
		`SELECT doc FROM bluff_documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&doc)
	return doc, err
}

func (q docQueries) update(ctx context.Context, collection, id string, doc []byte) error {
	_, err := q.tx.ExecContext(ctx,
		`UPDATE bluff_documents SET doc = $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, string(doc))
	return err
}

func (q docQueries) delete(ctx context.Context, collection, id string) error {
	_, err := q.tx.ExecContext(ctx,
		`DELETE FROM bluff_documents WHERE collection = $1 AND id = $2`,
		collection, id)
	return err
}

func (q docQueries) notify(ctx context.Context, collection, id string) error {
	_, err := q.tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, q.channel, collection+"/"+id)
	return err
}

func (s *PostgresStore) bind(tx *sql.Tx) docQueries {
	return docQueries{tx: tx, channel: s.cfg.NotifyChannel}
}

func (s *PostgresStore) loadDocument(ctx context.Context, collection, id string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM bluff_documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

// CreateDocument stores the initial value of a new document.
func (s *PostgresStore) CreateDocument(ctx context.Context, path Path, initial any) error {
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

	return sqlutil.Run(ctx, s.db, s.bind, func(q docQueries) error {
		created, err := q.insert(ctx, path[0], path[1], data)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		if !created {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
		return q.notify(ctx, path[0], path[1])
	})
}

// FetchOnce reads the value at path.
func (s *PostgresStore) FetchOnce(ctx context.Context, path Path, timeout time.Duration) ([]byte, error) {
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
func (s *PostgresStore) Subscribe(ctx context.Context, path Path, onChange func([]byte)) (*Subscription, error) {
	if _, _, err := path.Document(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, path, onChange), nil
}

// Unsubscribe stops a subscription.
func (s *PostgresStore) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	sub.cancel()
	return nil
}

// PartialUpdate merges fields at path.
func (s *PostgresStore) PartialUpdate(ctx context.Context, path Path, fields map[string]any) error {
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
func (s *PostgresStore) SetField(ctx context.Context, path Path, value any) error {
	if _, _, err := path.Document(); err != nil {
		return err
	}
	return s.modify(ctx, path, func(doc map[string]any) (map[string]any, error) {
		return applySet(doc, path.Inner(), value)
	})
}

func (s *PostgresStore) modify(ctx context.Context, path Path, fn func(map[string]any) (map[string]any, error)) error {
	collection, id := path[0], path[1]
	return sqlutil.Run(ctx, s.db, s.bind, func(q docQueries) error {
		// make sure there is a row to lock
		if _, err := q.insert(ctx, collection, id, []byte("{}")); err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		data, err := q.lock(ctx, collection, id)
		if err != nil {
			return fmt.Errorf("lock document: %w", err)
		}
		doc, err := decodeDocument(data)
		if err != nil {
			return err
		}

		next, err := fn(doc)
		if err != nil {
			return err
		}

		if next == nil {
			if err := q.delete(ctx, collection, id); err != nil {
				return fmt.Errorf("delete document: %w", err)
			}
		} else {
			encoded, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			if err := q.update(ctx, collection, id, encoded); err != nil {
				return fmt.Errorf("update document: %w", err)
			}
		}
		return q.notify(ctx, collection, id)
	})
}
