package questions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS questions (
    id         SERIAL PRIMARY KEY,
    question   TEXT        NOT NULL UNIQUE,
    answer     TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the questions table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create questions table: %w", err)
	}
	return nil
}

// LoadPostgres reads every question from the questions table, oldest first.
func LoadPostgres(ctx context.Context, pool *pgxpool.Pool) (*Bank, error) {
	rows, err := pool.Query(ctx, `SELECT question, answer FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	qs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Question, error) {
		var q models.Question
		err := row.Scan(&q.Text, &q.Answer)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan questions: %w", err)
	}

	b := NewBank(qs)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// SeedResult counts what Upsert did.
type SeedResult struct {
	Total    int
	Inserted int
	Updated  int
}

// Upsert writes every question of b, updating the answer of questions that exist.
func Upsert(ctx context.Context, pool *pgxpool.Pool, b *Bank) (SeedResult, error) {
	res := SeedResult{Total: b.Len()}
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, q := range b.All() {
			var inserted bool
			err := tx.QueryRow(ctx, `
				INSERT INTO questions (question, answer) VALUES ($1, $2)
				ON CONFLICT (question) DO UPDATE SET answer = EXCLUDED.answer
				RETURNING (xmax = 0)`,
				q.Text, q.Answer,
			).Scan(&inserted)
			if err != nil {
				return fmt.Errorf("upsert question %q: %w", q.Text, err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return nil
	})
	return res, err
}
