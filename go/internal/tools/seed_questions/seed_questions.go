package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/dbconfig"
	"github.com/mcdev12/triviabluff/go/internal/questions"
)

func main() {
	file := flag.String("file", "", "question bank YAML file (defaults to the built-in bank)")
	flag.Parse()

	loadEnv()

	// 1) Load the question bank
	var (
		bank *questions.Bank
		err  error
	)
	if *file != "" {
		bank, err = questions.LoadFile(*file)
	} else {
		bank, err = questions.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load questions: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := questions.EnsureSchema(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// 3) Upsert and count
	res, err := questions.Upsert(ctx, pool, bank)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"Questions seed complete: %d total, %d inserted, %d updated\n",
		res.Total, res.Inserted, res.Updated,
	)
}

// loadEnv reads .env files, the working directory's .env by default. A missing
// file is only a warning; the DB_* variables may come from the environment.
func loadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	return err
}
