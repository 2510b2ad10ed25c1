package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/propmap/propmap/internal/adapters/postgres"
	"github.com/propmap/propmap/internal/pkg/config"
)

const migrationsDir = "migrations"

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    name       TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}

	cfg, err := config.Load("propmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, cfg.Database.DSN(), postgres.WithApplicationName("propmap-migrate"))
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	if _, err := db.Pool.Exec(ctx, ledgerDDL); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}

	files, err := upFiles()
	if err != nil {
		log.Fatalf("list migrations: %v", err)
	}
	applied, err := appliedSet(ctx, db)
	if err != nil {
		log.Fatalf("read schema_migrations: %v", err)
	}

	switch os.Args[1] {
	case "up":
		for _, f := range files {
			if applied[f] {
				continue
			}
			if err := apply(ctx, db, f, f, true); err != nil {
				log.Fatal(err)
			}
			fmt.Printf("UP    %s\n", f)
		}
		log.Println("all migrations applied")
	case "down":
		slices.Reverse(files)
		for _, f := range files {
			if !applied[f] {
				continue
			}
			if err := apply(ctx, db, f, downFile(f), false); err != nil {
				log.Fatal(err)
			}
			fmt.Printf("DOWN  %s\n", f)
		}
		log.Println("all migrations reverted")
	case "status":
		for _, f := range files {
			state := "pending"
			if applied[f] {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, f)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// upFiles lists forward migrations in name order.
func upFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range matches {
		if !strings.HasSuffix(m, ".down.sql") {
			out = append(out, filepath.Base(m))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no migrations found in " + migrationsDir)
	}
	slices.Sort(out)
	return out, nil
}

func downFile(name string) string {
	return strings.TrimSuffix(name, ".sql") + ".down.sql"
}

func appliedSet(ctx context.Context, db *postgres.DB) (map[string]bool, error) {
	rows, err := db.Pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// apply runs one file and updates the ledger in the same transaction.
func apply(ctx context.Context, db *postgres.DB, name, file string, up bool) error {
	data, err := os.ReadFile(filepath.Join(migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", file, err)
		}
		if up {
			_, err = tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
		} else {
			_, err = tx.Exec(ctx, `DELETE FROM schema_migrations WHERE name = $1`, name)
		}
		return err
	})
}
