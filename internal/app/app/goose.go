package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

func applyMigrations(migrations fs.FS, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// Migrate applies embedded migrations to the database at dsn
func Migrate(ctx context.Context, dsn string, migrations fs.FS) error {
	db, err := OpenDB(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	return applyMigrations(migrations, db)
}
