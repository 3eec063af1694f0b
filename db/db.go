// ABOUTME: Database connection management and initialization
// ABOUTME: Handles opening SQLite database with WAL mode and foreign keys
package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrDealNotFound      = errors.New("deal not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrStaleDeal         = errors.New("deal was modified concurrently")
	ErrAlreadyGenerated  = errors.New("milestones already generated for trigger")
	ErrInvalidActivity   = errors.New("invalid activity")
)

func OpenDatabase(path string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// Configure connection pool for SQLite (avoid database locked errors)
	db.SetMaxOpenConns(1)

	// Initialize schema
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// requireOwnedDeal fails with ErrDealNotFound unless the live deal belongs to ownerID.
func requireOwnedDeal(ctx context.Context, tx *sql.Tx, dealID, ownerID string) error {
	var one int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM deals WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, dealID, ownerID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrDealNotFound
	}
	return err
}
