// ABOUTME: Schema utility for creating or upgrading a closer database file.
// ABOUTME: Detects tables left by older CRM layouts and supports dry-run and backup.

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/harperreed/closer/db"
	_ "github.com/mattn/go-sqlite3"
)

// legacyTables came from the contact/company CRM layout. Their deals table
// shares a name with ours, so it is detected by its missing owner_id column.
var legacyTables = []string{
	"objects", "relationships", "companies", "contacts", "notes",
	"interactions", "followup_queue", "contact_cadence",
	"sync_state", "sync_log",
}

func main() {
	dbPath := flag.String("db", "", "Path to database file (required)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create backup before migration")
	force := flag.Bool("force", false, "Drop legacy tables even though their data is lost")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("Error: -db flag is required")
	}

	if err := migrate(*dbPath, *dryRun, *backup, *force); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

type plan struct {
	drop    []string
	missing []string
}

func migrate(dbPath string, dryRun, createBackup, force bool) error {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file does not exist: %s", dbPath)
	}

	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	p, err := inspect(database)
	if err != nil {
		return err
	}

	if len(p.drop) > 0 && !force {
		log.Printf("Found legacy tables: %v", p.drop)
		log.Printf("WARNING: migration drops them and their data")
		return fmt.Errorf("migration requires -force flag")
	}

	if dryRun {
		log.Printf("[DRY RUN] Would perform the following actions:")
		for _, table := range p.drop {
			log.Printf("[DRY RUN] - Drop legacy table: %s", table)
		}
		if len(p.missing) > 0 {
			log.Printf("[DRY RUN] - Create tables: %v", p.missing)
		} else {
			log.Printf("[DRY RUN] - Schema is current, indexes and triggers re-applied")
		}
		return nil
	}

	if createBackup {
		if err := backupFile(dbPath); err != nil {
			return err
		}
	}

	for _, table := range p.drop {
		if _, err := database.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Printf("Dropped table: %s", table)
	}

	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Printf("Schema applied (%d new tables)", len(p.missing))

	return nil
}

func inspect(database *sql.DB) (*plan, error) {
	tables, err := getCurrentTables(database)
	if err != nil {
		return nil, fmt.Errorf("failed to get current tables: %w", err)
	}
	log.Printf("Current tables: %v", tables)

	p := &plan{}
	for _, table := range tables {
		if slices.Contains(legacyTables, table) {
			p.drop = append(p.drop, table)
		}
	}

	if slices.Contains(tables, "deals") {
		ours, err := hasColumn(database, "deals", "owner_id")
		if err != nil {
			return nil, err
		}
		if !ours {
			p.drop = append(p.drop, "deals")
			tables = slices.DeleteFunc(tables, func(t string) bool { return t == "deals" })
		}
	}

	for _, table := range db.Tables {
		if !slices.Contains(tables, table) {
			p.missing = append(p.missing, table)
		}
	}

	return p, nil
}

func backupFile(dbPath string) error {
	backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
	log.Printf("Creating backup: %s", backupPath)

	input, err := os.ReadFile(dbPath)
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}
	if err := os.WriteFile(backupPath, input, 0644); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	log.Printf("Backup created successfully")
	return nil
}

func getCurrentTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
