package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"markettraveler/internal/event"
)

// Store is a sqlite-backed record of what past runs bought and which worlds
// they had to skip. Purchase volume is a few rows per minute at worst, so
// writes are synchronous.
type Store struct {
	db *sql.DB
}

// Purchase is one recorded buy.
type Purchase struct {
	World      string
	ItemID     uint32
	Quantity   int
	RecordedAt time.Time
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty history db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world TEXT NOT NULL,
			item_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS skipped_worlds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_item ON purchases(item_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordPurchase(world string, itemID uint32, quantity int, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO purchases (world, item_id, quantity, recorded_at) VALUES (?, ?, ?, ?)`,
		world, itemID, quantity, at.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) RecordSkippedWorld(world string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO skipped_worlds (world, recorded_at) VALUES (?, ?)`,
		world, at.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentPurchases returns up to limit purchases, newest first.
func (s *Store) RecentPurchases(limit int) ([]Purchase, error) {
	rows, err := s.db.Query(
		`SELECT world, item_id, quantity, recorded_at FROM purchases ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Purchase
	for rows.Next() {
		var p Purchase
		var recorded string
		if err := rows.Scan(&p.World, &p.ItemID, &p.Quantity, &recorded); err != nil {
			return nil, err
		}
		p.RecordedAt, _ = time.Parse(time.RFC3339, recorded)
		out = append(out, p)
	}
	return out, rows.Err()
}

// TotalPurchased sums every recorded quantity of an item across all runs.
func (s *Store) TotalPurchased(itemID uint32) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(
		`SELECT SUM(quantity) FROM purchases WHERE item_id = ?`, itemID,
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}

// EventHandler returns a bus handler that records purchase and skip events.
// Storage failures are logged and dropped; history must never stall a run.
func (s *Store) EventHandler(logger *slog.Logger) event.Handler {
	return func(e event.Event) {
		switch ev := e.(type) {
		case event.ItemPurchasedEvent:
			if err := s.RecordPurchase(ev.World, ev.ItemID, ev.Quantity, ev.OccurredAt()); err != nil {
				logger.Warn("Failed to record purchase", slog.Any("error", err))
			}
		case event.WorldSkippedEvent:
			if err := s.RecordSkippedWorld(ev.World, ev.OccurredAt()); err != nil {
				logger.Warn("Failed to record skipped world", slog.Any("error", err))
			}
		}
	}
}
