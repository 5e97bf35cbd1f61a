package db

import (
	"database/sql"
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    product_id TEXT NOT NULL,
    should_invest BOOLEAN NOT NULL,
    amount REAL NOT NULL DEFAULT 0,
    expected_return REAL NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 0,
    score REAL NOT NULL DEFAULT 0,
    strength TEXT NOT NULL DEFAULT 'NEUTRAL',
    reasons TEXT,
    warnings TEXT,
    metadata TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, created_at);

CREATE TABLE IF NOT EXISTS investments (
    id TEXT PRIMARY KEY,
    decision_id TEXT,
    product_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    asset TEXT NOT NULL,
    currency TEXT NOT NULL,
    product_type TEXT NOT NULL,
    strike_price REAL NOT NULL,
    apy REAL NOT NULL,
    term_days INTEGER NOT NULL,
    amount REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'PENDING',
    settlement_date DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY(decision_id) REFERENCES decisions(id)
);

CREATE TABLE IF NOT EXISTS market_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    current_price REAL NOT NULL,
    price_change_24h REAL DEFAULT 0,
    trend_direction TEXT,
    trend_strength TEXT,
    recommendation TEXT,
    rsi REAL,
    volatility_ratio REAL,
    risk_level TEXT,
    support REAL,
    resistance REAL,
    data TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_snapshots_symbol ON market_snapshots(symbol, created_at);

CREATE TABLE IF NOT EXISTS strategy_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy_name TEXT NOT NULL,
    symbol TEXT NOT NULL,
    product_id TEXT,
    strength TEXT,
    confidence REAL,
    reasons TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS strategy_configs (
    name TEXT PRIMARY KEY,
    strategy_type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    is_active BOOLEAN DEFAULT 1,
    parameters TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// Lightweight, idempotent migrations for older DB files.
	if err := ensureColumn(d.DB, "decisions", "strength", "TEXT NOT NULL DEFAULT 'NEUTRAL'"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "investments", "decision_id", "TEXT"); err != nil {
		return err
	}
	if err := ensureColumn(d.DB, "market_snapshots", "data", "TEXT"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column if it does not already exist.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := db.Exec(alter); err != nil {
		return fmt.Errorf("alter table %s add column %s: %w", table, column, err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false, fmt.Errorf("pragma table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
