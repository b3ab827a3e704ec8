package savestore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultHistory is how many past writes per slot SQLite keeps.
const DefaultHistory = 10

// SQLite keeps the live slot plus a bounded history of earlier writes.
type SQLite struct {
	db      *sql.DB
	history int

	once sync.Once
}

type HistoryEntry struct {
	ID      int64  `json:"id"`
	Slot    string `json:"slot"`
	SavedAt string `json:"saved_at"`
	Digest  string `json:"digest"`
	Size    int    `json:"size"`
}

func OpenSQLite(path string, history int) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	if history <= 0 {
		history = DefaultHistory
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
	return &SQLite{db: db, history: history}, nil
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
		`CREATE TABLE IF NOT EXISTS saves (
			slot TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			digest TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS save_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slot TEXT NOT NULL,
			data BLOB NOT NULL,
			digest TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_save_history_slot ON save_history(slot, id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

func (s *SQLite) Read(slot string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM saves WHERE slot = ?`, slot).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write upserts the slot and appends to its history in one transaction.
func (s *SQLite) Write(slot string, data []byte) error {
	if slot == "" {
		return errors.New("empty slot")
	}
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT INTO saves(slot, data, digest, saved_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET data=excluded.data, digest=excluded.digest, saved_at=excluded.saved_at`,
		slot, data, digest, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO save_history(slot, data, digest, saved_at) VALUES(?, ?, ?, ?)`,
		slot, data, digest, now); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM save_history WHERE slot = ? AND id NOT IN (
			SELECT id FROM save_history WHERE slot = ? ORDER BY id DESC LIMIT ?)`,
		slot, slot, s.history); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Slots() ([]string, error) {
	rows, err := s.db.Query(`SELECT slot FROM saves ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

// History lists retained writes for slot, newest first.
func (s *SQLite) History(slot string) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`SELECT id, slot, saved_at, digest, length(data) FROM save_history
		WHERE slot = ? ORDER BY id DESC`, slot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Slot, &e.SavedAt, &e.Digest, &e.Size); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReadHistory returns one retained write.
func (s *SQLite) ReadHistory(slot string, id int64) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM save_history WHERE slot = ? AND id = ?`, slot, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}
