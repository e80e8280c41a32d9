// Package store provides storage backends for MindCare.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/MindCare/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db}, nil
}

// SaveSession inserts or replaces a session record.
func (s *SQLiteStore) SaveSession(rec models.SessionRecord) error {
	data, err := encodeSession(rec.Session)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, user_id, phase, session_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			phase = excluded.phase,
			session_data = excluded.session_data,
			updated_at = excluded.updated_at`,
		rec.ID, nilIfEmpty(rec.UserID), rec.Session.Phase.String(), data, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", rec.ID)
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", rec.ID, "phase", rec.Session.Phase.String())
	return nil
}

// GetSession returns the session with the given ID, or nil if none exists.
func (s *SQLiteStore) GetSession(id string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(`SELECT id, user_id, session_data, created_at, updated_at FROM sessions WHERE id = ?`, id)
	rec, err := scanSessionRecord(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &rec, nil
}

// GetLatestSessionByUser returns the most recently updated session of a user.
func (s *SQLiteStore) GetLatestSessionByUser(userID string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_data, created_at, updated_at FROM sessions
		WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1`, userID)
	rec, err := scanSessionRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestSessionByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get latest session for %s: %w", userID, err)
	}
	return &rec, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *SQLiteStore) ListSessions() ([]models.SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, session_data, created_at, updated_at FROM sessions ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	recs, err := scanSessionRows(rows)
	if err != nil {
		slog.Error("SQLiteStore ListSessions scan failed", "error", err)
		return nil, err
	}
	return recs, nil
}

// DeleteSession removes a session and its transcript.
func (s *SQLiteStore) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE session_id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession transcript delete failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete transcript for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session delete: %w", err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", id)
	return nil
}

// DeleteSessionsUpdatedBefore removes sessions idle since before cutoff and
// inbound dedup records received before it.
func (s *SQLiteStore) DeleteSessionsUpdatedBefore(cutoff time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	cutoff = cutoff.UTC()
	if _, err := tx.Exec(`
		DELETE FROM transcript_entries
		WHERE session_id IN (SELECT id FROM sessions WHERE updated_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete expired transcripts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune inbound dedup: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteSessionsUpdatedBefore failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expired session delete: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("SQLiteStore DeleteSessionsUpdatedBefore succeeded", "deleted", n)
	return int(n), nil
}

// AppendTranscript appends entries in order.
func (s *SQLiteStore) AppendTranscript(entries ...models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO transcript_entries (session_id, speaker, text, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transcript insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.SessionID, string(e.Speaker), e.Text, e.CreatedAt.UTC()); err != nil {
			slog.Error("SQLiteStore AppendTranscript failed", "error", err, "sessionID", e.SessionID)
			return fmt.Errorf("failed to insert transcript entry: %w", err)
		}
	}
	return tx.Commit()
}

// GetTranscript returns a session's transcript in insertion order.
func (s *SQLiteStore) GetTranscript(sessionID string) ([]models.TranscriptEntry, error) {
	rows, err := s.db.Query(`
		SELECT session_id, speaker, text, created_at FROM transcript_entries
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetTranscript query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	return scanTranscriptRows(rows)
}

// SaveProfile inserts or updates a user's profile.
func (s *SQLiteStore) SaveProfile(p models.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, display_name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name, updated_at = excluded.updated_at`,
		p.UserID, p.DisplayName, p.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile returns a user's profile, or nil if none exists.
func (s *SQLiteStore) GetProfile(userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(`SELECT user_id, display_name, updated_at FROM profiles WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.DisplayName, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES (?, ?, ?)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

func (s *SQLiteStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES (?, ?, ?)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	return nil
}

func (s *SQLiteStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetResponses query failed", "error", err)
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		if err := rows.Scan(&r.From, &r.Body, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
