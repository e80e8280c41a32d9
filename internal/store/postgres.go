// Package store provides storage backends for MindCare.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveSession inserts or updates a session record.
func (s *PostgresStore) SaveSession(rec models.SessionRecord) error {
	data, err := encodeSession(rec.Session)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, user_id, phase, session_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			phase = EXCLUDED.phase,
			session_data = EXCLUDED.session_data,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, nilIfEmpty(rec.UserID), rec.Session.Phase.String(), data, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", rec.ID)
		return fmt.Errorf("failed to save session %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", rec.ID, "phase", rec.Session.Phase.String())
	return nil
}

// GetSession returns the session with the given ID, or nil if none exists.
func (s *PostgresStore) GetSession(id string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(`SELECT id, user_id, session_data, created_at, updated_at FROM sessions WHERE id = $1`, id)
	rec, err := scanSessionRecord(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "sessionID", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", id)
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &rec, nil
}

// GetLatestSessionByUser returns the most recently updated session of a user.
func (s *PostgresStore) GetLatestSessionByUser(userID string) (*models.SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_data, created_at, updated_at FROM sessions
		WHERE user_id = $1 ORDER BY updated_at DESC LIMIT 1`, userID)
	rec, err := scanSessionRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestSessionByUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get latest session for %s: %w", userID, err)
	}
	return &rec, nil
}

// ListSessions returns all sessions ordered by creation time.
func (s *PostgresStore) ListSessions() ([]models.SessionRecord, error) {
	rows, err := s.db.Query(`SELECT id, user_id, session_data, created_at, updated_at FROM sessions ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return scanSessionRows(rows)
}

// DeleteSession removes a session and its transcript.
func (s *PostgresStore) DeleteSession(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE session_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete transcript for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = $1`, id); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", id)
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return tx.Commit()
}

// DeleteSessionsUpdatedBefore removes sessions idle since before cutoff and
// inbound dedup records received before it.
func (s *PostgresStore) DeleteSessionsUpdatedBefore(cutoff time.Time) (int, error) {
	if _, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < $1`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune inbound dedup: %w", err)
	}
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan expired session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM transcript_entries WHERE session_id = ANY($1)`, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("failed to delete expired transcripts: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		slog.Error("PostgresStore DeleteSessionsUpdatedBefore failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit expired session delete: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.Debug("PostgresStore DeleteSessionsUpdatedBefore succeeded", "deleted", n)
	return int(n), nil
}

// AppendTranscript appends entries in order.
func (s *PostgresStore) AppendTranscript(entries ...models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(`INSERT INTO transcript_entries (session_id, speaker, text, created_at) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transcript insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.Exec(e.SessionID, string(e.Speaker), e.Text, e.CreatedAt); err != nil {
			slog.Error("PostgresStore AppendTranscript failed", "error", err, "sessionID", e.SessionID)
			return fmt.Errorf("failed to insert transcript entry: %w", err)
		}
	}
	return tx.Commit()
}

// GetTranscript returns a session's transcript in insertion order.
func (s *PostgresStore) GetTranscript(sessionID string) ([]models.TranscriptEntry, error) {
	rows, err := s.db.Query(`
		SELECT session_id, speaker, text, created_at FROM transcript_entries
		WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetTranscript query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	return scanTranscriptRows(rows)
}

// SaveProfile inserts or updates a user's profile.
func (s *PostgresStore) SaveProfile(p models.Profile) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, display_name, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.DisplayName, p.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "userID", p.UserID)
		return fmt.Errorf("failed to save profile %s: %w", p.UserID, err)
	}
	return nil
}

// GetProfile returns a user's profile, or nil if none exists.
func (s *PostgresStore) GetProfile(userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(`SELECT user_id, display_name, updated_at FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.DisplayName, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()
	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("PostgresStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

// AddResponse stores an incoming message in Postgres.
func (s *PostgresStore) AddResponse(r models.Response) error {
	_, err := s.db.Exec(`INSERT INTO responses (sender, body, time) VALUES ($1, $2, $3)`, r.From, r.Body, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	return nil
}

// GetResponses retrieves all stored incoming messages.
func (s *PostgresStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT sender, body, time FROM responses ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetResponses query failed", "error", err)
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

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
