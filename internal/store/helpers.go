package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/MindCare/internal/models"
	"github.com/BTreeMap/MindCare/internal/questionnaire"
	"github.com/BTreeMap/MindCare/internal/screening"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// cloneRecord deep-copies the session's totals map.
func cloneRecord(rec models.SessionRecord) models.SessionRecord {
	totals := make(map[questionnaire.ID]int, len(rec.Session.Tier2Totals))
	for k, v := range rec.Session.Tier2Totals {
		totals[k] = v
	}
	rec.Session.Tier2Totals = totals
	return rec
}

func encodeSession(s screening.Session) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

func decodeSession(data string) (screening.Session, error) {
	var s screening.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return s, fmt.Errorf("decode session: %w", err)
	}
	if s.Tier2Totals == nil {
		s.Tier2Totals = make(map[questionnaire.ID]int)
	}
	return s, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSessionRecord scans id, user_id, session_data, created_at, updated_at.
func scanSessionRecord(row rowScanner) (models.SessionRecord, error) {
	var rec models.SessionRecord
	var userID sql.NullString
	var data string
	if err := row.Scan(&rec.ID, &userID, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	rec.UserID = userID.String
	s, err := decodeSession(data)
	if err != nil {
		return rec, err
	}
	rec.Session = s
	return rec, nil
}

func scanSessionRows(rows *sql.Rows) ([]models.SessionRecord, error) {
	defer rows.Close()
	var out []models.SessionRecord
	for rows.Next() {
		rec, err := scanSessionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row failed: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows failed: %w", err)
	}
	return out, nil
}

func scanTranscriptRows(rows *sql.Rows) ([]models.TranscriptEntry, error) {
	defer rows.Close()
	var out []models.TranscriptEntry
	for rows.Next() {
		var e models.TranscriptEntry
		var speaker string
		if err := rows.Scan(&e.SessionID, &speaker, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript row failed: %w", err)
		}
		e.Speaker = models.Speaker(speaker)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows failed: %w", err)
	}
	return out, nil
}
