package db

import (
	"database/sql"
	"time"

	"yegnachat/models"
)

// SaveSession persists a newly minted session with its expiry timestamp.
func (db *DB) SaveSession(s *models.Session) error {
	expires := ""
	if !s.ExpiresAt.IsZero() {
		expires = s.ExpiresAt.UTC().Format(time.RFC3339)
	}
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		s.Token, s.UserID, s.CreatedAt.UTC().Format(time.RFC3339), expires,
	)
	return err
}

// GetSession resolves a non-expired persisted session, joined with the user's
// current preferred language. Expired or absent tokens yield ErrNoRows.
// RFC 3339 UTC strings compare correctly as text.
func (db *DB) GetSession(token string, now time.Time) (*models.Session, error) {
	row := db.conn.QueryRow(`
		SELECT s.token, s.user_id, u.preferred_language_code, s.created_at, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND (s.expires_at = '' OR s.expires_at > ?)`,
		token, now.UTC().Format(time.RFC3339),
	)

	var s models.Session
	var createdAt, expiresAt string
	err := row.Scan(&s.Token, &s.UserID, &s.PreferredLanguageCode, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}

	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if expiresAt != "" {
		s.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	}
	return &s, nil
}

func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// PurgeExpiredSessions drops persisted sessions past their expiry.
func (db *DB) PurgeExpiredSessions(now time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"DELETE FROM sessions WHERE expires_at <> '' AND expires_at <= ?",
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
