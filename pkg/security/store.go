package security

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

// SessionSource supplies the session history the scorer needs
type SessionSource interface {
	// IPHistory returns the distinct IPs the user was seen from since since
	IPHistory(ctx context.Context, userID int64, since time.Time) ([]string, error)

	// ActiveSessions returns sessions of the user that are active and not
	// expired at now
	ActiveSessions(ctx context.Context, userID int64, now time.Time) ([]Session, error)
}

// SessionStore keeps sessions and session activity in SQL
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// IPHistory returns distinct IPs from sessions and activities created at or
// after since, sorted
func (s *SessionStore) IPHistory(ctx context.Context, userID int64, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip_address FROM session_activities
		WHERE user_id = $1 AND created_at >= $2 AND ip_address <> ''
		UNION
		SELECT ip_address FROM user_sessions
		WHERE user_id = $1 AND created_at >= $2 AND ip_address <> ''
		ORDER BY 1
	`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get ip history: %w", err)
	}
	defer rows.Close()

	var ips []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("failed to scan ip history: %w", err)
		}
		ips = append(ips, ip)
	}
	return ips, rows.Err()
}

const sessionColumns = `id, user_id, ip_address, user_agent, device_id, created_at, last_seen_at, expires_at, is_active, ended_at`

// ActiveSessions returns active sessions of the user expiring after now
func (s *SessionStore) ActiveSessions(ctx context.Context, userID int64, now time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+`
		FROM user_sessions
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if session.ExpiresAt.After(now) {
			sessions = append(sessions, *session)
		}
	}
	return sessions, rows.Err()
}

// GetSession returns a session by ID
func (s *SessionStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// RecordSession inserts a new session, assigning an ID when empty
func (s *SessionStore) RecordSession(ctx context.Context, session *Session) error {
	if session.UserID <= 0 {
		return apperr.Validation("user id is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := s.now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = session.CreatedAt
	}
	if session.ExpiresAt.IsZero() {
		return apperr.Validation("session expiry is required")
	}
	session.IsActive = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions
			(id, user_id, ip_address, user_agent, device_id, created_at, last_seen_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		session.ID,
		session.UserID,
		session.IPAddress,
		session.UserAgent,
		session.DeviceID,
		session.CreatedAt.UTC(),
		session.LastSeenAt.UTC(),
		session.ExpiresAt.UTC(),
		session.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// RecordActivity appends an activity and refreshes the session's last_seen_at
func (s *SessionStore) RecordActivity(ctx context.Context, activity Activity) error {
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = s.now()
	}
	at := activity.CreatedAt.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_activities (session_id, user_id, ip_address, action, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, activity.SessionID, activity.UserID, activity.IPAddress, activity.Action, at); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_sessions SET last_seen_at = $1 WHERE id = $2 AND last_seen_at < $1
	`, at, activity.SessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return tx.Commit()
}

// EndSession deactivates a session and reports whether it was active
func (s *SessionStore) EndSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = false, ended_at = $1
		WHERE id = $2 AND is_active = true
	`, at.UTC(), sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to end session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanSession(scanner interface {
	Scan(dest ...interface{}) error
}) (*Session, error) {
	var session Session
	var deviceID sql.NullString
	var endedAt sql.NullTime
	err := scanner.Scan(
		&session.ID,
		&session.UserID,
		&session.IPAddress,
		&session.UserAgent,
		&deviceID,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
		&session.IsActive,
		&endedAt,
	)
	if err != nil {
		return nil, err
	}
	if deviceID.Valid {
		id := deviceID.String
		session.DeviceID = &id
	}
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	return &session, nil
}
