package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// Lifetime is how long a fresh or renewed session lasts
	Lifetime = 30 * 24 * time.Hour
	// RenewalWindow is the span before expiry in which use of the session
	// extends it and its cookie is re-issued
	RenewalWindow = 15 * 24 * time.Hour

	// tokenBytes is the entropy of a session token (256 bits)
	tokenBytes = 32
)

// Store handles session persistence against PostgreSQL
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new session store
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: time.Now,
	}
}

// EnsureSchema creates the session table if it doesn't exist.
// The user table is owned by the account subsystem; sessions only reference it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS session (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_session_user_id ON session(user_id);
	CREATE INDEX IF NOT EXISTS idx_session_expires_at ON session(expires_at);
	`

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to ensure session table: %w", err)
	}
	return nil
}

// GenerateToken creates a new opaque session token.
// Format: base64url(32 random bytes), no padding.
func GenerateToken() (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// IDFromToken derives the stored session ID from a token (SHA-256 hex)
func IDFromToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession persists a new session for the given token and user
func (s *Store) CreateSession(ctx context.Context, token, userID string) (*Session, error) {
	sess := &Session{
		ID:        IDFromToken(token),
		UserID:    userID,
		ExpiresAt: s.now().Add(Lifetime),
	}

	query := `INSERT INTO session (id, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, query, sess.ID, sess.UserID, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return sess, nil
}

// ValidateSessionToken resolves a token into its session and user.
//
// Returns (nil, nil, nil) when the token matches no live session: unknown
// token, expired session (the expired row is deleted), or a soft-deleted
// user. A non-nil error means the store itself failed and the caller should
// degrade to an anonymous identity.
//
// A session inside its renewal window is extended to a full lifetime before
// being returned; last-writer-wins is fine when two requests race on the
// same token.
func (s *Store) ValidateSessionToken(ctx context.Context, token string) (*Session, *User, error) {
	sessionID := IDFromToken(token)

	query := `
		SELECT s.id, s.user_id, s.expires_at,
		       u.id, u.username, u.full_name, u.role, u.avatar_url, u.email_verified
		FROM session s
		JOIN "user" u ON u.id = s.user_id
		WHERE s.id = $1 AND u.deleted_at IS NULL
	`

	var (
		sess          Session
		user          User
		fullName      sql.NullString
		avatarURL     sql.NullString
		emailVerified sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.ID,
		&sess.UserID,
		&sess.ExpiresAt,
		&user.ID,
		&user.Username,
		&fullName,
		&user.Role,
		&avatarURL,
		&emailVerified,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}

	user.FullName = fullName.String
	user.AvatarURL = avatarURL.String
	if emailVerified.Valid {
		t := emailVerified.Time
		user.EmailVerified = &t
	}

	now := s.now()
	if !now.Before(sess.ExpiresAt) {
		// Expired: the row is garbage, clean it up on the way out.
		if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = $1`, sessionID); err != nil {
			return nil, nil, fmt.Errorf("failed to delete expired session: %w", err)
		}
		return nil, nil, nil
	}

	if sess.ExpiresAt.Sub(now) < RenewalWindow {
		sess.ExpiresAt = now.Add(Lifetime)
		sess.Extended = true
		if _, err := s.db.ExecContext(ctx,
			`UPDATE session SET expires_at = $1 WHERE id = $2`,
			sess.ExpiresAt, sessionID,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to extend session: %w", err)
		}
	}

	return &sess, &user, nil
}

// InvalidateSession deletes a session by ID
func (s *Store) InvalidateSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	return nil
}

// InvalidateUserSessions deletes all sessions belonging to a user
func (s *Store) InvalidateUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to invalidate user sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes all sessions whose expiry has passed and returns
// the number removed. Intended for a periodic sweep.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return n, nil
}
