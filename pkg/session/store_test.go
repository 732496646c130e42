package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE "user" (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		full_name TEXT,
		role TEXT NOT NULL,
		avatar_url TEXT,
		email_verified TIMESTAMP,
		deleted_at TIMESTAMP
	);
	CREATE TABLE session (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return NewStore(db), db
}

func insertUser(t *testing.T, db *sql.DB, id, username, role string, verified bool) {
	t.Helper()

	var emailVerified interface{}
	if verified {
		emailVerified = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO "user" (id, username, full_name, role, email_verified) VALUES ($1, $2, $3, $4, $5)`,
		id, username, username, role, emailVerified,
	)
	require.NoError(t, err)
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43) // 32 bytes base64url without padding
}

func TestIDFromToken(t *testing.T) {
	id := IDFromToken("some-token")

	assert.Len(t, id, 64) // sha256 hex
	assert.Equal(t, id, IDFromToken("some-token"))
	assert.NotEqual(t, id, IDFromToken("other-token"))
}

func TestStore_CreateAndValidate(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)

	created, err := store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)
	assert.Equal(t, IDFromToken(token), created.ID)

	sess, user, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.NotNil(t, user)

	assert.Equal(t, created.ID, sess.ID)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "siti", user.Username)
	assert.Equal(t, RoleAdmin, user.Role)
	assert.True(t, user.IsEmailVerified())
	assert.False(t, sess.Extended, "a fresh session is outside the renewal window")
}

func TestStore_UnknownTokenIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	sess, user, err := store.ValidateSessionToken(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, user)
}

func TestStore_ExpiredSessionIsDeleted(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	// Jump past the expiry
	store.now = func() time.Time { return time.Now().Add(Lifetime + time.Hour) }

	sess, user, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, user)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session`).Scan(&count))
	assert.Zero(t, count, "the expired row should be removed")
}

func TestStore_SessionExtendedInsideRenewalWindow(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	_, err = store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	// 16 days in: 14 days remain, inside the 15-day renewal window
	lookupAt := start.Add(16 * 24 * time.Hour)
	store.now = func() time.Time { return lookupAt }

	sess, _, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.True(t, sess.Extended)
	assert.Equal(t, lookupAt.Add(Lifetime), sess.ExpiresAt.UTC())

	// The extension is persisted, not just reported
	var stored time.Time
	require.NoError(t, db.QueryRow(`SELECT expires_at FROM session WHERE id = $1`, sess.ID).Scan(&stored))
	assert.Equal(t, lookupAt.Add(Lifetime), stored.UTC())
}

func TestStore_SessionNotExtendedOutsideRenewalWindow(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	created, err := store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	// 10 days in: 20 days remain, outside the renewal window
	store.now = func() time.Time { return start.Add(10 * 24 * time.Hour) }

	sess, _, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.False(t, sess.Extended)
	assert.Equal(t, created.ExpiresAt.UTC(), sess.ExpiresAt.UTC())
}

func TestStore_SoftDeletedUserGetsNoSession(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE "user" SET deleted_at = $1 WHERE id = $2`, time.Now(), "u1")
	require.NoError(t, err)

	sess, user, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Nil(t, user)
}

func TestStore_InvalidateSession(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	token, err := GenerateToken()
	require.NoError(t, err)
	created, err := store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	require.NoError(t, store.InvalidateSession(ctx, created.ID))

	sess, _, err := store.ValidateSessionToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_InvalidateUserSessions(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)
	insertUser(t, db, "u2", "budi", RoleImam, true)

	for _, userID := range []string{"u1", "u1", "u2"} {
		token, err := GenerateToken()
		require.NoError(t, err)
		_, err = store.CreateSession(ctx, token, userID)
		require.NoError(t, err)
	}

	require.NoError(t, store.InvalidateUserSessions(ctx, "u1"))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session WHERE user_id = 'u1'`).Scan(&count))
	assert.Zero(t, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session WHERE user_id = 'u2'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStore_DeleteExpired(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()
	insertUser(t, db, "u1", "siti", RoleAdmin, true)

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return start }
	for i := 0; i < 3; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		_, err = store.CreateSession(ctx, token, "u1")
		require.NoError(t, err)
	}

	// One session created later survives the sweep
	store.now = func() time.Time { return start.Add(10 * 24 * time.Hour) }
	token, err := GenerateToken()
	require.NoError(t, err)
	_, err = store.CreateSession(ctx, token, "u1")
	require.NoError(t, err)

	store.now = func() time.Time { return start.Add(Lifetime + time.Hour) }
	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM session`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestStore_DeleteExpiredSurfacesResultError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM session").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows affected unsupported")))

	store := NewStore(db)
	_, err = store.DeleteExpired(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected unsupported")
}
