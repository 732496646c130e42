package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ajidk16/tadbeer/pkg/audit"
)

// Store handles protected-route policy persistence
type Store struct {
	db       *sql.DB
	recorder audit.Recorder
}

// NewStore creates a new policy store. A nil recorder disables the audit
// trail for policy changes.
func NewStore(db *sql.DB, recorder audit.Recorder) *Store {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	return &Store{db: db, recorder: recorder}
}

// EnsureSchema creates the protected_routes table if it doesn't exist.
// The UNIQUE constraint on prefix is what makes the longest-prefix
// tie-break deterministic: two policies can never share an exact prefix.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS protected_routes (
		id SERIAL PRIMARY KEY,
		prefix TEXT NOT NULL UNIQUE,
		roles TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure protected_routes table: %w", err)
	}
	return nil
}

// FetchRoutePolicies loads all policies, roles deserialized into sets
func (s *Store) FetchRoutePolicies(ctx context.Context) ([]RoutePolicy, error) {
	query := `
		SELECT id, prefix, roles, created_at, updated_at
		FROM protected_routes
		ORDER BY prefix
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch route policies: %w", err)
	}
	defer rows.Close()

	var policies []RoutePolicy
	for rows.Next() {
		policy, err := scanRoutePolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}

	return policies, rows.Err()
}

// GetRoutePolicy retrieves a single policy by prefix
func (s *Store) GetRoutePolicy(ctx context.Context, prefix string) (*RoutePolicy, error) {
	query := `
		SELECT id, prefix, roles, created_at, updated_at
		FROM protected_routes
		WHERE prefix = $1
	`

	row := s.db.QueryRowContext(ctx, query, prefix)
	policy, err := scanRoutePolicy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// UpsertRoutePolicy creates or replaces the policy for a prefix
func (s *Store) UpsertRoutePolicy(ctx context.Context, prefix string, roles RoleSet) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}

	query := `
		INSERT INTO protected_routes (prefix, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (prefix)
		DO UPDATE SET roles = EXCLUDED.roles, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, prefix, string(rolesJSON), time.Now()); err != nil {
		return fmt.Errorf("failed to upsert route policy: %w", err)
	}
	s.recordChange(ctx, audit.EventPolicyUpdated, prefix, "roles: "+strings.Join(roles.Names(), ","))
	return nil
}

// DeleteRoutePolicy removes the policy for a prefix
func (s *Store) DeleteRoutePolicy(ctx context.Context, prefix string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM protected_routes WHERE prefix = $1`, prefix); err != nil {
		return fmt.Errorf("failed to delete route policy: %w", err)
	}
	s.recordChange(ctx, audit.EventPolicyDeleted, prefix, "")
	return nil
}

// recordChange writes a policy-change audit row. A failed audit write never
// fails the policy write that succeeded.
func (s *Store) recordChange(ctx context.Context, eventType, prefix, message string) {
	_ = s.recorder.Record(ctx, &audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Status:    audit.StatusSuccess,
		Path:      prefix,
		Message:   message,
	})
}

// scanRoutePolicy scans a policy from a database row
func scanRoutePolicy(scanner interface {
	Scan(dest ...interface{}) error
}) (*RoutePolicy, error) {
	var policy RoutePolicy
	var rolesJSON string

	err := scanner.Scan(
		&policy.ID,
		&policy.Prefix,
		&rolesJSON,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if rolesJSON != "" {
		if err := json.Unmarshal([]byte(rolesJSON), &policy.Roles); err != nil {
			// Corrupt role data must fail closed: an empty set matches no
			// role, so the route stays protected rather than opening up.
			policy.Roles = RoleSet{}
		}
	} else {
		policy.Roles = RoleSet{}
	}

	return &policy, nil
}
