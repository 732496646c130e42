package rbac

import (
	"encoding/json"
	"sort"
	"time"
)

// RoleSet is a set of role names. Policies store roles as a JSON array;
// the set is built once when a policy is loaded so membership checks don't
// re-parse per request.
type RoleSet map[string]struct{}

// NewRoleSet builds a RoleSet from role names
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return set
}

// Has reports whether the role is in the set
func (rs RoleSet) Has(role string) bool {
	_, ok := rs[role]
	return ok
}

// Names returns the sorted role names
func (rs RoleSet) Names() []string {
	names := make([]string, 0, len(rs))
	for r := range rs {
		names = append(names, r)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the set as a sorted JSON array
func (rs RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(rs.Names())
}

// UnmarshalJSON decodes a JSON array of role names
func (rs *RoleSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*rs = NewRoleSet(names...)
	return nil
}

// RoutePolicy protects one path prefix with a set of allowed roles
type RoutePolicy struct {
	ID        int64     `json:"id"`
	Prefix    string    `json:"prefix"`
	Roles     RoleSet   `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether this policy's prefix covers the request path
func (p *RoutePolicy) Matches(path string) bool {
	return len(path) >= len(p.Prefix) && path[:len(p.Prefix)] == p.Prefix
}
