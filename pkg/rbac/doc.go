// Package rbac implements dynamically configured role-based access control
// for path-protected routes.
//
// Policies live in the protected_routes table as (prefix, role set) pairs
// and are edited by administrators at runtime, so the pipeline reads them
// through a TTL cache instead of hitting the database per request. A
// request path is authorized against the single most specific policy: among
// all prefixes that match, the longest wins, with ties on length broken by
// lexicographic prefix order. Narrower policies therefore override broader
// ones (/admin/settings restricts further than /admin).
//
// The cache degrades gracefully: if the database is unreachable at refresh
// time, the last good snapshot keeps serving and the failure is logged as
// an operational concern.
package rbac
