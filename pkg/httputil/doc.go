// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding, and request plumbing middleware (request IDs,
// access logging, panic recovery).
package httputil
