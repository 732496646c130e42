// Package session implements cookie-session persistence for the request
// pipeline.
//
// A session token is an opaque random string handed to the browser; the
// stored session ID is the SHA-256 hex digest of the token, so a database
// leak never exposes usable tokens. Sessions live for 30 days with a
// sliding expiry: any request inside the final 15 days pushes the expiry
// back out to a full lifetime and re-issues the cookie.
package session
