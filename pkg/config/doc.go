// Package config loads server configuration from TADBEER_* environment
// variables with sane defaults, and validates the result before the server
// starts. All pipeline tunables (throttle quota/window, policy cache TTL,
// protected area prefixes) live here so deployments can adjust them without
// a rebuild.
package config
