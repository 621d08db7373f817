// Package integration provides integration tests that verify database state
// after requests. These tests use real databases via testcontainers.
//
// Run with: go test -tags=integration ./tests/integration/...
package integration
