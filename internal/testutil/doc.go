// Package testutil provides an in-memory parliament backend, HTTP API and
// WebSocket event hub, for tests and for local end-to-end runs through
// cmd/mockapi.
package testutil
