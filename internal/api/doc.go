// Package api is the HTTP client for the parliament backend.
//
// Reads retry with exponential backoff on transient failures. Mutations,
// including CastVote, are sent exactly once: a failed vote has to be
// re-recorded by the operator.
package api
