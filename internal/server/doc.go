// Package server implements the booth's local HTTP status endpoints used
// for kiosk monitoring: health, session state, statistics, sanitized
// configuration and Prometheus metrics.
package server
