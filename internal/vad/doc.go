// Package vad provides an energy based voice activity check for captured
// vote recordings, so silent or empty recordings can be caught before they
// reach the voting API.
package vad
