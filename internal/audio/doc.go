// Package audio captures microphone input for a single spoken vote.
// It owns the hardware stream for the lifetime of one recording, buffers the
// captured PCM chunks, and encodes the result as a base64 WAV payload.
package audio
