// Package recording drives a fixed-length vote recording window on top of
// an audio capture unit.
//
// A Controller moves through Idle, an optional Announcing state in which
// the next speaker is announced, Starting while the capture device opens,
// and Recording. The capture device is opened and stopped without holding
// the controller lock, so State and Progress never wait on the microphone.
// While recording it reports progress on a fixed interval, computed from
// the start timestamp, and stops automatically once the window elapses. A
// manual Stop follows the same path and is idempotent. Close tears down
// timers and releases the microphone whatever the current state.
package recording
