package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrNotRecording is returned by Stop when no recording is in progress
	ErrNotRecording = errors.New("no recording in progress")
	// ErrNoAudio is returned by Stop when the stream produced no data
	ErrNoAudio = errors.New("no audio captured")
)

// RecorderConfig contains configuration for a Recorder
type RecorderConfig struct {
	Format Format
	// ChunkSize is the read size in bytes, 100ms of audio when zero
	ChunkSize int
	// StartTimeout bounds how long Start waits for the first chunk before
	// treating the device as live
	StartTimeout time.Duration
}

// Recording is the finalized output of one capture
type Recording struct {
	Payload    string        // base64 WAV, no data URI prefix
	Samples    []int16       // decoded PCM, kept for level analysis
	SampleRate int
	Channels   int
	Duration   time.Duration // audio duration derived from the sample count
	Size       int           // WAV size in bytes
}

// Recorder wraps a capture Device into start/stop/cleanup operations.
// Only one recording is active at a time and the hardware stream never
// leaves the recorder.
type Recorder struct {
	device Device
	config RecorderConfig
	logger *slog.Logger

	active    *capture
	recording atomic.Bool

	mu sync.Mutex
}

// capture is the per-recording state shared with the read loop
type capture struct {
	stream    Stream
	chunks    *ChunkBuffer
	startedAt time.Time

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}
	err       error // written by the read loop before done is closed
}

// NewRecorder creates a recorder reading from device
func NewRecorder(device Device, config RecorderConfig, logger *slog.Logger) *Recorder {
	if config.Format.SampleRate <= 0 {
		config.Format.SampleRate = 16000
	}
	if config.Format.Channels <= 0 {
		config.Format.Channels = 1
	}
	if config.ChunkSize <= 0 {
		// 100ms of PCM-16
		config.ChunkSize = config.Format.SampleRate * config.Format.Channels * bytesPerSample / 10
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		device: device,
		config: config,
		logger: logger,
	}
}

// Start opens the microphone and begins buffering audio. Any recording
// already in progress is cleaned up first. On failure nothing is left open.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cleanupLocked()

	stream, err := r.device.Open(ctx, r.config.Format)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	c := &capture{
		stream:    stream,
		chunks:    NewChunkBuffer(),
		startedAt: time.Now(),
		first:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.readLoop(c)

	timer := time.NewTimer(r.config.StartTimeout)
	defer timer.Stop()

	select {
	case <-c.first:
	case <-timer.C:
		r.logger.Debug("No audio yet from capture device, assuming live stream",
			slog.Duration("start_timeout", r.config.StartTimeout),
		)
	case <-c.done:
		if c.chunks.Size() == 0 {
			r.release(c)
			if c.err != nil {
				return fmt.Errorf("capture stream ended: %w", c.err)
			}
			return fmt.Errorf("%w: stream ended before producing audio", ErrDeviceUnavailable)
		}
	case <-ctx.Done():
		r.release(c)
		return ctx.Err()
	}

	r.active = c
	r.recording.Store(true)

	r.logger.Debug("Recording started",
		slog.Int("sample_rate", r.config.Format.SampleRate),
		slog.Int("channels", r.config.Format.Channels),
	)
	return nil
}

// StartRecording is Start reduced to a success flag. Failures are logged
// and leave the recorder idle.
func (r *Recorder) StartRecording(ctx context.Context) bool {
	if err := r.Start(ctx); err != nil {
		r.logger.Error("Recording error", slog.String("error", err.Error()))
		return false
	}
	return true
}

// Stop finalizes the recording: the stream is released, buffered chunks
// are concatenated and encoded as a base64 WAV payload.
func (r *Recorder) Stop(ctx context.Context) (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.active
	if c == nil {
		r.cleanupLocked()
		return nil, ErrNotRecording
	}
	r.active = nil
	r.recording.Store(false)

	_ = c.stream.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
		c.chunks.Reset()
		return nil, ctx.Err()
	}

	data := c.chunks.Bytes()
	c.chunks.Reset()

	if c.err != nil {
		r.logger.Warn("Capture stream reported an error",
			slog.String("error", c.err.Error()),
			slog.Int("bytes_captured", len(data)),
		)
	}

	samples := SamplesFromBytes(data)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	wav, err := EncodeWAV(samples, r.config.Format.SampleRate, r.config.Format.Channels)
	if err != nil {
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	frames := len(samples) / r.config.Format.Channels
	rec := &Recording{
		Payload:    EncodePayload(wav),
		Samples:    samples,
		SampleRate: r.config.Format.SampleRate,
		Channels:   r.config.Format.Channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(r.config.Format.SampleRate),
		Size:       len(wav),
	}

	r.logger.Debug("Recording stopped",
		slog.Duration("audio_duration", rec.Duration),
		slog.Duration("wall_duration", time.Since(c.startedAt)),
		slog.Int("wav_bytes", rec.Size),
	)
	return rec, nil
}

// StopRecording is Stop reduced to the payload. It returns ok=false when
// nothing was recording or no audio was captured.
func (r *Recorder) StopRecording(ctx context.Context) (payload string, ok bool) {
	rec, err := r.Stop(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotRecording) {
			r.logger.Error("Audio processing error", slog.String("error", err.Error()))
		}
		return "", false
	}
	return rec.Payload, true
}

// Cleanup stops any active stream and drops buffered audio.
// Safe to call repeatedly and when idle.
func (r *Recorder) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupLocked()
}

// IsRecording reports whether a recording is in progress
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}

func (r *Recorder) cleanupLocked() {
	if r.active != nil {
		r.release(r.active)
		r.active = nil
	}
	r.recording.Store(false)
}

// release closes the stream and waits for the read loop to exit
func (r *Recorder) release(c *capture) {
	_ = c.stream.Close()
	<-c.done
	c.chunks.Reset()
}

// readLoop copies stream data into the chunk buffer until the stream ends
func (r *Recorder) readLoop(c *capture) {
	defer close(c.done)

	buf := make([]byte, r.config.ChunkSize)
	for {
		n, err := c.stream.Read(buf)
		if n > 0 {
			c.chunks.Append(buf[:n])
			c.firstOnce.Do(func() { close(c.first) })
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				c.err = err
			}
			return
		}
	}
}
