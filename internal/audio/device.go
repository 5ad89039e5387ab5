package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

var (
	// ErrDeviceUnavailable is returned when no capture device can be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrPermissionDenied is returned when the OS refuses microphone access
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// Format describes the stream requested from a capture device.
// Devices may not honour every preference; the PCM encoding is always
// signed 16-bit little endian. Echo cancellation is not a stream option:
// on pulse it comes from selecting an echo-cancel source as the device
// Input.
type Format struct {
	SampleRate       int
	Channels         int
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultFormat is the preferred capture format for spoken votes
func DefaultFormat() Format {
	return Format{
		SampleRate:       16000,
		Channels:         1,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Device opens hardware input streams
type Device interface {
	Open(ctx context.Context, format Format) (Stream, error)
}

// Stream is an open microphone stream yielding PCM-16 bytes.
// Close releases the hardware and unblocks any pending Read.
type Stream interface {
	io.Reader
	Close() error
}

// FFmpegDevice captures from the platform default input through an ffmpeg
// subprocess writing raw s16le PCM to stdout.
type FFmpegDevice struct {
	// Binary is the ffmpeg executable, "ffmpeg" when empty
	Binary string
	// Input overrides the platform input name ("default" on pulse, ":0" on avfoundation)
	Input string
}

// Open starts ffmpeg and returns its stdout as the stream
func (d *FFmpegDevice) Open(ctx context.Context, format Format) (Stream, error) {
	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrDeviceUnavailable, binary)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args, err := ffmpegCaptureArgs(runtime.GOOS, d.Input, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	cmd := exec.Command(binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	stderr := &limitedBuffer{limit: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg capture: %v", ErrDeviceUnavailable, err)
	}

	return &ffmpegStream{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// ffmpegCaptureArgs builds the capture command line for goos
func ffmpegCaptureArgs(goos, input string, format Format) ([]string, error) {
	var source []string
	switch goos {
	case "darwin":
		if input == "" {
			input = ":0"
		}
		source = []string{"-f", "avfoundation", "-i", input}
	case "linux":
		if input == "" {
			input = "default"
		}
		source = []string{"-f", "pulse", "-i", input}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}

	sampleRate := format.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	channels := format.Channels
	if channels <= 0 {
		channels = 1
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, source...)
	if filters := captureFilters(format); filters != "" {
		args = append(args, "-af", filters)
	}
	args = append(args,
		"-ac", fmt.Sprintf("%d", channels),
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-f", "s16le", "-",
	)
	return args, nil
}

// captureFilters maps the format preferences onto ffmpeg audio filters
func captureFilters(format Format) string {
	var filters []string
	if format.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn")
	}
	if format.AutoGainControl {
		filters = append(filters, "dynaudnorm")
	}
	return strings.Join(filters, ",")
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *limitedBuffer

	closeOnce sync.Once
}

func (s *ffmpegStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err == io.EOF && n == 0 {
		if msg := s.stderr.String(); permissionMessage(msg) {
			return 0, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(msg))
		}
	}
	return n, err
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
	return nil
}

func permissionMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not authorized")
}

// limitedBuffer keeps the first limit bytes written to it
type limitedBuffer struct {
	limit int
	buf   []byte
	mu    sync.Mutex
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
