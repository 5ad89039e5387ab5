package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type failingDevice struct{ err error }

func (d failingDevice) Open(ctx context.Context, format Format) (Stream, error) {
	return nil, d.err
}

// emptyStream ends immediately without producing audio
type emptyStream struct{}

func (emptyStream) Read(p []byte) (int, error) { return 0, io.EOF }
func (emptyStream) Close() error               { return nil }

type emptyDevice struct{}

func (emptyDevice) Open(ctx context.Context, format Format) (Stream, error) {
	return emptyStream{}, nil
}

func newTestRecorder(device Device) *Recorder {
	return NewRecorder(device, RecorderConfig{Format: DefaultFormat(), StartTimeout: 200 * time.Millisecond}, testLogger())
}

func TestRecorderStartStop(t *testing.T) {
	device := &ToneDevice{Amplitude: 8000}
	rec := newTestRecorder(device)
	ctx := context.Background()

	if !rec.StartRecording(ctx) {
		t.Fatal("StartRecording failed")
	}
	if !rec.IsRecording() {
		t.Error("Expected recorder to report recording")
	}
	if device.OpenStreams() != 1 {
		t.Errorf("Expected 1 open stream, got %d", device.OpenStreams())
	}

	time.Sleep(60 * time.Millisecond)

	recording, err := rec.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if rec.IsRecording() {
		t.Error("Expected recorder to be idle after stop")
	}
	if device.OpenStreams() != 0 {
		t.Errorf("Expected microphone released, %d streams open", device.OpenStreams())
	}

	wav, err := DecodePayload(recording.Payload)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	samples, sampleRate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("payload is not a WAV file: %v", err)
	}
	if sampleRate != 16000 || channels != 1 {
		t.Errorf("Unexpected format %d Hz / %d ch", sampleRate, channels)
	}
	if len(samples) != len(recording.Samples) {
		t.Errorf("Expected %d samples in payload, got %d", len(recording.Samples), len(samples))
	}
	if recording.Duration <= 0 {
		t.Errorf("Expected positive duration, got %v", recording.Duration)
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	rec := newTestRecorder(&ToneDevice{})

	if _, err := rec.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}

	payload, ok := rec.StopRecording(context.Background())
	if ok || payload != "" {
		t.Errorf("Expected no payload, got ok=%v payload=%q", ok, payload)
	}
}

func TestRecorderStartFailure(t *testing.T) {
	rec := newTestRecorder(failingDevice{err: ErrPermissionDenied})

	if rec.StartRecording(context.Background()) {
		t.Fatal("Expected StartRecording to fail")
	}
	if rec.IsRecording() {
		t.Error("Recorder must stay idle after a failed start")
	}

	err := rec.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestRecorderStreamEndsWithoutAudio(t *testing.T) {
	rec := newTestRecorder(emptyDevice{})

	err := rec.Start(context.Background())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if rec.IsRecording() {
		t.Error("Recorder must stay idle")
	}
}

func TestRecorderRestartCleansUpPrevious(t *testing.T) {
	device := &ToneDevice{Amplitude: 1000}
	rec := newTestRecorder(device)
	ctx := context.Background()

	if !rec.StartRecording(ctx) || !rec.StartRecording(ctx) {
		t.Fatal("StartRecording failed")
	}
	if device.TotalOpened() != 2 {
		t.Errorf("Expected 2 streams opened, got %d", device.TotalOpened())
	}
	if device.OpenStreams() != 1 {
		t.Errorf("Expected previous stream closed, %d open", device.OpenStreams())
	}

	rec.Cleanup()
	if device.OpenStreams() != 0 {
		t.Errorf("Expected no open streams, got %d", device.OpenStreams())
	}
}

func TestRecorderCleanupIdempotent(t *testing.T) {
	device := &ToneDevice{}
	rec := newTestRecorder(device)

	rec.Cleanup()
	rec.Cleanup()

	if !rec.StartRecording(context.Background()) {
		t.Fatal("StartRecording failed")
	}
	rec.Cleanup()
	rec.Cleanup()

	if device.OpenStreams() != 0 {
		t.Errorf("Expected no open streams, got %d", device.OpenStreams())
	}
	if _, ok := rec.StopRecording(context.Background()); ok {
		t.Error("Expected no payload after cleanup")
	}
}

func TestRecorderNeverLeaksStreams(t *testing.T) {
	device := &ToneDevice{Amplitude: 500}
	rec := newTestRecorder(device)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 25; i++ {
		switch rng.Intn(3) {
		case 0:
			rec.StartRecording(ctx)
		case 1:
			rec.StopRecording(ctx)
		case 2:
			rec.Cleanup()
		}
		if device.OpenStreams() > 1 {
			t.Fatalf("step %d: %d streams open at once", i, device.OpenStreams())
		}
	}

	rec.Cleanup()
	if device.OpenStreams() != 0 {
		t.Errorf("Expected zero open streams, got %d", device.OpenStreams())
	}
}
