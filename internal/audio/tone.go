package audio

import (
	"context"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// ToneDevice is a synthetic capture device producing a sine tone paced in
// real time. It stands in for a microphone on kiosks without audio input
// and in tests.
type ToneDevice struct {
	Frequency float64 // Hz, 440 when zero
	Amplitude int16   // 0 produces silence

	open   atomic.Int32
	opened atomic.Int32
}

// Open returns a new tone stream
func (d *ToneDevice) Open(ctx context.Context, format Format) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if format.SampleRate <= 0 {
		format.SampleRate = 16000
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	freq := d.Frequency
	if freq == 0 {
		freq = 440
	}

	d.open.Add(1)
	d.opened.Add(1)
	return &toneStream{
		device:    d,
		format:    format,
		frequency: freq,
		amplitude: float64(d.Amplitude),
		closed:    make(chan struct{}),
	}, nil
}

// OpenStreams returns the number of streams not yet closed
func (d *ToneDevice) OpenStreams() int {
	return int(d.open.Load())
}

// TotalOpened returns the number of streams opened so far
func (d *ToneDevice) TotalOpened() int {
	return int(d.opened.Load())
}

// toneFrame is the amount of audio produced per Read
const toneFrame = 10 * time.Millisecond

type toneStream struct {
	device    *ToneDevice
	format    Format
	frequency float64
	amplitude float64
	position  int

	closed    chan struct{}
	closeOnce sync.Once
}

func (s *toneStream) Read(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, io.EOF
	case <-time.After(toneFrame):
	}

	frames := s.format.SampleRate * int(toneFrame) / int(time.Second)
	n := frames * s.format.Channels * bytesPerSample
	if n > len(p) {
		n = len(p) - len(p)%(s.format.Channels*bytesPerSample)
		frames = n / (s.format.Channels * bytesPerSample)
	}

	samples := make([]int16, 0, frames*s.format.Channels)
	for i := 0; i < frames; i++ {
		t := float64(s.position) / float64(s.format.SampleRate)
		v := int16(s.amplitude * math.Sin(2*math.Pi*s.frequency*t))
		for ch := 0; ch < s.format.Channels; ch++ {
			samples = append(samples, v)
		}
		s.position++
	}
	return copy(p, BytesFromSamples(samples)), nil
}

func (s *toneStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.device.open.Add(-1)
	})
	return nil
}
