package vad

import (
	"math"
	"testing"
	"time"
)

func tone(sampleRate int, d time.Duration, amplitude float64) []int16 {
	n := int(d.Seconds() * float64(sampleRate))
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"threshold too high", func(c *Config) { c.Threshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Threshold = -0.1 }},
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero smoothing", func(c *Config) { c.Smoothing = 0 }},
		{"negative min speech", func(c *Config) { c.MinSpeechDuration = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := NewDetector(cfg); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	if _, err := NewDetector(DefaultConfig()); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestAnalyzeSilence(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	result := d.Analyze(make([]int16, 16000))
	if result.HasSpeech {
		t.Error("Silence must not be classified as speech")
	}
	if result.VoiceWindows != 0 {
		t.Errorf("Expected 0 voice windows, got %d", result.VoiceWindows)
	}
	if result.Windows != 32 {
		t.Errorf("Expected 32 windows (31 full + 1 partial), got %d", result.Windows)
	}
}

func TestAnalyzeSpeech(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	result := d.Analyze(tone(16000, time.Second, 8000))
	if !result.HasSpeech {
		t.Fatalf("Expected speech, got %+v", result)
	}
	if result.VoicePercentage < 90 {
		t.Errorf("Expected mostly voiced audio, got %.1f%%", result.VoicePercentage)
	}
	if result.SpeechDuration < 900*time.Millisecond {
		t.Errorf("Expected ~1s of speech, got %v", result.SpeechDuration)
	}
}

func TestAnalyzeShortBurst(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	samples := append(tone(16000, 100*time.Millisecond, 8000), make([]int16, 16000)...)
	result := d.Analyze(samples)
	if result.HasSpeech {
		t.Errorf("A 100ms burst is shorter than the minimum speech duration: %+v", result)
	}
	if result.VoiceWindows == 0 {
		t.Error("Expected the burst to register voiced windows")
	}
}

func TestAnalyzeEmptyAndStats(t *testing.T) {
	d, _ := NewDetector(DefaultConfig())

	if result := d.Analyze(nil); result.Windows != 0 || result.HasSpeech {
		t.Errorf("Unexpected result for empty input: %+v", result)
	}
	d.Analyze(tone(16000, time.Second, 8000))

	stats := d.GetStats()
	if stats.Analyses != 2 {
		t.Errorf("Expected 2 analyses, got %d", stats.Analyses)
	}
	if stats.SpeechFound != 1 {
		t.Errorf("Expected 1 recording with speech, got %d", stats.SpeechFound)
	}
	if stats.LastProcessed.IsZero() {
		t.Error("Expected last processed time to be set")
	}
}
