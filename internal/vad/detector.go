package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScaleRMS is the RMS level mapped to a voice probability of 1.0
const fullScaleRMS = 10000.0

// Config contains detector configuration
type Config struct {
	Threshold         float32       // voice probability threshold, 0..1
	WindowSize        int           // samples per analysis window
	SampleRate        int           // Hz
	MinSpeechDuration time.Duration // voiced audio required for HasSpeech
	Smoothing         float32       // weight of the newest window, 0..1
}

// DefaultConfig returns settings tuned for 16kHz speech
func DefaultConfig() Config {
	return Config{
		Threshold:         0.1,
		WindowSize:        512,
		SampleRate:        16000,
		MinSpeechDuration: 300 * time.Millisecond,
		Smoothing:         0.5,
	}
}

// Detector estimates how much of a recording contains speech
type Detector struct {
	config Config

	// Statistics
	analyses      uint64
	speechFound   uint64
	totalWindows  uint64
	voiceWindows  uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Analysis is the result of analyzing one recording
type Analysis struct {
	Windows         int           `json:"windows"`
	VoiceWindows    int           `json:"voice_windows"`
	VoicePercentage float64       `json:"voice_percentage"`
	SpeechDuration  time.Duration `json:"speech_duration"`
	PeakProbability float32       `json:"peak_probability"`
	MeanLevel       float64       `json:"mean_level"`
	HasSpeech       bool          `json:"has_speech"`
}

// Stats represents detector statistics
type Stats struct {
	Analyses        uint64    `json:"analyses"`
	SpeechFound     uint64    `json:"speech_found"`
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
	Threshold       float32   `json:"threshold"`
}

// NewDetector creates a detector, validating config
func NewDetector(config Config) (*Detector, error) {
	if config.Threshold < 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", config.Threshold)
	}
	if config.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", config.WindowSize)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.Smoothing <= 0 || config.Smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", config.Smoothing)
	}
	if config.MinSpeechDuration < 0 {
		return nil, fmt.Errorf("min speech duration cannot be negative, got %v", config.MinSpeechDuration)
	}

	return &Detector{config: config}, nil
}

// Analyze splits samples into consecutive windows and classifies each one.
// A trailing partial window is analyzed as well.
func (d *Detector) Analyze(samples []int16) Analysis {
	var result Analysis
	if len(samples) == 0 {
		d.record(result)
		return result
	}

	var (
		smoothed   float32
		levelSum   float64
		voiced     int // voiced samples
		windowSize = d.config.WindowSize
	)

	for start := 0; start < len(samples); start += windowSize {
		end := start + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		window := samples[start:end]

		level := rms(window)
		levelSum += level

		probability := float32(math.Min(level/fullScaleRMS, 1))
		if result.Windows == 0 {
			smoothed = probability
		} else {
			smoothed = d.config.Smoothing*probability + (1-d.config.Smoothing)*smoothed
		}
		if smoothed > result.PeakProbability {
			result.PeakProbability = smoothed
		}
		if smoothed >= d.config.Threshold {
			result.VoiceWindows++
			voiced += len(window)
		}
		result.Windows++
	}

	result.MeanLevel = levelSum / float64(result.Windows)
	result.VoicePercentage = float64(result.VoiceWindows) / float64(result.Windows) * 100
	result.SpeechDuration = time.Duration(voiced) * time.Second / time.Duration(d.config.SampleRate)
	result.HasSpeech = result.VoiceWindows > 0 && result.SpeechDuration >= d.config.MinSpeechDuration

	d.record(result)
	return result
}

func (d *Detector) record(result Analysis) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.analyses++
	if result.HasSpeech {
		d.speechFound++
	}
	d.totalWindows += uint64(result.Windows)
	d.voiceWindows += uint64(result.VoiceWindows)
	d.lastProcessed = time.Now()
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	voicePercentage := float64(0)
	if d.totalWindows > 0 {
		voicePercentage = float64(d.voiceWindows) / float64(d.totalWindows) * 100
	}

	return Stats{
		Analyses:        d.analyses,
		SpeechFound:     d.speechFound,
		TotalWindows:    d.totalWindows,
		VoiceWindows:    d.voiceWindows,
		VoicePercentage: voicePercentage,
		LastProcessed:   d.lastProcessed,
		Threshold:       d.config.Threshold,
	}
}

// rms returns the root mean square level of a window
func rms(samples []int16) float64 {
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy / float64(len(samples)))
}
