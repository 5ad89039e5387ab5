package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// gatheredValue returns the value of the first sample of name matching label
func gatheredValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelValue != "" {
				matched := false
				for _, label := range metric.GetLabel() {
					if label.GetValue() == labelValue {
						matched = true
					}
				}
				if !matched {
					continue
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("Metric %s{%s} not found", name, labelValue)
	return 0
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.RecordRecordingStarted()
	m.RecordRecordingCompleted(5, 1024)
	m.RecordRecordingFailed()
	m.RecordVoteSubmission(true, 0.2)
	m.RecordAPIRequest("GET", "/members", "200", 0.1)
	m.RecordRealtimeEvent("in", "voteUpdate")
	m.SetRealtimeConnected(true)
	m.SetVotedMembers(3)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
}

func TestRecordingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordRecordingStarted()
	if got := gatheredValue(t, reg, "booth_recording_active", ""); got != 1 {
		t.Errorf("Expected active recording gauge 1, got %f", got)
	}

	m.RecordRecordingCompleted(4.9, 156844)
	if got := gatheredValue(t, reg, "booth_recordings_completed_total", ""); got != 1 {
		t.Errorf("Expected 1 completed recording, got %f", got)
	}
	if got := gatheredValue(t, reg, "booth_recording_active", ""); got != 0 {
		t.Errorf("Expected active recording gauge 0, got %f", got)
	}
}

func TestVoteSubmissionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordVoteSubmission(true, 0.3)
	m.RecordVoteSubmission(false, 0.1)
	m.RecordVoteSubmission(false, 0.1)

	if got := gatheredValue(t, reg, "booth_vote_submissions_total", "success"); got != 1 {
		t.Errorf("Expected 1 successful submission, got %f", got)
	}
	if got := gatheredValue(t, reg, "booth_vote_submissions_total", "failure"); got != 2 {
		t.Errorf("Expected 2 failed submissions, got %f", got)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on fresh registries must not panic
	NewMetricsWith(prometheus.NewRegistry())
	NewMetricsWith(prometheus.NewRegistry())
}
