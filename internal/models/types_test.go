package models

import (
	"encoding/json"
	"testing"
)

func TestVoteStatisticsPercentages(t *testing.T) {
	tests := []struct {
		name    string
		stats   VoteStatistics
		wantYes float64
		wantNo  float64
	}{
		{"no votes", VoteStatistics{}, 0, 0},
		{"all yes", VoteStatistics{Total: 4, Yes: 4}, 100, 0},
		{"split", VoteStatistics{Total: 4, Yes: 1, No: 3}, 25, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.YesPercentage(); got != tt.wantYes {
				t.Errorf("YesPercentage() = %v, want %v", got, tt.wantYes)
			}
			if got := tt.stats.NoPercentage(); got != tt.wantNo {
				t.Errorf("NoPercentage() = %v, want %v", got, tt.wantNo)
			}
		})
	}
}

func TestParticipationOptional(t *testing.T) {
	var withoutTotal VoteStatistics
	if err := json.Unmarshal([]byte(`{"total":3,"yes":2,"no":1}`), &withoutTotal); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := withoutTotal.Participation(); ok {
		t.Error("expected participation to be unavailable without totalMembers")
	}

	var withTotal VoteStatistics
	if err := json.Unmarshal([]byte(`{"total":3,"yes":2,"no":1,"totalMembers":12}`), &withTotal); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	pct, ok := withTotal.Participation()
	if !ok {
		t.Fatal("expected participation to be available")
	}
	if pct != 25 {
		t.Errorf("expected 25%% participation, got %v", pct)
	}
}

func TestMotionStatusValid(t *testing.T) {
	for _, s := range []MotionStatus{MotionPending, MotionActive, MotionCompleted} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if MotionStatus("archived").Valid() {
		t.Error("unknown status should be invalid")
	}
}
