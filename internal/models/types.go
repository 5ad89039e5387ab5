package models

import (
	"time"
)

// MotionStatus is the server-authoritative lifecycle state of a motion
type MotionStatus string

const (
	MotionPending   MotionStatus = "pending"
	MotionActive    MotionStatus = "active"
	MotionCompleted MotionStatus = "completed"
)

// Valid reports whether s is one of the known motion states
func (s MotionStatus) Valid() bool {
	switch s {
	case MotionPending, MotionActive, MotionCompleted:
		return true
	}
	return false
}

// Choice is the vote direction computed by the backend from the recording
type Choice string

const (
	ChoiceYes Choice = "yes"
	ChoiceNo  Choice = "no"
)

// Member is a registered member of parliament
type Member struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Constituency string `json:"constituency"`
	Role         string `json:"role"`
	IsActive     bool   `json:"isActive"`
}

// NewMember is the payload for registering a member
type NewMember struct {
	Name         string `json:"name"`
	Constituency string `json:"constituency"`
	Role         string `json:"role"`
}

// Motion is a proposal subject to a yes/no vote
type Motion struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ProposedBy   string       `json:"proposedBy"`
	DateProposed time.Time    `json:"dateProposed"`
	Status       MotionStatus `json:"status"`
	Summary      string       `json:"summary,omitempty"`
}

// NewMotion is the payload for creating a motion
type NewMotion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProposedBy  string `json:"proposedBy"`
}

// Vote is an immutable record of a cast vote
type Vote struct {
	ID             string    `json:"id"`
	MemberID       string    `json:"memberId"`
	MotionID       string    `json:"motionId"`
	Vote           Choice    `json:"vote"`
	Timestamp      time.Time `json:"timestamp"`
	VoiceRecording string    `json:"voiceRecording,omitempty"`
}

// Verification is the backend's voice match result for a cast vote
type Verification struct {
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
	Text       string  `json:"text"`
}

// ConstituencyTally holds per-constituency counts
type ConstituencyTally struct {
	Yes int `json:"yes"`
	No  int `json:"no"`
}

// VoteStatistics is the aggregate result of a motion, recomputed by the
// backend on every vote.
type VoteStatistics struct {
	Total          int                          `json:"total"`
	Yes            int                          `json:"yes"`
	No             int                          `json:"no"`
	TotalMembers   *int                         `json:"totalMembers,omitempty"`
	ByConstituency map[string]ConstituencyTally `json:"byConstituency,omitempty"`
}

// YesPercentage returns the share of yes votes, 0 when nothing was cast
func (s VoteStatistics) YesPercentage() float64 {
	return percentage(s.Yes, s.Total)
}

// NoPercentage returns the share of no votes, 0 when nothing was cast
func (s VoteStatistics) NoPercentage() float64 {
	return percentage(s.No, s.Total)
}

// Participation returns the turnout percentage. Not every backend reports
// totalMembers, so ok is false when it is absent or zero.
func (s VoteStatistics) Participation() (pct float64, ok bool) {
	if s.TotalMembers == nil || *s.TotalMembers <= 0 {
		return 0, false
	}
	return percentage(s.Total, *s.TotalMembers), true
}

func percentage(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
