package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

// Event names used on the wire
const (
	EventJoinMotion   = "joinMotion"
	EventLeaveMotion  = "leaveMotion"
	EventVoteUpdate   = "voteUpdate"
	EventVoteComplete = "voteComplete"
)

// Frame is a single message on the wire
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes data into a frame
func NewFrame(event string, data any) (Frame, error) {
	if event == "" {
		return Frame{}, fmt.Errorf("event name cannot be empty")
	}
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// VoteUpdate is the payload of a voteUpdate event. Only MotionID is
// guaranteed; the rest is whatever the backend chose to include.
type VoteUpdate struct {
	MotionID   string                 `json:"motionId"`
	Vote       *models.Vote           `json:"vote,omitempty"`
	Statistics *models.VoteStatistics `json:"statistics,omitempty"`
}

// DecodeVoteUpdate parses a voteUpdate payload
func DecodeVoteUpdate(data json.RawMessage) (VoteUpdate, error) {
	var update VoteUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return VoteUpdate{}, fmt.Errorf("decode voteUpdate: %w", err)
	}
	return update, nil
}

// DecodeString parses a payload that is a bare JSON string, such as the
// member id of voteComplete or the motion id of joinMotion
func DecodeString(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("decode string payload: %w", err)
	}
	return s, nil
}
