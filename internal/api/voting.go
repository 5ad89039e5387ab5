package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

// CastVoteRequest is the body of POST /voting/cast-vote
type CastVoteRequest struct {
	VoiceData string `json:"voiceData"`
	MotionID  string `json:"motionId"`
	MemberID  string `json:"memberId"`
}

// CastVoteResult is the backend's verdict on a cast vote
type CastVoteResult struct {
	Vote         models.Vote          `json:"vote"`
	Verification *models.Verification `json:"verification,omitempty"`
}

// CastVote submits a recorded vote. It is never retried; on failure the
// operator re-records.
func (c *Client) CastVote(ctx context.Context, voiceData, motionID, memberID string) (*CastVoteResult, error) {
	if voiceData == "" {
		return nil, fmt.Errorf("voice data cannot be empty")
	}
	if motionID == "" || memberID == "" {
		return nil, fmt.Errorf("motion id and member id are required")
	}

	start := time.Now()
	var result CastVoteResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/voting/cast-vote",
		route:  "/voting/cast-vote",
		body: CastVoteRequest{
			VoiceData: voiceData,
			MotionID:  motionID,
			MemberID:  memberID,
		},
	}, &result)
	c.metrics.RecordVoteSubmission(err == nil, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	c.logger.Info("Vote cast",
		slog.String("motion_id", motionID),
		slog.String("member_id", memberID),
		slog.String("vote", string(result.Vote.Vote)),
	)
	return &result, nil
}

// GetStatistics returns the aggregate statistics of a motion
func (c *Client) GetStatistics(ctx context.Context, motionID string) (*models.VoteStatistics, error) {
	if motionID == "" {
		return nil, fmt.Errorf("motion id cannot be empty")
	}

	var stats models.VoteStatistics
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/voting/statistics/" + url.PathEscape(motionID),
		route:  "/voting/statistics/{id}",
		retry:  true,
	}, &stats)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
