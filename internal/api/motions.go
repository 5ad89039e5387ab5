package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

// ListMotions returns all motions
func (c *Client) ListMotions(ctx context.Context) ([]models.Motion, error) {
	var motions []models.Motion
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/motions",
		route:  "/motions",
		retry:  true,
	}, &motions)
	if err != nil {
		return nil, err
	}
	return motions, nil
}

// ListActiveMotions returns motions currently open for voting
func (c *Client) ListActiveMotions(ctx context.Context) ([]models.Motion, error) {
	var motions []models.Motion
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/motions/active/all",
		route:  "/motions/active/all",
		retry:  true,
	}, &motions)
	if err != nil {
		return nil, err
	}
	return motions, nil
}

// GetMotion returns a single motion
func (c *Client) GetMotion(ctx context.Context, id string) (*models.Motion, error) {
	if id == "" {
		return nil, fmt.Errorf("motion id cannot be empty")
	}

	var motion models.Motion
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/motions/" + url.PathEscape(id),
		route:  "/motions/{id}",
		retry:  true,
	}, &motion)
	if err != nil {
		return nil, err
	}
	return &motion, nil
}

type createMotionRequest struct {
	models.NewMotion
	Status       models.MotionStatus `json:"status"`
	DateProposed time.Time           `json:"dateProposed"`
}

// CreateMotion creates a pending motion proposed now
func (c *Client) CreateMotion(ctx context.Context, motion models.NewMotion) (*models.Motion, error) {
	if motion.Title == "" || motion.ProposedBy == "" {
		return nil, fmt.Errorf("motion title and proposer are required")
	}

	var created models.Motion
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/motions",
		route:  "/motions",
		body: createMotionRequest{
			NewMotion:    motion,
			Status:       models.MotionPending,
			DateProposed: time.Now().UTC(),
		},
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

type motionStatusRequest struct {
	Status models.MotionStatus `json:"status"`
}

// UpdateMotionStatus requests a status transition. The backend decides
// whether the transition is allowed.
func (c *Client) UpdateMotionStatus(ctx context.Context, id string, status models.MotionStatus) error {
	if id == "" {
		return fmt.Errorf("motion id cannot be empty")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid motion status %q", status)
	}

	return c.do(ctx, request{
		method: http.MethodPut,
		path:   "/motions/" + url.PathEscape(id) + "/status",
		route:  "/motions/{id}/status",
		body:   motionStatusRequest{Status: status},
	}, nil)
}
