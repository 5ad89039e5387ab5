package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

// ListMembers returns all registered members
func (c *Client) ListMembers(ctx context.Context) ([]models.Member, error) {
	var members []models.Member
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/members",
		route:  "/members",
		retry:  true,
	}, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// GetMember returns a single member
func (c *Client) GetMember(ctx context.Context, id string) (*models.Member, error) {
	if id == "" {
		return nil, fmt.Errorf("member id cannot be empty")
	}

	var member models.Member
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/members/" + url.PathEscape(id),
		route:  "/members/{id}",
		retry:  true,
	}, &member)
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// CreateMember registers a new member
func (c *Client) CreateMember(ctx context.Context, member models.NewMember) (*models.Member, error) {
	if member.Name == "" || member.Constituency == "" {
		return nil, fmt.Errorf("member name and constituency are required")
	}

	var created models.Member
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/members",
		route:  "/members",
		body:   member,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

type voicePrintRequest struct {
	VoicePrint string `json:"voicePrint"`
}

// UploadVoicePrint stores a base64 WAV voice sample as the member's
// reference voice print
func (c *Client) UploadVoicePrint(ctx context.Context, memberID, voicePrint string) error {
	if memberID == "" {
		return fmt.Errorf("member id cannot be empty")
	}
	if voicePrint == "" {
		return fmt.Errorf("voice print cannot be empty")
	}

	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/members/" + url.PathEscape(memberID) + "/voice-print",
		route:  "/members/{id}/voice-print",
		body:   voicePrintRequest{VoicePrint: voicePrint},
	}, nil)
}
