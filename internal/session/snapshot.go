package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

// Namespace is the fixed storage key of the booth session
const Namespace = "parliament-session"

// ErrNoSnapshot is returned by Storage.Load when nothing was saved
var ErrNoSnapshot = errors.New("no saved session")

// Snapshot is the persisted form of the session
type Snapshot struct {
	ActiveMember   *models.Member `json:"activeMember"`
	ActiveMotionID string         `json:"activeMotionId,omitempty"`
	VotingActive   bool           `json:"isVotingActive"`
	VotedMembers   []string       `json:"votedMembers"`
	SavedAt        time.Time      `json:"savedAt"`
}

// Storage persists snapshots under a namespace
type Storage interface {
	Load(ctx context.Context, namespace string) (*Snapshot, error)
	Save(ctx context.Context, namespace string, snapshot Snapshot) error
	Delete(ctx context.Context, namespace string) error
	Close() error
}

// votedList converts the runtime set into its sorted export form
func votedList(voted map[string]struct{}) []string {
	list := make([]string, 0, len(voted))
	for id := range voted {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}

// votedSet rehydrates the export form, dropping duplicates and blanks
func votedSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, id := range list {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}
