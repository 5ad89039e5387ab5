package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

var (
	// ErrVotingInactive means no voting session is open
	ErrVotingInactive = errors.New("voting is not active")
	// ErrMemberActive means another member holds the floor
	ErrMemberActive = errors.New("another member is currently active")
	// ErrAlreadyVoted means the member already voted this session
	ErrAlreadyVoted = errors.New("member has already voted")
	// ErrNoActiveMember means no member holds the floor
	ErrNoActiveMember = errors.New("no active member selected")
)

// Store is the live session state
type Store struct {
	activeMember   *models.Member
	activeMotionID string
	votingActive   bool
	voted          map[string]struct{}

	storage   Storage
	listeners map[int]func(Snapshot)
	nextID    int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.RWMutex
	saveMu sync.Mutex
}

// NewStore creates an empty session. storage may be nil for an
// in-memory session.
func NewStore(storage Storage, m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		voted:     make(map[string]struct{}),
		storage:   storage,
		listeners: make(map[int]func(Snapshot)),
		metrics:   m,
		logger:    logger,
	}
}

// Restore replaces the state with the saved snapshot, if any
func (s *Store) Restore(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}

	snap, err := s.storage.Load(ctx, Namespace)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	s.applyLocked(*snap)
	count := len(s.voted)
	s.mu.Unlock()

	s.metrics.SetVotedMembers(count)
	s.logger.Info("Session restored",
		slog.String("motion_id", snap.ActiveMotionID),
		slog.Bool("voting_active", snap.VotingActive),
		slog.Int("voted_members", count),
	)
	s.notify()
	return nil
}

// Snapshot returns the export form of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ActiveMember returns the member holding the floor, or nil
func (s *Store) ActiveMember() *models.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeMember == nil {
		return nil
	}
	m := *s.activeMember
	return &m
}

// ActiveMotionID returns the motion under vote, or ""
func (s *Store) ActiveMotionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeMotionID
}

// VotingActive reports whether a voting session is open
func (s *Store) VotingActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votingActive
}

// HasVoted reports whether memberID voted this session
func (s *Store) HasVoted(memberID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.voted[memberID]
	return ok
}

// VotedCount returns the number of members who voted this session
func (s *Store) VotedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voted)
}

// CheckSelectable returns why memberID cannot take the floor, or nil
func (s *Store) CheckSelectable(memberID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkSelectableLocked(memberID)
}

func (s *Store) checkSelectableLocked(memberID string) error {
	if !s.votingActive {
		return ErrVotingInactive
	}
	if s.activeMember != nil {
		return ErrMemberActive
	}
	if _, ok := s.voted[memberID]; ok {
		return ErrAlreadyVoted
	}
	return nil
}

// SetActiveMember gives member the floor, or clears it when member is
// nil. Clearing always succeeds. Selecting is a no-op returning false
// unless voting is active, nobody holds the floor and the member has not
// voted yet.
func (s *Store) SetActiveMember(member *models.Member) bool {
	s.mu.Lock()
	if member == nil {
		changed := s.activeMember != nil
		s.activeMember = nil
		s.mu.Unlock()
		if changed {
			s.persistAndNotify()
		}
		return true
	}

	if err := s.checkSelectableLocked(member.ID); err != nil {
		s.mu.Unlock()
		s.logger.Debug("Member selection ignored",
			slog.String("member_id", member.ID),
			slog.String("reason", err.Error()),
		)
		return false
	}
	m := *member
	s.activeMember = &m
	s.mu.Unlock()

	s.persistAndNotify()
	return true
}

// AddVotedMember records memberID as voted and clears the active member
// in one transition. Repeated calls leave a single entry.
func (s *Store) AddVotedMember(memberID string) {
	if memberID == "" {
		return
	}

	s.mu.Lock()
	_, already := s.voted[memberID]
	s.voted[memberID] = struct{}{}
	cleared := s.activeMember != nil
	s.activeMember = nil
	count := len(s.voted)
	s.mu.Unlock()

	if already && !cleared {
		return
	}
	s.metrics.SetVotedMembers(count)
	s.persistAndNotify()
}

// ClearVotedMembers empties the voted set for a new voting session
func (s *Store) ClearVotedMembers() {
	s.mu.Lock()
	s.voted = make(map[string]struct{})
	s.mu.Unlock()

	s.metrics.SetVotedMembers(0)
	s.persistAndNotify()
}

// SetActiveMotion sets the motion under vote, "" for none
func (s *Store) SetActiveMotion(motionID string) {
	s.mu.Lock()
	s.activeMotionID = motionID
	s.mu.Unlock()

	s.persistAndNotify()
}

// SetVotingActive opens or closes voting. Closing also releases the floor.
func (s *Store) SetVotingActive(active bool) {
	s.mu.Lock()
	s.votingActive = active
	if !active {
		s.activeMember = nil
	}
	s.mu.Unlock()

	s.persistAndNotify()
}

// ClearSession resets the active member and motion and closes voting.
// The voted set is kept until the next ClearVotedMembers.
func (s *Store) ClearSession() {
	s.mu.Lock()
	s.activeMember = nil
	s.activeMotionID = ""
	s.votingActive = false
	s.mu.Unlock()

	s.persistAndNotify()
}

// Reset forgets the whole session, voted set included, and deletes the
// saved snapshot. The in-memory state is cleared even when the delete
// fails.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.applyLocked(Snapshot{})
	s.mu.Unlock()
	s.metrics.SetVotedMembers(0)

	var err error
	if s.storage != nil {
		s.saveMu.Lock()
		if err = s.storage.Delete(ctx, Namespace); err != nil {
			err = fmt.Errorf("delete saved session: %w", err)
		}
		s.saveMu.Unlock()
	}

	s.notify()
	s.logger.Info("Session reset")
	return err
}

// Subscribe registers fn to receive the state after every transition.
// The returned function removes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) applyLocked(snap Snapshot) {
	s.activeMember = nil
	if snap.ActiveMember != nil {
		m := *snap.ActiveMember
		s.activeMember = &m
	}
	s.activeMotionID = snap.ActiveMotionID
	s.votingActive = snap.VotingActive
	s.voted = votedSet(snap.VotedMembers)
}

func (s *Store) snapshotLocked() Snapshot {
	var member *models.Member
	if s.activeMember != nil {
		m := *s.activeMember
		member = &m
	}
	return Snapshot{
		ActiveMember:   member,
		ActiveMotionID: s.activeMotionID,
		VotingActive:   s.votingActive,
		VotedMembers:   votedList(s.voted),
	}
}

func (s *Store) persistAndNotify() {
	s.persist()
	s.notify()
}

// persist saves the latest state. Failures are logged and the in-memory
// state stays authoritative.
func (s *Store) persist() {
	if s.storage == nil {
		return
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.Snapshot()
	snap.SavedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.storage.Save(ctx, Namespace, snap); err != nil {
		s.logger.Error("Failed to persist session",
			slog.String("namespace", Namespace),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) notify() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
