package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
)

var (
	jane  = &models.Member{ID: "m-jane", Name: "Jane Wanjiru", Constituency: "Westlands", Role: "MP"}
	peter = &models.Member{ID: "m-peter", Name: "Peter Kamau", Constituency: "Kiambu", Role: "MP"}
)

func newOpenSession() *Store {
	s := NewStore(nil, nil, nil)
	s.SetActiveMotion("motion-1")
	s.SetVotingActive(true)
	return s
}

func TestAddVotedMemberIsIdempotent(t *testing.T) {
	s := newOpenSession()
	require.True(t, s.SetActiveMember(jane))

	for i := 0; i < 5; i++ {
		s.AddVotedMember(jane.ID)
	}

	snap := s.Snapshot()
	assert.Equal(t, []string{jane.ID}, snap.VotedMembers)
	assert.Nil(t, snap.ActiveMember)
	assert.Nil(t, s.ActiveMember())
	assert.True(t, s.HasVoted(jane.ID))
	assert.Equal(t, 1, s.VotedCount())
}

func TestSelectionPrecondition(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Store)
		member  *models.Member
		want    bool
		wantErr error
	}{
		{
			name:   "voting active and floor free",
			setup:  func(s *Store) {},
			member: jane,
			want:   true,
		},
		{
			name:    "voting inactive",
			setup:   func(s *Store) { s.SetVotingActive(false) },
			member:  jane,
			wantErr: ErrVotingInactive,
		},
		{
			name:    "another member active",
			setup:   func(s *Store) { s.SetActiveMember(peter) },
			member:  jane,
			wantErr: ErrMemberActive,
		},
		{
			name:    "same member again",
			setup:   func(s *Store) { s.SetActiveMember(jane) },
			member:  jane,
			wantErr: ErrMemberActive,
		},
		{
			name:    "already voted",
			setup:   func(s *Store) { s.AddVotedMember(jane.ID) },
			member:  jane,
			wantErr: ErrAlreadyVoted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newOpenSession()
			tt.setup(s)
			before := s.Snapshot()

			assert.ErrorIs(t, s.CheckSelectable(tt.member.ID), tt.wantErr)
			got := s.SetActiveMember(tt.member)
			assert.Equal(t, tt.wantErr == nil, got)

			if tt.wantErr != nil {
				assert.Equal(t, before, s.Snapshot(), "rejected selection must not change state")
			} else {
				assert.Equal(t, tt.member.ID, s.ActiveMember().ID)
			}
		})
	}
}

func TestClearingActiveMemberAlwaysAllowed(t *testing.T) {
	s := NewStore(nil, nil, nil)
	assert.True(t, s.SetActiveMember(nil))

	s = newOpenSession()
	require.True(t, s.SetActiveMember(jane))
	assert.True(t, s.SetActiveMember(nil))
	assert.Nil(t, s.ActiveMember())
	assert.True(t, s.SetActiveMember(peter))
}

func TestClosingVotingReleasesFloor(t *testing.T) {
	s := newOpenSession()
	require.True(t, s.SetActiveMember(jane))

	s.SetVotingActive(false)
	assert.Nil(t, s.ActiveMember())
	assert.False(t, s.VotingActive())
}

func TestClearSessionKeepsVotedSet(t *testing.T) {
	s := newOpenSession()
	s.AddVotedMember(jane.ID)
	s.ClearSession()

	assert.Empty(t, s.ActiveMotionID())
	assert.False(t, s.VotingActive())
	assert.True(t, s.HasVoted(jane.ID))

	s.ClearVotedMembers()
	assert.Equal(t, 0, s.VotedCount())
}

func TestSnapshotConversion(t *testing.T) {
	voted := votedSet([]string{"c", "a", "b", "a", ""})
	assert.Len(t, voted, 3)
	assert.Equal(t, []string{"a", "b", "c"}, votedList(voted))
	assert.Equal(t, []string{}, votedList(map[string]struct{}{}))
}

func TestStorageRoundTrip(t *testing.T) {
	ctx := context.Background()

	backends := map[string]func(t *testing.T) Storage{
		"file": func(t *testing.T) Storage {
			fs, err := NewFileStorage(filepath.Join(t.TempDir(), "session"))
			require.NoError(t, err)
			return fs
		},
		"sqlite": func(t *testing.T) Storage {
			db, err := NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "booth.db"))
			require.NoError(t, err)
			return db
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			storage := open(t)
			defer storage.Close()

			original := NewStore(storage, nil, nil)
			original.SetActiveMotion("motion-42")
			original.SetVotingActive(true)
			original.AddVotedMember("m-3")
			original.AddVotedMember("m-1")
			original.AddVotedMember("m-2")
			require.True(t, original.SetActiveMember(jane))

			restored := NewStore(storage, nil, nil)
			require.NoError(t, restored.Restore(ctx))

			assert.Equal(t, "motion-42", restored.ActiveMotionID())
			assert.True(t, restored.VotingActive())
			assert.ElementsMatch(t, []string{"m-1", "m-2", "m-3"}, restored.Snapshot().VotedMembers)
			for _, id := range []string{"m-1", "m-2", "m-3"} {
				assert.True(t, restored.HasVoted(id))
			}
			require.NotNil(t, restored.ActiveMember())
			assert.Equal(t, jane.ID, restored.ActiveMember().ID)

			require.NoError(t, storage.Delete(ctx, Namespace))
			_, err := storage.Load(ctx, Namespace)
			assert.ErrorIs(t, err, ErrNoSnapshot)
		})
	}
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	s := NewStore(storage, nil, nil)
	require.NoError(t, s.Restore(context.Background()))
	assert.Equal(t, Snapshot{VotedMembers: []string{}}, s.Snapshot())
}

func TestFileStorageRejectsBadNamespace(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Load(context.Background(), "../escape")
	assert.Error(t, err)
	assert.Error(t, storage.Save(context.Background(), "", Snapshot{}))
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStorage(ctx, "memory", "")
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenStorage(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = OpenStorage(ctx, "redis", "")
	assert.Error(t, err)
}

func TestOpenSQLiteStorageInDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	s, err := OpenStorage(context.Background(), "sqlite", dir)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, filepath.Join(dir, SQLiteFileName))
}

func TestSubscribe(t *testing.T) {
	s := newOpenSession()

	var mu sync.Mutex
	var seen []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	})

	s.SetActiveMember(jane)
	s.AddVotedMember(jane.ID)
	unsubscribe()
	s.ClearVotedMembers()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, jane.ID, seen[0].ActiveMember.ID)
	assert.Nil(t, seen[1].ActiveMember)
	assert.Equal(t, []string{jane.ID}, seen[1].VotedMembers)
}

func TestResetDeletesSavedSession(t *testing.T) {
	ctx := context.Background()
	storage, err := NewSQLiteStorage(ctx, filepath.Join(t.TempDir(), "booth.db"))
	require.NoError(t, err)
	defer storage.Close()

	s := NewStore(storage, nil, nil)
	s.SetActiveMotion("motion-7")
	s.SetVotingActive(true)
	require.True(t, s.SetActiveMember(jane))
	s.AddVotedMember(peter.ID)

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })

	require.NoError(t, s.Reset(ctx))

	assert.Equal(t, Snapshot{VotedMembers: []string{}}, s.Snapshot())
	assert.False(t, s.HasVoted(peter.ID))
	_, err = storage.Load(ctx, Namespace)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	require.Len(t, seen, 1)
	assert.False(t, seen[0].VotingActive)
	assert.Empty(t, seen[0].VotedMembers)

	restored := NewStore(storage, nil, nil)
	require.NoError(t, restored.Restore(ctx))
	assert.Empty(t, restored.ActiveMotionID())
}

func TestResetInMemory(t *testing.T) {
	s := newOpenSession()
	s.AddVotedMember(jane.ID)

	require.NoError(t, s.Reset(context.Background()))
	assert.False(t, s.VotingActive())
	assert.Equal(t, 0, s.VotedCount())
}

func TestConcurrentVotes(t *testing.T) {
	s := newOpenSession()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddVotedMember([]string{"a", "b", "c"}[i%3])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, s.Snapshot().VotedMembers)
}
