package booth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/api"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/recording"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/session"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/vad"
)

var (
	// ErrNoActiveMotion means no motion is open for voting
	ErrNoActiveMotion = errors.New("no motion is open for voting")
	// ErrVotingOpen means voting is already open on another motion
	ErrVotingOpen = errors.New("voting is already open")
	// ErrQueueEmpty means no member other than the active one is waiting
	// to vote
	ErrQueueEmpty = errors.New("no other member is waiting to vote")
)

// API is the subset of the parliament API the booth calls
type API interface {
	StatisticsSource
	ListMembers(ctx context.Context) ([]models.Member, error)
	GetMember(ctx context.Context, id string) (*models.Member, error)
	GetMotion(ctx context.Context, id string) (*models.Motion, error)
	UpdateMotionStatus(ctx context.Context, id string, status models.MotionStatus) error
	CastVote(ctx context.Context, voiceData, motionID, memberID string) (*api.CastVoteResult, error)
	UploadVoicePrint(ctx context.Context, memberID, voicePrint string) error
}

// Realtime is the subset of the realtime channel the booth uses
type Realtime interface {
	EventSource
	JoinMotion(motionID string) error
	LeaveMotion(motionID string) error
	Emit(event string, data any) error
}

// Config contains booth configuration
type Config struct {
	Recording recording.Config
	// RequireSpeech discards recordings in which no speech was detected
	// instead of submitting them
	RequireSpeech bool
	// SubmitTimeout bounds a single vote submission, 30s when zero
	SubmitTimeout time.Duration
}

// Options carries optional collaborators and callbacks
type Options struct {
	Clock     recording.Clock
	Announcer recording.Announcer
	Detector  *vad.Detector // required when RequireSpeech is set
	Notifier  Notifier
	Metrics   *metrics.Metrics

	// OnProgress receives recording progress in percent
	OnProgress func(percent float64)
	// OnStatistics receives refreshed statistics of the open motion
	OnStatistics func(models.VoteStatistics)
}

// Status is a point-in-time view of the booth
type Status struct {
	Session    session.Snapshot       `json:"session"`
	Recording  string                 `json:"recording"`
	Progress   float64                `json:"progress"`
	Statistics *models.VoteStatistics `json:"statistics,omitempty"`
	LastVote   *api.CastVoteResult    `json:"lastVote,omitempty"`
}

// voteTarget is the member and motion a recording was started for. An
// enrollment recording has no motion and becomes the member's voice print.
type voteTarget struct {
	member   models.Member
	motionID string
	enroll   bool
}

// Booth runs the voting workflow of one booth
type Booth struct {
	api        API
	channel    Realtime
	session    *session.Store
	controller *recording.Controller
	config     Config
	opts       Options
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	target      *voteTarget
	watcher     *StatsWatcher
	lastVote    *api.CastVoteResult
	unsubscribe func()
	closed      bool
	mu          sync.Mutex

	// recordMu serializes operations that start or replace a recording
	recordMu sync.Mutex
}

// New creates a booth. capture is owned by the booth from here on and
// released by Close.
func New(client API, channel Realtime, store *session.Store, capture recording.Capture, config Config, opts Options, logger *slog.Logger) (*Booth, error) {
	if client == nil || channel == nil || store == nil || capture == nil {
		return nil, fmt.Errorf("api, realtime channel, session store and capture are required")
	}
	if config.RequireSpeech && opts.Detector == nil {
		return nil, fmt.Errorf("speech detector is required when require_speech is enabled")
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 30 * time.Second
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: logger}
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Booth{
		api:     client,
		channel: channel,
		session: store,
		config:  config,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	b.controller = recording.NewController(capture, config.Recording, recording.Options{
		Clock:      opts.Clock,
		Announcer:  opts.Announcer,
		Metrics:    opts.Metrics,
		OnProgress: opts.OnProgress,
		OnComplete: b.handleResult,
	}, logger.With(slog.String("component", "recording")))

	b.unsubscribe = channel.Subscribe(realtime.EventVoteComplete, b.handleVoteComplete)
	return b, nil
}

// Resume reattaches to a voting session restored from storage. A motion
// that is no longer active on the server closes the local session.
func (b *Booth) Resume(ctx context.Context) error {
	motionID := b.session.ActiveMotionID()
	if motionID == "" || !b.session.VotingActive() {
		return nil
	}

	motion, err := b.api.GetMotion(ctx, motionID)
	if err != nil {
		return fmt.Errorf("check restored motion: %w", err)
	}
	if motion.Status != models.MotionActive {
		b.logger.Info("Restored motion is no longer active",
			slog.String("motion_id", motionID),
			slog.String("status", string(motion.Status)),
		)
		b.session.ClearSession()
		return nil
	}

	b.follow(motionID)
	b.logger.Info("Voting session resumed",
		slog.String("motion_id", motionID),
		slog.Int("voted_members", b.session.VotedCount()),
	)
	return nil
}

// StartVoting activates motionID on the server and opens a fresh voting
// session for it
func (b *Booth) StartVoting(ctx context.Context, motionID string) error {
	if motionID == "" {
		return fmt.Errorf("motion id cannot be empty")
	}

	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.session.VotingActive() {
		return fmt.Errorf("%w on motion %s", ErrVotingOpen, b.session.ActiveMotionID())
	}

	if err := b.api.UpdateMotionStatus(ctx, motionID, models.MotionActive); err != nil {
		return fmt.Errorf("activate motion: %w", err)
	}

	b.session.ClearVotedMembers()
	b.session.SetActiveMember(nil)
	b.session.SetActiveMotion(motionID)
	b.session.SetVotingActive(true)
	b.follow(motionID)

	b.logger.Info("Voting started", slog.String("motion_id", motionID))
	b.opts.Notifier.Notify(Info("Voting Started", fmt.Sprintf("Voting is open on motion %s", motionID)))
	return nil
}

// EndVoting closes the open motion on the server and returns its final
// statistics. A recording in progress is stopped and discarded.
func (b *Booth) EndVoting(ctx context.Context) (*models.VoteStatistics, error) {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	motionID := b.session.ActiveMotionID()
	if motionID == "" || !b.session.VotingActive() {
		return nil, session.ErrVotingInactive
	}

	b.session.SetVotingActive(false)
	if b.controller.State() != recording.StateIdle {
		_, _ = b.controller.Stop()
	}

	if err := b.api.UpdateMotionStatus(ctx, motionID, models.MotionCompleted); err != nil {
		b.session.SetVotingActive(true)
		return nil, fmt.Errorf("complete motion: %w", err)
	}

	stats, err := b.api.GetStatistics(ctx, motionID)
	if err != nil {
		b.logger.Warn("Failed to fetch final statistics",
			slog.String("motion_id", motionID),
			slog.String("error", err.Error()),
		)
		stats = b.latestStatistics()
	}

	b.unfollow()
	b.session.ClearSession()

	b.logger.Info("Voting ended", slog.String("motion_id", motionID))
	b.opts.Notifier.Notify(Info("Voting Ended", fmt.Sprintf("Voting closed on motion %s", motionID)))
	return stats, nil
}

// ResetSession forgets the closed session, voted members included, and
// deletes its saved copy. It is refused while voting is open or a
// recording is running.
func (b *Booth) ResetSession(ctx context.Context) error {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	if b.session.VotingActive() {
		return fmt.Errorf("%w on motion %s", ErrVotingOpen, b.session.ActiveMotionID())
	}
	if b.controller.State() != recording.StateIdle {
		return recording.ErrAlreadyRecording
	}
	b.mu.Lock()
	b.lastVote = nil
	b.mu.Unlock()
	return b.session.Reset(ctx)
}

// SelectMember gives memberID the floor. Members who already voted, or a
// selection while someone else holds the floor, are rejected.
func (b *Booth) SelectMember(ctx context.Context, memberID string) (*models.Member, error) {
	if err := b.session.CheckSelectable(memberID); err != nil {
		return nil, err
	}

	member, err := b.api.GetMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}

	if !b.session.SetActiveMember(member) {
		if err := b.session.CheckSelectable(member.ID); err != nil {
			return nil, err
		}
		return nil, session.ErrMemberActive
	}

	b.logger.Info("Member selected",
		slog.String("member_id", member.ID),
		slog.String("name", member.Name),
	)
	return member, nil
}

// ClearMember releases the floor
func (b *Booth) ClearMember() error {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	if b.controller.State() != recording.StateIdle {
		return recording.ErrAlreadyRecording
	}
	b.session.SetActiveMember(nil)
	return nil
}

// NextMember hands the floor to the next member in queue order who has
// not voted yet, wrapping around after the last member
func (b *Booth) NextMember(ctx context.Context) (*models.Member, error) {
	if !b.session.VotingActive() {
		return nil, session.ErrVotingInactive
	}

	members, err := b.api.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	current := b.session.ActiveMember()
	start := 0
	if current != nil {
		for i, m := range members {
			if m.ID == current.ID {
				start = i + 1
				break
			}
		}
	}

	var next *models.Member
	for n := 0; n < len(members); n++ {
		m := &members[(start+n)%len(members)]
		if current != nil && m.ID == current.ID {
			continue
		}
		if !b.session.HasVoted(m.ID) {
			next = m
			break
		}
	}
	if next == nil {
		return nil, ErrQueueEmpty
	}

	if current != nil {
		if err := b.ClearMember(); err != nil {
			return nil, err
		}
	}
	if !b.session.SetActiveMember(next) {
		if err := b.session.CheckSelectable(next.ID); err != nil {
			return nil, err
		}
		return nil, session.ErrMemberActive
	}

	b.logger.Info("Member selected",
		slog.String("member_id", next.ID),
		slog.String("name", next.Name),
	)
	return next, nil
}

// Queue splits the members into those waiting to vote and those who
// already voted in the open session
func (b *Booth) Queue(ctx context.Context) (waiting, voted []models.Member, err error) {
	members, err := b.api.ListMembers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}

	for _, m := range members {
		if b.session.HasVoted(m.ID) {
			voted = append(voted, m)
		} else {
			waiting = append(waiting, m)
		}
	}
	return waiting, voted, nil
}

// Record starts recording the active member's vote. The recording stops
// on its own after the configured window or on Stop, and the vote is then
// submitted in the background.
func (b *Booth) Record(ctx context.Context) error {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	if !b.session.VotingActive() {
		return session.ErrVotingInactive
	}
	motionID := b.session.ActiveMotionID()
	if motionID == "" {
		return ErrNoActiveMotion
	}
	member := b.session.ActiveMember()
	if member == nil {
		return session.ErrNoActiveMember
	}
	if b.controller.State() != recording.StateIdle {
		return recording.ErrAlreadyRecording
	}

	b.mu.Lock()
	b.target = &voteTarget{member: *member, motionID: motionID}
	b.mu.Unlock()

	announcement := recording.SpeakerAnnouncement(member.Name, member.Constituency)
	if err := b.controller.Start(ctx, announcement); err != nil {
		b.takeTarget()
		return fmt.Errorf("start recording: %w", err)
	}
	return nil
}

// EnrollVoicePrint records a sample of the member's voice and uploads it
// as their voice print once the recording window closes. It does not
// touch the voting session.
func (b *Booth) EnrollVoicePrint(ctx context.Context, memberID string) error {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	if b.controller.State() != recording.StateIdle {
		return recording.ErrAlreadyRecording
	}
	member, err := b.api.GetMember(ctx, memberID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.target = &voteTarget{member: *member, enroll: true}
	b.mu.Unlock()

	announcement := fmt.Sprintf("Recording voice print for %s. Please speak now.", member.Name)
	if err := b.controller.Start(ctx, announcement); err != nil {
		b.takeTarget()
		return fmt.Errorf("start recording: %w", err)
	}
	b.logger.Info("Voice print enrollment started",
		slog.String("member_id", member.ID),
	)
	return nil
}

// Stop ends the recording early. It returns once the vote has been
// submitted or rejected.
func (b *Booth) Stop() error {
	_, err := b.controller.Stop()
	return err
}

// Statistics fetches the current statistics of the open motion
func (b *Booth) Statistics(ctx context.Context) (*models.VoteStatistics, error) {
	motionID := b.session.ActiveMotionID()
	if motionID == "" {
		return nil, ErrNoActiveMotion
	}
	return b.api.GetStatistics(ctx, motionID)
}

// Status returns a snapshot of the booth
func (b *Booth) Status() Status {
	b.mu.Lock()
	lastVote := b.lastVote
	b.mu.Unlock()

	return Status{
		Session:    b.session.Snapshot(),
		Recording:  b.controller.State().String(),
		Progress:   b.controller.Progress(),
		Statistics: b.latestStatistics(),
		LastVote:   lastVote,
	}
}

// Close aborts any recording, releases the microphone and stops
// following the open motion. The session itself is left as is so it can
// be resumed.
func (b *Booth) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	watcher := b.watcher
	b.watcher = nil
	b.mu.Unlock()

	b.unsubscribe()
	b.cancel()
	b.controller.Close()
	if watcher != nil {
		watcher.Stop()
	}
}

func (b *Booth) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return recording.ErrClosed
	}
	return nil
}

// follow joins the motion's room and starts watching its statistics
func (b *Booth) follow(motionID string) {
	if err := b.channel.JoinMotion(motionID); err != nil {
		b.logger.Warn("Failed to join motion room",
			slog.String("motion_id", motionID),
			slog.String("error", err.Error()),
		)
	}

	watcher := NewStatsWatcher(b.channel, b.api, motionID, b.opts.OnStatistics, b.logger)

	b.mu.Lock()
	previous := b.watcher
	b.watcher = watcher
	b.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	watcher.Start(b.ctx)
}

func (b *Booth) unfollow() {
	b.mu.Lock()
	watcher := b.watcher
	b.watcher = nil
	b.mu.Unlock()

	if watcher == nil {
		return
	}
	watcher.Stop()
	if err := b.channel.LeaveMotion(watcher.MotionID()); err != nil {
		b.logger.Warn("Failed to leave motion room",
			slog.String("motion_id", watcher.MotionID()),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Booth) latestStatistics() *models.VoteStatistics {
	b.mu.Lock()
	watcher := b.watcher
	b.mu.Unlock()
	if watcher == nil {
		return nil
	}
	return watcher.Latest()
}

func (b *Booth) takeTarget() *voteTarget {
	b.mu.Lock()
	defer b.mu.Unlock()
	target := b.target
	b.target = nil
	return target
}

// handleResult submits a finished recording as a vote
func (b *Booth) handleResult(result recording.Result) {
	target := b.takeTarget()
	if target == nil {
		b.logger.Warn("Recording finished without a vote target")
		return
	}

	if result.Err != nil {
		b.opts.Notifier.Notify(Error(fmt.Sprintf("Recording failed: %v", result.Err)))
		return
	}
	rec := result.Recording

	if b.config.RequireSpeech {
		analysis := b.opts.Detector.Analyze(rec.Samples)
		if !analysis.HasSpeech {
			b.opts.Metrics.RecordRecordingDiscarded()
			b.logger.Info("Recording discarded, no speech detected",
				slog.String("member_id", target.member.ID),
				slog.Float64("voice_percentage", analysis.VoicePercentage),
			)
			if target.enroll {
				b.opts.Notifier.Notify(Error("No speech detected. Please record the voice print again."))
			} else {
				b.opts.Notifier.Notify(Error("No speech detected. Please record the vote again."))
			}
			return
		}
	}

	if target.enroll {
		b.saveVoicePrint(target.member, rec.Payload)
		return
	}

	if !b.session.VotingActive() || b.session.ActiveMotionID() != target.motionID {
		b.opts.Metrics.RecordRecordingDiscarded()
		b.logger.Info("Recording discarded, voting closed",
			slog.String("motion_id", target.motionID),
			slog.String("member_id", target.member.ID),
		)
		b.opts.Notifier.Notify(Info("Recording Discarded", "Voting closed before the vote was submitted"))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.config.SubmitTimeout)
	defer cancel()

	res, err := b.api.CastVote(ctx, rec.Payload, target.motionID, target.member.ID)
	if err != nil {
		if b.ctx.Err() != nil {
			b.logger.Info("Vote submission abandoned on shutdown",
				slog.String("member_id", target.member.ID),
			)
			return
		}
		b.logger.Warn("Vote rejected",
			slog.String("motion_id", target.motionID),
			slog.String("member_id", target.member.ID),
			slog.String("error", err.Error()),
		)
		b.opts.Notifier.Notify(Error(api.ErrorMessage(err, "Failed to process vote")))
		return
	}

	b.session.AddVotedMember(target.member.ID)
	if err := b.channel.Emit(realtime.EventVoteComplete, target.member.ID); err != nil {
		b.logger.Warn("Failed to announce vote completion",
			slog.String("member_id", target.member.ID),
			slog.String("error", err.Error()),
		)
	}

	b.mu.Lock()
	b.lastVote = res
	watcher := b.watcher
	b.mu.Unlock()
	if watcher != nil {
		watcher.Refresh()
	}

	b.opts.Notifier.Notify(Info("Vote Recorded", VoteSummary(res)))
}

// saveVoicePrint uploads an enrollment recording
func (b *Booth) saveVoicePrint(member models.Member, payload string) {
	ctx, cancel := context.WithTimeout(b.ctx, b.config.SubmitTimeout)
	defer cancel()

	if err := b.api.UploadVoicePrint(ctx, member.ID, payload); err != nil {
		if b.ctx.Err() != nil {
			return
		}
		b.logger.Warn("Voice print rejected",
			slog.String("member_id", member.ID),
			slog.String("error", err.Error()),
		)
		b.opts.Notifier.Notify(Error(api.ErrorMessage(err, "Failed to save voice print")))
		return
	}

	b.logger.Info("Voice print saved", slog.String("member_id", member.ID))
	b.opts.Notifier.Notify(Info("Voice Print Saved", fmt.Sprintf("Voice print saved for %s", member.Name)))
}

// handleVoteComplete marks a member announced by another booth as voted
func (b *Booth) handleVoteComplete(data json.RawMessage) {
	memberID, err := realtime.DecodeString(data)
	if err != nil || memberID == "" {
		b.logger.Warn("Ignoring malformed voteComplete")
		return
	}
	b.session.AddVotedMember(memberID)
}

// VoteSummary renders a cast vote as "Vote: yes (Confidence: 87.0%)"
func VoteSummary(res *api.CastVoteResult) string {
	if res.Verification == nil {
		return fmt.Sprintf("Vote: %s", res.Vote.Vote)
	}
	return fmt.Sprintf("Vote: %s (Confidence: %.1f%%)", res.Vote.Vote, res.Verification.Confidence*100)
}
