package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/audio"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
)

var (
	// ErrAlreadyRecording is returned by Start while another start is still
	// announcing or opening the capture device
	ErrAlreadyRecording = errors.New("recording already starting")
	// ErrClosed is returned by Start after Close
	ErrClosed = errors.New("recording controller closed")
	// ErrAborted is returned by Start when Stop or Close interrupts the
	// announcement or the capture start
	ErrAborted = errors.New("recording aborted before capture started")
)

// Capture is the audio capture unit driven by the Controller.
// *audio.Recorder implements it.
type Capture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*audio.Recording, error)
	Cleanup()
}

// State is the controller state
type State int

const (
	StateIdle State = iota
	StateAnnouncing
	StateStarting // capture device opening
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnnouncing:
		return "announcing"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StopReason tells how a recording ended
type StopReason string

const (
	StopManual  StopReason = "manual"
	StopTimeout StopReason = "timeout"

	stopTeardown StopReason = "teardown"
)

// Config contains controller configuration
type Config struct {
	Duration                time.Duration // recording window, 5s when zero
	ProgressInterval        time.Duration // progress sampling, 100ms when zero
	AnnounceBeforeRecording bool
	StopTimeout             time.Duration // bound on finalizing the capture, 5s when zero
}

// DefaultConfig returns the standard 5 second vote window
func DefaultConfig() Config {
	return Config{
		Duration:         5 * time.Second,
		ProgressInterval: 100 * time.Millisecond,
		StopTimeout:      5 * time.Second,
	}
}

// Result is delivered once per recording that reached the Recording state
// and was stopped, manually or by timeout
type Result struct {
	Recording *audio.Recording // nil when Err is set
	Reason    StopReason
	Elapsed   time.Duration
	Err       error
}

// Options carries optional collaborators and callbacks
type Options struct {
	Clock     Clock     // RealClock when nil
	Announcer Announcer // NopAnnouncer when nil
	Metrics   *metrics.Metrics

	// OnProgress receives progress in percent, non-decreasing per
	// recording and ending with exactly 100
	OnProgress func(percent float64)
	// OnStateChange receives every state transition. It runs with the
	// controller lock held and must not call back into the Controller.
	OnStateChange func(State)
	// OnComplete receives the result of every stopped recording
	OnComplete func(Result)
}

// Controller runs one timed recording at a time
type Controller struct {
	capture Capture
	config  Config
	opts    Options
	logger  *slog.Logger

	state   State
	current *run
	closed  bool

	mu sync.Mutex
}

// run is the state of a single recording attempt
type run struct {
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time

	stopOnce sync.Once
	stopReq  chan StopReason
	done     chan struct{}
	result   Result

	lastProgress float64
}

// NewController creates a controller driving capture
func NewController(capture Capture, config Config, opts Options, logger *slog.Logger) *Controller {
	defaults := DefaultConfig()
	if config.Duration <= 0 {
		config.Duration = defaults.Duration
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = defaults.ProgressInterval
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Announcer == nil {
		opts.Announcer = NopAnnouncer{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		capture: capture,
		config:  config,
		opts:    opts,
		logger:  logger,
	}
}

// Start begins a recording. When announcing is enabled, announcement is
// spoken first. A recording already in progress is fully stopped, with
// its result delivered, before the new one starts. On failure the
// controller stays Idle.
func (c *Controller) Start(ctx context.Context, announcement string) error {
	c.mu.Lock()

	for c.current != nil {
		if c.pendingLocked() {
			c.mu.Unlock()
			return ErrAlreadyRecording
		}
		prev := c.current
		c.mu.Unlock()

		c.logger.Debug("Stopping previous recording before starting a new one")
		prev.requestStop(StopManual)
		<-prev.done

		c.mu.Lock()
	}

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		ctx:     runCtx,
		cancel:  cancel,
		stopReq: make(chan StopReason, 1),
		done:    make(chan struct{}),
	}
	c.current = r

	if c.config.AnnounceBeforeRecording && announcement != "" {
		c.setStateLocked(StateAnnouncing)
		c.mu.Unlock()

		err := c.announce(ctx, r, announcement)

		c.mu.Lock()
		if c.current != r {
			c.mu.Unlock()
			return ErrAborted
		}
		if err != nil && ctx.Err() != nil {
			c.abortLocked(r)
			c.mu.Unlock()
			return ctx.Err()
		}
	}

	c.setStateLocked(StateStarting)
	c.mu.Unlock()

	err := c.startCapture(ctx, r)

	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		if err == nil {
			c.capture.Cleanup()
		}
		return ErrAborted
	}
	defer c.mu.Unlock()

	if err != nil {
		c.abortLocked(r)
		c.opts.Metrics.RecordRecordingFailed()
		return fmt.Errorf("start capture: %w", err)
	}

	r.startedAt = c.opts.Clock.Now()
	ticker := c.opts.Clock.NewTicker(c.config.ProgressInterval)
	timer := c.opts.Clock.NewTimer(c.config.Duration)

	c.setStateLocked(StateRecording)
	c.opts.Metrics.RecordRecordingStarted()
	c.emitProgress(r, 0)

	go c.loop(r, ticker, timer)

	c.logger.Info("Recording started",
		slog.Duration("duration", c.config.Duration),
	)
	return nil
}

// announce speaks the announcement, returning early when the run is
// cancelled. Announcement failures other than cancellation are logged and
// do not prevent recording.
func (c *Controller) announce(ctx context.Context, r *run, text string) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	err := c.opts.Announcer.Announce(actx, text)
	c.opts.Metrics.RecordAnnouncement(err == nil)
	if err != nil && ctx.Err() == nil && r.ctx.Err() == nil {
		c.logger.Warn("Announcement failed, recording anyway",
			slog.String("error", err.Error()),
		)
	}
	return err
}

// startCapture opens the capture unit, giving up when the run is aborted
func (c *Controller) startCapture(ctx context.Context, r *run) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	return c.capture.Start(sctx)
}

// Stop stops the current recording and returns its result, the same
// result delivered to OnComplete. Calling Stop when nothing is recording
// returns audio.ErrNotRecording; Stop during an announcement or while the
// capture is opening aborts the pending start.
func (c *Controller) Stop() (Result, error) {
	c.mu.Lock()
	r := c.current
	if r == nil {
		c.mu.Unlock()
		return Result{}, audio.ErrNotRecording
	}
	if c.pendingLocked() {
		c.abortLocked(r)
		c.mu.Unlock()
		return Result{}, audio.ErrNotRecording
	}
	c.mu.Unlock()

	r.requestStop(StopManual)
	<-r.done

	if r.result.Reason == stopTeardown {
		return Result{}, audio.ErrNotRecording
	}
	return r.result, r.result.Err
}

// Close cancels all timers and releases the microphone. No result is
// delivered for a recording interrupted by Close. The controller cannot
// be started again afterwards. Close must not be called from a callback.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	r := c.current
	if r != nil && c.pendingLocked() {
		c.abortLocked(r)
		r = nil
	}
	c.mu.Unlock()

	if r != nil {
		r.teardown()
		<-r.done
	}

	c.capture.Cleanup()
	c.logger.Debug("Recording controller closed")
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Progress returns the progress of the current recording in percent, or
// zero when not recording
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.state != StateRecording {
		return 0
	}
	return c.progressAt(c.current, c.opts.Clock.Now())
}

// loop owns the timers of one recording. All progress and the result of
// the recording are emitted from here.
func (c *Controller) loop(r *run, ticker Ticker, timer Timer) {
	defer close(r.done)

	var reason StopReason
	for reason == "" {
		select {
		case <-ticker.C():
			c.emitProgress(r, c.progressAt(r, c.opts.Clock.Now()))
		case <-timer.C():
			reason = StopTimeout
		case reason = <-r.stopReq:
		}
	}

	ticker.Stop()
	timer.Stop()

	if reason == stopTeardown {
		c.finishTeardown(r)
		return
	}
	c.finish(r, reason)
}

// finish finalizes the capture and delivers the result. The run stays
// current until the capture is stopped, so Start and Close wait on r.done
// rather than on the lock.
func (c *Controller) finish(r *run, reason StopReason) {
	elapsed := c.opts.Clock.Now().Sub(r.startedAt)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.StopTimeout)
	rec, err := c.capture.Stop(ctx)
	cancel()

	c.mu.Lock()
	c.current = nil
	c.setStateLocked(StateIdle)
	r.cancel()
	c.mu.Unlock()

	r.result = Result{
		Recording: rec,
		Reason:    reason,
		Elapsed:   elapsed,
		Err:       err,
	}

	if err != nil {
		c.opts.Metrics.RecordRecordingFailed()
		c.logger.Error("Failed to finalize recording",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()),
		)
	} else {
		c.opts.Metrics.RecordRecordingCompleted(rec.Duration.Seconds(), rec.Size)
		c.logger.Info("Recording stopped",
			slog.String("reason", string(reason)),
			slog.Duration("elapsed", elapsed),
			slog.Duration("audio_duration", rec.Duration),
			slog.Int("wav_bytes", rec.Size),
		)
	}

	c.emitProgress(r, 100)
	if c.opts.OnComplete != nil {
		c.opts.OnComplete(r.result)
	}
}

func (c *Controller) finishTeardown(r *run) {
	c.capture.Cleanup()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = nil
	c.setStateLocked(StateIdle)
	r.cancel()
	r.result = Result{Reason: stopTeardown, Elapsed: c.opts.Clock.Now().Sub(r.startedAt)}
	c.opts.Metrics.RecordRecordingEnded()
	c.logger.Info("Recording torn down before completion")
}

// pendingLocked reports whether the current run has not reached Recording
func (c *Controller) pendingLocked() bool {
	return c.state == StateAnnouncing || c.state == StateStarting
}

// abortLocked drops a run that never reached Recording
func (c *Controller) abortLocked(r *run) {
	r.cancel()
	if c.current == r {
		c.current = nil
	}
	c.setStateLocked(StateIdle)
	close(r.done)
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

func (c *Controller) progressAt(r *run, now time.Time) float64 {
	elapsed := now.Sub(r.startedAt)
	p := float64(elapsed) / float64(c.config.Duration) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// emitProgress reports p unless it would move progress backwards
func (c *Controller) emitProgress(r *run, p float64) {
	if p < r.lastProgress {
		return
	}
	r.lastProgress = p
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(p)
	}
}

func (r *run) requestStop(reason StopReason) {
	r.stopOnce.Do(func() { r.stopReq <- reason })
}

func (r *run) teardown() {
	r.stopOnce.Do(func() { r.stopReq <- stopTeardown })
}
