package testutil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/audio"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/models"
	"github.com/Alvinotuya84/parliament-voting-booth/internal/realtime"
)

// Backend is an in-memory parliament API. Cast votes are accepted when the
// payload is a valid WAV recording; the vote choice is whatever SetNextVote
// configured.
type Backend struct {
	router chi.Router
	hub    *Hub
	logger *slog.Logger

	members      []models.Member
	motions      []*models.Motion
	votes        []models.Vote
	voicePrints  map[string]string
	nextChoice   models.Choice
	verification models.Verification
	omitTotal    bool
	token        string
	failures     map[string][]injectedFailure
	requests     map[string]int
	lastHeaders  http.Header

	mu sync.Mutex
}

type injectedFailure struct {
	status  int
	message string
}

// NewBackend creates an empty backend
func NewBackend(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backend{
		hub:         NewHub(logger),
		logger:      logger,
		voicePrints: make(map[string]string),
		nextChoice:  models.ChoiceYes,
		verification: models.Verification{
			Similarity: 0.92,
			Confidence: 0.87,
			Text:       "I vote yes",
		},
		failures: make(map[string][]injectedFailure),
		requests: make(map[string]int),
	}
	b.router = b.routes()
	return b
}

func (b *Backend) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.track)

	r.Get("/ws", b.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(b.authenticate)
		r.Use(b.inject)

		r.Route("/members", func(r chi.Router) {
			r.Get("/", b.listMembers)
			r.Post("/", b.createMember)
			r.Get("/{id}", b.getMember)
			r.Post("/{id}/voice-print", b.uploadVoicePrint)
		})

		r.Route("/motions", func(r chi.Router) {
			r.Get("/", b.listMotions)
			r.Post("/", b.createMotion)
			r.Get("/active/all", b.listActiveMotions)
			r.Get("/{id}", b.getMotion)
			r.Put("/{id}/status", b.updateMotionStatus)
		})

		r.Route("/voting", func(r chi.Router) {
			r.Post("/cast-vote", b.castVote)
			r.Get("/statistics/{motionId}", b.statistics)
		})
	})

	return r
}

// Handler returns the HTTP handler serving the API and the /ws endpoint
func (b *Backend) Handler() http.Handler {
	return b.router
}

// Hub returns the backend's WebSocket hub
func (b *Backend) Hub() *Hub {
	return b.hub
}

// RequireToken makes every API route demand the bearer token
func (b *Backend) RequireToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// AddMember registers a member directly
func (b *Backend) AddMember(name, constituency, role string) models.Member {
	b.mu.Lock()
	defer b.mu.Unlock()

	member := models.Member{
		ID:           uuid.NewString(),
		Name:         name,
		Constituency: constituency,
		Role:         role,
		IsActive:     true,
	}
	b.members = append(b.members, member)
	return member
}

// AddMotion creates a motion directly
func (b *Backend) AddMotion(title, proposedBy string, status models.MotionStatus) models.Motion {
	b.mu.Lock()
	defer b.mu.Unlock()

	motion := &models.Motion{
		ID:           uuid.NewString(),
		Title:        title,
		ProposedBy:   proposedBy,
		DateProposed: time.Now().UTC().Truncate(time.Second),
		Status:       status,
	}
	b.motions = append(b.motions, motion)
	return *motion
}

// SetNextVote sets the choice assigned to subsequent cast votes
func (b *Backend) SetNextVote(choice models.Choice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextChoice = choice
}

// SetVerification sets the verification returned with cast votes
func (b *Backend) SetVerification(v models.Verification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verification = v
}

// OmitTotalMembers drops totalMembers from statistics responses
func (b *Backend) OmitTotalMembers(omit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.omitTotal = omit
}

// FailNext makes the next request to method and path fail with status
// and message. Calls queue up.
func (b *Backend) FailNext(method, path string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + path
	b.failures[key] = append(b.failures[key], injectedFailure{status: status, message: message})
}

// Requests returns how many requests reached method and path
func (b *Backend) Requests(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[method+" "+path]
}

// LastHeader returns a header of the most recent API request
func (b *Backend) LastHeader(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastHeaders.Get(name)
}

// Motion returns a motion by id
func (b *Backend) Motion(id string) (models.Motion, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.findMotionLocked(id); m != nil {
		return *m, true
	}
	return models.Motion{}, false
}

// Votes returns the votes cast on a motion
func (b *Backend) Votes(motionID string) []models.Vote {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Vote
	for _, v := range b.votes {
		if v.MotionID == motionID {
			out = append(out, v)
		}
	}
	return out
}

// VoicePrint returns the stored voice print of a member
func (b *Backend) VoicePrint(memberID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voicePrints[memberID]
}

// Statistics computes the statistics of a motion
func (b *Backend) Statistics(motionID string) models.VoteStatistics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statisticsLocked(motionID)
}

func (b *Backend) statisticsLocked(motionID string) models.VoteStatistics {
	stats := models.VoteStatistics{ByConstituency: make(map[string]models.ConstituencyTally)}

	constituency := make(map[string]string, len(b.members))
	for _, m := range b.members {
		constituency[m.ID] = m.Constituency
	}

	for _, v := range b.votes {
		if v.MotionID != motionID {
			continue
		}
		stats.Total++
		tally := stats.ByConstituency[constituency[v.MemberID]]
		if v.Vote == models.ChoiceYes {
			stats.Yes++
			tally.Yes++
		} else {
			stats.No++
			tally.No++
		}
		stats.ByConstituency[constituency[v.MemberID]] = tally
	}

	if !b.omitTotal {
		total := len(b.members)
		stats.TotalMembers = &total
	}
	return stats
}

// Middleware

func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests[r.Method+" "+strings.TrimSuffix(r.URL.Path, "/")]++
		b.lastHeaders = r.Header.Clone()
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		token := b.token
		b.mu.Unlock()

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimSuffix(r.URL.Path, "/")

		b.mu.Lock()
		queue := b.failures[key]
		var failure *injectedFailure
		if len(queue) > 0 {
			failure = &queue[0]
			b.failures[key] = queue[1:]
		}
		b.mu.Unlock()

		if failure != nil {
			writeError(w, failure.status, failure.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Members

func (b *Backend) listMembers(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	members := append([]models.Member{}, b.members...)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, members)
}

func (b *Backend) getMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, m := range b.members {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Member not found")
}

func (b *Backend) createMember(w http.ResponseWriter, r *http.Request) {
	var req models.NewMember
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Constituency == "" {
		writeError(w, http.StatusBadRequest, "name and constituency are required")
		return
	}

	member := b.AddMember(req.Name, req.Constituency, req.Role)
	writeJSON(w, http.StatusCreated, member)
}

func (b *Backend) uploadVoicePrint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		VoicePrint string `json:"voicePrint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validRecording(req.VoicePrint) {
		writeError(w, http.StatusBadRequest, "Invalid voice print")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasMemberLocked(id) {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	b.voicePrints[id] = req.VoicePrint
	writeJSON(w, http.StatusCreated, map[string]string{"memberId": id, "status": "saved"})
}

// Motions

func (b *Backend) listMotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.filterMotions(""))
}

func (b *Backend) listActiveMotions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, b.filterMotions(models.MotionActive))
}

func (b *Backend) filterMotions(status models.MotionStatus) []models.Motion {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []models.Motion{}
	for _, m := range b.motions {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
	}
	return out
}

func (b *Backend) getMotion(w http.ResponseWriter, r *http.Request) {
	motion, ok := b.Motion(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Motion not found")
		return
	}
	writeJSON(w, http.StatusOK, motion)
}

func (b *Backend) createMotion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		models.NewMotion
		Status       models.MotionStatus `json:"status"`
		DateProposed time.Time           `json:"dateProposed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" || req.ProposedBy == "" {
		writeError(w, http.StatusBadRequest, "title and proposedBy are required")
		return
	}
	if req.Status == "" {
		req.Status = models.MotionPending
	}

	motion := b.AddMotion(req.Title, req.ProposedBy, req.Status)

	b.mu.Lock()
	stored := b.findMotionLocked(motion.ID)
	stored.Description = req.Description
	if !req.DateProposed.IsZero() {
		stored.DateProposed = req.DateProposed
	}
	motion = *stored
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, motion)
}

func (b *Backend) updateMotionStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.MotionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	motion := b.findMotionLocked(chi.URLParam(r, "id"))
	if motion == nil {
		writeError(w, http.StatusNotFound, "Motion not found")
		return
	}
	if motion.Status == models.MotionCompleted && req.Status != models.MotionCompleted {
		writeError(w, http.StatusBadRequest, "Motion is already completed")
		return
	}
	motion.Status = req.Status
	writeJSON(w, http.StatusOK, *motion)
}

// Voting

func (b *Backend) castVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoiceData string `json:"voiceData"`
		MotionID  string `json:"motionId"`
		MemberID  string `json:"memberId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.VoiceData == "" || req.MotionID == "" || req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "voiceData, motionId and memberId are required")
		return
	}
	if !validRecording(req.VoiceData) {
		writeError(w, http.StatusBadRequest, "Invalid voice recording")
		return
	}

	b.mu.Lock()
	motion := b.findMotionLocked(req.MotionID)
	switch {
	case motion == nil:
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "Motion not found")
		return
	case !b.hasMemberLocked(req.MemberID):
		b.mu.Unlock()
		writeError(w, http.StatusNotFound, "Member not found")
		return
	case motion.Status != models.MotionActive:
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Voting is not active for this motion")
		return
	case b.hasVotedLocked(req.MotionID, req.MemberID):
		b.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Member has already voted on this motion")
		return
	}

	vote := models.Vote{
		ID:        uuid.NewString(),
		MemberID:  req.MemberID,
		MotionID:  req.MotionID,
		Vote:      b.nextChoice,
		Timestamp: time.Now().UTC(),
	}
	b.votes = append(b.votes, vote)
	verification := b.verification
	stats := b.statisticsLocked(req.MotionID)
	b.mu.Unlock()

	b.logger.Debug("Vote accepted",
		slog.String("motion_id", vote.MotionID),
		slog.String("member_id", vote.MemberID),
		slog.String("vote", string(vote.Vote)),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"vote":         vote,
		"verification": verification,
	})

	b.hub.Broadcast(req.MotionID, realtime.EventVoteUpdate, realtime.VoteUpdate{
		MotionID:   req.MotionID,
		Vote:       &vote,
		Statistics: &stats,
	})
	b.hub.Broadcast(req.MotionID, realtime.EventVoteComplete, req.MemberID)
}

func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) {
	motionID := chi.URLParam(r, "motionId")
	if _, ok := b.Motion(motionID); !ok {
		writeError(w, http.StatusNotFound, "Motion not found")
		return
	}
	writeJSON(w, http.StatusOK, b.Statistics(motionID))
}

// Helpers

func (b *Backend) findMotionLocked(id string) *models.Motion {
	for _, m := range b.motions {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (b *Backend) hasMemberLocked(id string) bool {
	for _, m := range b.members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (b *Backend) hasVotedLocked(motionID, memberID string) bool {
	for _, v := range b.votes {
		if v.MotionID == motionID && v.MemberID == memberID {
			return true
		}
	}
	return false
}

func validRecording(payload string) bool {
	wav, err := audio.DecodePayload(payload)
	if err != nil {
		return false
	}
	return audio.ValidateWAV(wav) == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"statusCode": status,
		"message":    message,
		"error":      http.StatusText(status),
	})
}

// String describes the backend contents, handy in test failure output
func (b *Backend) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("backend{members=%d motions=%d votes=%d}", len(b.members), len(b.motions), len(b.votes))
}
