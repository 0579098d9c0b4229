package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/teranos/scholar/achievement"
	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/logger"
	"github.com/teranos/scholar/storage"
	"github.com/teranos/scholar/version"
)

// AssessRequest is the JSON body of POST /api/assess.
type AssessRequest struct {
	GPA    *float64 `json:"gpa"`
	Income *float64 `json:"income"`
	// Achievement overrides the certificate fields when present.
	Achievement *float64 `json:"achievement,omitempty"`
	Level       string   `json:"level,omitempty"`
	Nomination  string   `json:"nomination,omitempty"`
	Placement   string   `json:"placement,omitempty"`
	Financial   *float64 `json:"financial,omitempty"`
	Photo       *Photo   `json:"photo,omitempty"`
}

// Photo is a base64-encoded house photo.
type Photo struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

func (r AssessRequest) toRequest() (assess.Request, error) {
	if r.GPA == nil {
		return assess.Request{}, missingField("gpa")
	}
	if r.Income == nil {
		return assess.Request{}, missingField("income")
	}
	req := assess.Request{
		GPA:         *r.GPA,
		Income:      *r.Income,
		Achievement: r.Achievement,
		Certificate: achievement.Certificate{Level: r.Level, Nomination: r.Nomination, Placement: r.Placement},
		Financial:   r.Financial,
	}
	if r.Photo != nil {
		req.Photo = &assess.Upload{Filename: r.Photo.Filename, Data: r.Photo.Data}
	}
	return req, nil
}

func missingField(name string) error {
	return errors.Mark(
		errors.WithHintf(errors.Newf("%s is required", name), "%s is required", name),
		assess.ErrInvalidInput)
}

// HandleAssess scores a JSON submission.
func (s *ScholarServer) HandleAssess(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var body AssessRequest
	if err := readJSON(w, r, &body); err != nil {
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeServiceError(w, s.logger, err, "Failed to assess applicant")
		return
	}

	res, err := s.service.Assess(r.Context(), req)
	if err != nil {
		writeServiceError(w, s.logger, err, "Failed to assess applicant")
		return
	}
	logger.FromContext(r.Context(), s.logger).Infow("Applicant assessed",
		logger.FieldAssessmentID, shortID(res.ID),
		logger.FieldScore, round2(res.Score),
		logger.FieldTier, string(res.Tier))
	_ = writeJSON(w, http.StatusOK, res)
}

// HandleAssessments lists stored assessments, newest first.
// Query: limit (default 50), tier.
func (s *ScholarServer) HandleAssessments(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !s.requireHistory(w) {
		return
	}

	opts := storage.ListOptions{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		opts.Limit = n
	}
	if v := r.URL.Query().Get("tier"); v != "" {
		tier, ok := parseTier(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown tier "+strconv.Quote(v))
			return
		}
		opts.Tier = tier
	}

	list, err := s.history.List(r.Context(), opts)
	if err != nil {
		writeServiceError(w, s.logger, err, "Failed to list assessments")
		return
	}
	if list == nil {
		list = []storage.Assessment{}
	}
	_ = writeJSON(w, http.StatusOK, map[string]interface{}{
		"assessments": list,
		"count":       len(list),
	})
}

// HandleAssessment returns one stored assessment.
func (s *ScholarServer) HandleAssessment(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !s.requireHistory(w) {
		return
	}
	a, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, s.logger, err, "Failed to load assessment")
		return
	}
	_ = writeJSON(w, http.StatusOK, a)
}

// HandleAssessmentStats returns totals per tier.
func (s *ScholarServer) HandleAssessmentStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !s.requireHistory(w) {
		return
	}
	stats, err := s.history.Stats(r.Context())
	if err != nil {
		writeServiceError(w, s.logger, err, "Failed to compute statistics")
		return
	}
	_ = writeJSON(w, http.StatusOK, stats)
}

func (s *ScholarServer) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "Assessment history is disabled")
		return false
	}
	return true
}

// RulebookResponse describes the active model.
type RulebookResponse struct {
	Name       string           `json:"name"`
	Version    string           `json:"version,omitempty"`
	Source     string           `json:"source"`
	Fallback   float64          `json:"fallback"`
	Resolution float64          `json:"resolution"`
	Thresholds fuzzy.Thresholds `json:"thresholds"`
	Definition interface{}      `json:"definition"`
}

// HandleRulebook returns the active rulebook and its thresholds.
func (s *ScholarServer) HandleRulebook(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	m := s.models.Model()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "No rulebook loaded")
		return
	}
	_ = writeJSON(w, http.StatusOK, RulebookResponse{
		Name:       m.Name,
		Version:    m.Version,
		Source:     m.Source,
		Fallback:   m.Engine.Fallback(),
		Resolution: m.Engine.Resolution(),
		Thresholds: m.Thresholds,
		Definition: m.File,
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string  `json:"status"`
	State    string  `json:"state"`
	Version  string  `json:"version"`
	Commit   string  `json:"commit"`
	Rulebook string  `json:"rulebook,omitempty"`
	Uptime   float64 `json:"uptime_seconds"`
}

// HandleHealth reports liveness. It answers 503 while draining.
func (s *ScholarServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	info := version.Get()
	resp := HealthResponse{
		Status:  "ok",
		State:   s.getState().String(),
		Version: info.Version,
		Commit:  info.Short(),
		Uptime:  time.Since(s.started).Seconds(),
	}
	status := http.StatusOK
	if m := s.models.Model(); m != nil {
		resp.Rulebook = m.Name
	} else {
		resp.Status = "degraded"
	}
	if s.getState() == ServerStateDraining {
		resp.Status = "draining"
		status = http.StatusServiceUnavailable
	}
	_ = writeJSON(w, status, resp)
}

func parseTier(v string) (fuzzy.Tier, bool) {
	for _, t := range fuzzy.Tiers() {
		if string(t) == v {
			return t, true
		}
	}
	return "", false
}
