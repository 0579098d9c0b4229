package server

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/teranos/scholar/achievement"
	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/internal/util"
	"github.com/teranos/scholar/logger"
)

//go:embed templates
var templateFiles embed.FS

// Values prefilled into an empty form.
const (
	defaultFormGPA         = "3.5"
	defaultFormIncome      = "3000000"
	defaultFormAchievement = "80"
	defaultFormFinancial   = "50"
)

// Achievement entry modes of the form.
const (
	modeManual      = "manual"
	modeCertificate = "certificate"
)

type pageRenderer struct {
	tmpl *template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"round2":  round2,
		"percent": func(v float64) string { return strconv.FormatFloat(v*100, 'f', 0, 64) + "%" },
	}).ParseFS(templateFiles, "templates/index.html")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page templates")
	}
	return &pageRenderer{tmpl: tmpl}, nil
}

// formValues echo the submission back into the form.
type formValues struct {
	GPA             string
	Income          string
	AchievementMode string
	Achievement     string
	Level           string
	Nomination      string
	Placement       string
	Financial       string
}

type pageData struct {
	Form        formValues
	Levels      []string
	Nominations []string
	Placements  []string
	Flash       string
	Result      *assess.Result
}

func defaultForm() formValues {
	return formValues{
		GPA:             defaultFormGPA,
		Income:          defaultFormIncome,
		AchievementMode: modeManual,
		Achievement:     defaultFormAchievement,
		Financial:       defaultFormFinancial,
	}
}

func (p *pageRenderer) render(w http.ResponseWriter, status int, data pageData) error {
	data.Levels = achievement.Options(achievement.Levels)
	data.Nominations = achievement.Options(achievement.Nominations)
	data.Placements = achievement.Options(achievement.Placements)

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "failed to render page")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// HandleIndex renders the applicant form and scores its submissions.
// Invalid input is shown as a flash message above the form.
func (s *ScholarServer) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodGet {
		s.renderPage(w, http.StatusOK, pageData{Form: defaultForm()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(s.maxBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.renderPage(w, http.StatusRequestEntityTooLarge, pageData{Form: defaultForm(), Flash: "The uploaded photo is too large."})
			return
		}
		s.renderPage(w, http.StatusBadRequest, pageData{Form: defaultForm(), Flash: "The form could not be read."})
		return
	}

	form := formValues{
		GPA:             strings.TrimSpace(r.FormValue("gpa")),
		Income:          strings.TrimSpace(r.FormValue("income")),
		AchievementMode: r.FormValue("achievement_mode"),
		Achievement:     strings.TrimSpace(r.FormValue("achievement")),
		Level:           r.FormValue("level"),
		Nomination:      r.FormValue("nomination"),
		Placement:       r.FormValue("placement"),
		Financial:       strings.TrimSpace(r.FormValue("financial")),
	}

	req, err := requestFromForm(form)
	if err == nil {
		req.Photo, err = readPhoto(r)
	}
	if err != nil {
		s.renderPage(w, http.StatusBadRequest, pageData{Form: form, Flash: errors.UserMessage(err)})
		return
	}

	res, err := s.service.Assess(r.Context(), req)
	if err != nil {
		switch {
		case errors.IsInvalidRequestError(err):
			s.renderPage(w, http.StatusBadRequest, pageData{Form: form, Flash: errors.UserMessage(err)})
		case errors.IsServiceUnavailableError(err):
			s.renderPage(w, http.StatusServiceUnavailable, pageData{Form: form, Flash: "Scoring is unavailable, no rulebook is loaded."})
		default:
			s.logger.Errorw("Failed to assess applicant", "error", err)
			s.renderPage(w, http.StatusInternalServerError, pageData{Form: form, Flash: "Something went wrong while scoring."})
		}
		return
	}

	logger.FromContext(r.Context(), s.logger).Infow("Applicant assessed",
		logger.FieldAssessmentID, shortID(res.ID),
		logger.FieldScore, round2(res.Score),
		logger.FieldTier, string(res.Tier))
	s.renderPage(w, http.StatusOK, pageData{Form: form, Result: res})
}

func (s *ScholarServer) renderPage(w http.ResponseWriter, status int, data pageData) {
	if err := s.page.render(w, status, data); err != nil {
		s.logger.Errorw("Failed to render page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func requestFromForm(f formValues) (assess.Request, error) {
	gpa, err := parseNumber(f.GPA, "GPA", true)
	if err != nil {
		return assess.Request{}, err
	}
	income, err := parseNumber(f.Income, "income", true)
	if err != nil {
		return assess.Request{}, err
	}
	req := assess.Request{GPA: *gpa, Income: *income}

	if f.AchievementMode == modeCertificate {
		req.Certificate = achievement.Certificate{Level: f.Level, Nomination: f.Nomination, Placement: f.Placement}
	} else if req.Achievement, err = parseNumber(f.Achievement, "achievement score", false); err != nil {
		return assess.Request{}, err
	}

	if req.Financial, err = parseNumber(f.Financial, "financial score", false); err != nil {
		return assess.Request{}, err
	}
	return req, nil
}

// parseNumber returns nil for an empty optional field.
func parseNumber(raw, label string, required bool) (*float64, error) {
	if raw == "" {
		if !required {
			return nil, nil
		}
		return nil, formError(errors.Newf("%s is required", label), "%s is required", label)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, formError(errors.Newf("%s %q is not a number", label, raw), "%s must be a number", label)
	}
	return &v, nil
}

func readPhoto(r *http.Request) (*assess.Upload, error) {
	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, formError(errors.Wrap(err, "read photo"), "the house photo could not be read")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, formError(errors.Wrap(err, "read photo"), "the house photo could not be read")
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &assess.Upload{Filename: header.Filename, Data: data}, nil
}

func formError(err error, hint string, args ...interface{}) error {
	return errors.Mark(errors.WithHintf(err, hint, args...), assess.ErrInvalidInput)
}

func round2(v float64) float64 { return util.Round(v, 2) }
