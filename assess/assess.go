// Package assess turns an applicant's raw submission into a scored,
// classified and optionally stored assessment.
//
// It resolves the achievement and financial indicators (manual entry,
// certificates, house photo, neutral default), validates every input
// against the active rulebook's domains and runs inference.
package assess

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/scholar/achievement"
	"github.com/teranos/scholar/db"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/imagescore"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/storage"
)

// ErrInvalidInput marks applicant input that failed validation. The
// user-facing reason is attached as a hint.
var ErrInvalidInput = errors.Mark(errors.New("invalid applicant input"), errors.ErrInvalidRequest)

// DefaultFinancialScore is used when neither a photo score nor a manual
// financial score is available.
const DefaultFinancialScore = 50.0

// Financial score sources.
const (
	FinancialImage   = "image"
	FinancialManual  = "manual"
	FinancialDefault = "default"
)

// Upload is a house photo as received from the client.
type Upload struct {
	Filename string
	Data     []byte
}

// Request is one applicant submission.
type Request struct {
	GPA    float64
	Income float64
	// Achievement is a manual achievement score; it overrides Certificate.
	Achievement *float64
	Certificate achievement.Certificate
	// Financial is a manual financial score, used when no photo scores.
	Financial *float64
	Photo     *Upload
}

// Result is a scored applicant.
type Result struct {
	ID                string             `json:"id,omitempty"`
	Score             float64            `json:"score"`
	Tier              fuzzy.Tier         `json:"tier"`
	Label             string             `json:"label"`
	Fired             bool               `json:"fired"`
	GPA               float64            `json:"gpa"`
	Income            float64            `json:"income"`
	IncomeClamped     bool               `json:"income_clamped,omitempty"`
	Achievement       float64            `json:"achievement"`
	AchievementSource achievement.Source `json:"achievement_source"`
	Financial         float64            `json:"financial"`
	FinancialSource   string             `json:"financial_source"`
	ScorerError       string             `json:"scorer_error,omitempty"`
	PhotoPath         string             `json:"photo_path,omitempty"`
	Rules             []fuzzy.RuleFiring `json:"rules"`
	Terms             map[string]float64 `json:"terms"`
	Degrees           fuzzy.Degrees      `json:"degrees"`
	Rulebook          string             `json:"rulebook"`
	RulebookVersion   string             `json:"rulebook_version,omitempty"`
	Saved             bool               `json:"saved"`
}

// ModelSource yields the active model for each request.
type ModelSource interface {
	Model() *rulebook.Model
}

// Store persists assessments.
type Store interface {
	Save(ctx context.Context, a *storage.Assessment) error
}

// Options wire a Service. Models is required; the rest are optional.
type Options struct {
	Models    ModelSource
	Scorer    imagescore.Scorer
	Store     Store
	UploadDir string
	Logger    *zap.SugaredLogger
	Metrics   *Metrics
}

// Service scores applicants. It is safe for concurrent use.
type Service struct {
	models    ModelSource
	scorer    imagescore.Scorer
	store     Store
	uploadDir string
	logger    *zap.SugaredLogger
	metrics   *Metrics
}

// NewService fills defaults: a Neutral scorer, a no-op logger and
// unregistered metrics.
func NewService(opts Options) (*Service, error) {
	if opts.Models == nil {
		return nil, errors.New("assess: a model source is required")
	}
	s := &Service{
		models:    opts.Models,
		scorer:    opts.Scorer,
		store:     opts.Store,
		uploadDir: opts.UploadDir,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.scorer == nil {
		s.scorer = imagescore.Neutral{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s, nil
}

// Assess validates and scores one submission. Validation failures wrap
// ErrInvalidInput. Scorer, archive and store failures are logged and never
// fail the request.
func (s *Service) Assess(ctx context.Context, req Request) (*Result, error) {
	res, err := s.assess(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			s.metrics.Rejected.Inc()
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) assess(ctx context.Context, req Request) (*Result, error) {
	model := s.models.Model()
	if model == nil {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "no rulebook loaded")
	}
	engine := model.Engine

	if err := checkRange(engine, fuzzy.VarGPA, req.GPA, "GPA"); err != nil {
		return nil, err
	}
	income, clamped, err := clampIncome(engine, req.Income)
	if err != nil {
		return nil, err
	}

	ach, achSource, err := achievement.Resolve(req.Achievement, req.Certificate)
	if err != nil {
		return nil, invalid(err)
	}
	if achSource == achievement.SourceDefault {
		s.metrics.Fallbacks.WithLabelValues(fuzzy.VarAchievement).Inc()
	}

	var img *imagescore.Image
	if req.Photo != nil && len(req.Photo.Data) > 0 {
		v, err := imagescore.ValidateUpload(req.Photo.Filename, req.Photo.Data)
		if err != nil {
			return nil, invalid(err)
		}
		img = &v
	}
	if req.Financial != nil {
		if err := checkRange(engine, fuzzy.VarFinancial, *req.Financial, "financial score"); err != nil {
			return nil, err
		}
	}

	res := &Result{
		GPA:               req.GPA,
		Income:            income,
		IncomeClamped:     clamped,
		Achievement:       ach,
		AchievementSource: achSource,
		Rulebook:          model.Name,
		RulebookVersion:   model.Version,
	}
	res.Financial, res.FinancialSource = s.resolveFinancial(ctx, img, req.Financial, res)

	if img != nil && s.uploadDir != "" {
		path, err := s.archive(*img)
		if err != nil {
			s.logger.Warnw("Failed to archive house photo", "error", err)
		} else {
			res.PhotoPath = path
		}
	}

	out, err := model.Evaluate(res.GPA, res.Income, res.Achievement, res.Financial)
	if err != nil {
		return nil, invalid(err)
	}
	res.Score = out.Score
	res.Tier = out.Tier
	res.Label = out.Label
	res.Fired = out.Fired
	res.Rules = out.Rules
	res.Terms = out.Terms
	res.Degrees = out.Degrees

	s.metrics.Assessments.WithLabelValues(string(res.Tier)).Inc()
	s.metrics.Scores.Observe(res.Score)
	if !res.Fired {
		s.logger.Infow("No rule fired, using fallback score",
			"gpa", res.GPA, "income", res.Income,
			"achievement", res.Achievement, "financial", res.Financial,
			"score", res.Score)
	}

	s.save(ctx, res)

	s.logger.Debugw("Applicant assessed",
		"id", res.ID,
		"score", res.Score,
		"tier", res.Tier,
		"achievement_source", res.AchievementSource,
		"financial_source", res.FinancialSource)
	return res, nil
}

// resolveFinancial tries the photo, then the manual score, then the default.
func (s *Service) resolveFinancial(ctx context.Context, img *imagescore.Image, manual *float64, res *Result) (float64, string) {
	if img != nil {
		score, err := s.scorer.Score(ctx, *img)
		switch {
		case err == nil && score >= 0 && score <= 100:
			return score, FinancialImage
		case err == nil:
			err = errors.Newf("scorer %s returned %g outside [0, 100]", s.scorer.Name(), score)
			fallthrough
		default:
			res.ScorerError = err.Error()
			if errors.Is(err, imagescore.ErrUnavailable) {
				s.logger.Debugw("No image scorer configured, ignoring photo")
			} else {
				s.metrics.ScorerFailures.Inc()
				s.logger.Warnw("House photo scoring failed, falling back",
					"scorer", s.scorer.Name(),
					"error", err)
			}
		}
	}
	if manual != nil {
		return *manual, FinancialManual
	}
	s.metrics.Fallbacks.WithLabelValues(fuzzy.VarFinancial).Inc()
	return DefaultFinancialScore, FinancialDefault
}

// archive writes the photo under a generated name; the client filename is
// never used on disk.
func (s *Service) archive(img imagescore.Image) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create upload dir %s", s.uploadDir)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+"."+img.Extension())
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

func (s *Service) save(ctx context.Context, res *Result) {
	if s.store == nil {
		return
	}
	rec := &storage.Assessment{
		CreatedAt:         time.Now().UTC(),
		GPA:               res.GPA,
		Income:            res.Income,
		Achievement:       res.Achievement,
		AchievementSource: string(res.AchievementSource),
		Financial:         res.Financial,
		FinancialSource:   res.FinancialSource,
		Score:             res.Score,
		Tier:              res.Tier,
		Fired:             res.Fired,
		Rulebook:          res.Rulebook,
		RulebookVersion:   res.RulebookVersion,
		PhotoPath:         res.PhotoPath,
		Trace:             res.Rules,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.metrics.StoreFailures.Inc()
		if errors.Is(err, db.ErrDatabaseClosed) {
			s.logger.Warnw("Assessment not stored, database already closed", "error", err)
			return
		}
		s.logger.Errorw("Failed to store assessment", "error", err)
		return
	}
	res.ID = rec.ID
	res.Saved = true
}

func checkRange(e *fuzzy.Engine, variable string, x float64, label string) error {
	v, ok := e.Input(variable)
	if !ok {
		return errors.Newf("rulebook has no %s variable", variable)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || x < v.Min || x > v.Max {
		return invalid(errors.WithHintf(
			errors.Newf("%s %g outside [%g, %g]", label, x, v.Min, v.Max),
			"%s must be a number between %g and %g", label, v.Min, v.Max))
	}
	return nil
}

// clampIncome rejects negative income and caps it at the domain ceiling.
func clampIncome(e *fuzzy.Engine, income float64) (float64, bool, error) {
	v, ok := e.Input(fuzzy.VarIncome)
	if !ok {
		return 0, false, errors.New("rulebook has no income variable")
	}
	if math.IsNaN(income) || math.IsInf(income, 0) || income < v.Min {
		return 0, false, invalid(errors.WithHintf(
			errors.Newf("income %g below %g", income, v.Min),
			"income must be a number of at least %g", v.Min))
	}
	if income > v.Max {
		return v.Max, true, nil
	}
	return income, false, nil
}

func invalid(err error) error {
	return errors.Mark(err, ErrInvalidInput)
}
