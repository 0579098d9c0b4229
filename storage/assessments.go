// Package storage persists scored assessments in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/scholar/db"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
)

// Assessment is one scored applicant.
type Assessment struct {
	ID                string             `json:"id" db:"id"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	GPA               float64            `json:"gpa" db:"gpa"`
	Income            float64            `json:"income" db:"income"`
	Achievement       float64            `json:"achievement" db:"achievement"`
	AchievementSource string             `json:"achievement_source" db:"achievement_source"`
	Financial         float64            `json:"financial" db:"financial"`
	FinancialSource   string             `json:"financial_source" db:"financial_source"`
	Score             float64            `json:"score" db:"score"`
	Tier              fuzzy.Tier         `json:"tier" db:"tier"`
	Fired             bool               `json:"fired" db:"fired"`
	Rulebook          string             `json:"rulebook" db:"rulebook"`
	RulebookVersion   string             `json:"rulebook_version,omitempty" db:"rulebook_version"`
	PhotoPath         string             `json:"photo_path,omitempty" db:"photo_path"`
	Trace             []fuzzy.RuleFiring `json:"trace" db:"trace"`
}

// Stats summarizes stored assessments.
type Stats struct {
	Total     int                `json:"total"`
	MeanScore float64            `json:"mean_score"`
	ByTier    map[fuzzy.Tier]int `json:"by_tier"`
}

// ListOptions filter List. Zero Limit means DefaultListLimit.
type ListOptions struct {
	Limit int
	Tier  fuzzy.Tier
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

// AssessmentStore reads and writes the assessments table.
type AssessmentStore struct {
	conn *sql.DB
}

// NewAssessmentStore wraps a migrated database.
func NewAssessmentStore(conn *sql.DB) *AssessmentStore {
	return &AssessmentStore{conn: conn}
}

const assessmentColumns = `id, created_at, gpa, income, achievement, achievement_source,
	financial, financial_source, score, tier, fired, rulebook, rulebook_version, photo_path, trace`

// Save inserts the assessment, assigning an ID and timestamp when unset.
func (s *AssessmentStore) Save(ctx context.Context, a *Assessment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	trace := a.Trace
	if trace == nil {
		trace = []fuzzy.RuleFiring{}
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return errors.Wrap(err, "encode rule trace")
	}

	_, err = s.conn.ExecContext(ctx, `INSERT INTO assessments (`+assessmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt, a.GPA, a.Income, a.Achievement, a.AchievementSource,
		a.Financial, a.FinancialSource, a.Score, string(a.Tier), a.Fired,
		a.Rulebook, a.RulebookVersion, a.PhotoPath, string(traceJSON),
	)
	if err != nil {
		if db.IsDatabaseClosed(err) {
			err = errors.Mark(err, db.ErrDatabaseClosed)
		}
		return errors.Wrapf(err, "insert assessment %s", a.ID)
	}
	return nil
}

// Get returns one assessment or an error wrapping errors.ErrNotFound.
func (s *AssessmentStore) Get(ctx context.Context, id string) (*Assessment, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "assessment %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get assessment %s", id)
	}
	return a, nil
}

// List returns the most recent assessments first.
func (s *AssessmentStore) List(ctx context.Context, opts ListOptions) ([]Assessment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT ` + assessmentColumns + ` FROM assessments`
	args := []any{}
	if opts.Tier != "" {
		query += ` WHERE tier = ?`
		args = append(args, string(opts.Tier))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list assessments")
	}
	defer rows.Close()

	out := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assessment")
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate assessments")
	}
	return out, nil
}

// Stats counts assessments per tier and averages their scores.
func (s *AssessmentStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tier, COUNT(*), COALESCE(SUM(score), 0) FROM assessments GROUP BY tier`)
	if err != nil {
		return nil, errors.Wrap(err, "query assessment stats")
	}
	defer rows.Close()

	stats := &Stats{ByTier: make(map[fuzzy.Tier]int, 4)}
	for _, t := range fuzzy.Tiers() {
		stats.ByTier[t] = 0
	}
	var sum float64
	for rows.Next() {
		var (
			tier    string
			count   int
			tierSum float64
		)
		if err := rows.Scan(&tier, &count, &tierSum); err != nil {
			return nil, errors.Wrap(err, "scan assessment stats")
		}
		stats.ByTier[fuzzy.Tier(tier)] = count
		stats.Total += count
		sum += tierSum
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate assessment stats")
	}
	if stats.Total > 0 {
		stats.MeanScore = sum / float64(stats.Total)
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row scanner) (*Assessment, error) {
	var (
		a         Assessment
		tier      string
		traceJSON string
	)
	err := row.Scan(&a.ID, &a.CreatedAt, &a.GPA, &a.Income, &a.Achievement, &a.AchievementSource,
		&a.Financial, &a.FinancialSource, &a.Score, &tier, &a.Fired,
		&a.Rulebook, &a.RulebookVersion, &a.PhotoPath, &traceJSON)
	if err != nil {
		return nil, err
	}
	a.Tier = fuzzy.Tier(tier)
	if err := json.Unmarshal([]byte(traceJSON), &a.Trace); err != nil {
		return nil, errors.Wrapf(err, "decode trace of %s", a.ID)
	}
	return &a, nil
}
