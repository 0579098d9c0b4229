package assess

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/scholar/achievement"
	"github.com/teranos/scholar/db"
	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/imagescore"
	qtest "github.com/teranos/scholar/internal/testing"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/storage"
)

func ptr(v float64) *float64 { return &v }

func photo(t *testing.T) *Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return &Upload{Filename: "house.PNG", Data: buf.Bytes()}
}

type fakeStore struct {
	saved []*storage.Assessment
	err   error
}

func (f *fakeStore) Save(_ context.Context, a *storage.Assessment) error {
	if f.err != nil {
		return f.err
	}
	a.ID = "fake-id"
	f.saved = append(f.saved, a)
	return nil
}

func newService(t *testing.T, opts Options) (*Service, *Metrics) {
	t.Helper()
	if opts.Models == nil {
		opts.Models = rulebook.NewHolder(rulebook.DefaultModel())
	}
	opts.Logger = zaptest.NewLogger(t).Sugar()
	opts.Metrics = NewMetrics(prometheus.NewRegistry())
	s, err := NewService(opts)
	require.NoError(t, err)
	return s, opts.Metrics
}

func TestAssess_ManualInputs(t *testing.T) {
	store := &fakeStore{}
	s, m := newService(t, Options{Store: store})

	res, err := s.Assess(context.Background(), Request{
		GPA: 4, Income: 0, Achievement: ptr(100), Financial: ptr(0),
	})
	require.NoError(t, err)
	assert.InDelta(t, 93.333333, res.Score, 1e-5)
	assert.Equal(t, fuzzy.TierVeryHigh, res.Tier)
	assert.NotEmpty(t, res.Label)
	assert.True(t, res.Fired)
	assert.Equal(t, achievement.SourceManual, res.AchievementSource)
	assert.Equal(t, FinancialManual, res.FinancialSource)
	assert.Equal(t, "scholarship", res.Rulebook)
	assert.NotEmpty(t, res.Rules)
	assert.Contains(t, res.Degrees, fuzzy.VarGPA)

	assert.True(t, res.Saved)
	assert.Equal(t, "fake-id", res.ID)
	require.Len(t, store.saved, 1)
	assert.Equal(t, res.Score, store.saved[0].Score)
	assert.Equal(t, res.Rules, store.saved[0].Trace)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Assessments.WithLabelValues(string(fuzzy.TierVeryHigh))))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Scores))
}

func TestAssess_Defaults(t *testing.T) {
	s, m := newService(t, Options{})

	res, err := s.Assess(context.Background(), Request{GPA: 3.2, Income: 6_000_000})
	require.NoError(t, err)
	assert.Equal(t, achievement.DefaultScore, res.Achievement)
	assert.Equal(t, achievement.SourceDefault, res.AchievementSource)
	assert.Equal(t, DefaultFinancialScore, res.Financial)
	assert.Equal(t, FinancialDefault, res.FinancialSource)
	assert.False(t, res.Saved)
	assert.Empty(t, res.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues(fuzzy.VarAchievement)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues(fuzzy.VarFinancial)))
}

func TestAssess_Certificates(t *testing.T) {
	s, _ := newService(t, Options{})

	res, err := s.Assess(context.Background(), Request{
		GPA: 3.5, Income: 3_000_000,
		Certificate: achievement.Certificate{Level: "national", Nomination: "nominee", Placement: "1"},
	})
	require.NoError(t, err)
	assert.InDelta(t, (80.0+75+95)/3, res.Achievement, 1e-9)
	assert.Equal(t, achievement.SourceCertificates, res.AchievementSource)
}

func TestAssess_ManualAchievementOverridesCertificate(t *testing.T) {
	s, _ := newService(t, Options{})

	res, err := s.Assess(context.Background(), Request{
		GPA: 3.5, Income: 3_000_000, Achievement: ptr(10),
		Certificate: achievement.Certificate{Level: "international"},
	})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Achievement)
	assert.Equal(t, achievement.SourceManual, res.AchievementSource)
}

func TestAssess_PhotoScored(t *testing.T) {
	dir := t.TempDir()
	var got imagescore.Image
	scorer := imagescore.Func(func(_ context.Context, img imagescore.Image) (float64, error) {
		got = img
		return 0, nil
	})
	s, _ := newService(t, Options{Scorer: scorer, UploadDir: dir})

	res, err := s.Assess(context.Background(), Request{
		GPA: 4, Income: 0, Achievement: ptr(100), Financial: ptr(100), Photo: photo(t),
	})
	require.NoError(t, err)
	assert.Equal(t, "png", got.Format)
	assert.Equal(t, 0.0, res.Financial)
	assert.Equal(t, FinancialImage, res.FinancialSource)
	assert.InDelta(t, 93.333333, res.Score, 1e-5)

	require.NotEmpty(t, res.PhotoPath)
	assert.Equal(t, dir, filepath.Dir(res.PhotoPath))
	assert.Equal(t, ".png", filepath.Ext(res.PhotoPath))
	assert.NotContains(t, res.PhotoPath, "house")
	data, err := os.ReadFile(res.PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, photo(t).Data, data)
}

func TestAssess_ScorerFailureFallsBack(t *testing.T) {
	failing := imagescore.Func(func(context.Context, imagescore.Image) (float64, error) {
		return 0, errors.New("connection refused")
	})

	t.Run("to manual", func(t *testing.T) {
		s, m := newService(t, Options{Scorer: failing})
		res, err := s.Assess(context.Background(), Request{
			GPA: 3.5, Income: 3_000_000, Financial: ptr(30), Photo: photo(t),
		})
		require.NoError(t, err)
		assert.Equal(t, 30.0, res.Financial)
		assert.Equal(t, FinancialManual, res.FinancialSource)
		assert.Contains(t, res.ScorerError, "connection refused")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ScorerFailures))
	})

	t.Run("to default", func(t *testing.T) {
		s, m := newService(t, Options{Scorer: failing})
		res, err := s.Assess(context.Background(), Request{
			GPA: 3.5, Income: 3_000_000, Photo: photo(t),
		})
		require.NoError(t, err)
		assert.Equal(t, DefaultFinancialScore, res.Financial)
		assert.Equal(t, FinancialDefault, res.FinancialSource)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues(fuzzy.VarFinancial)))
	})

	t.Run("out of range score", func(t *testing.T) {
		bogus := imagescore.Func(func(context.Context, imagescore.Image) (float64, error) {
			return 140, nil
		})
		s, m := newService(t, Options{Scorer: bogus})
		res, err := s.Assess(context.Background(), Request{
			GPA: 3.5, Income: 3_000_000, Financial: ptr(70), Photo: photo(t),
		})
		require.NoError(t, err)
		assert.Equal(t, FinancialManual, res.FinancialSource)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.ScorerFailures))
	})
}

func TestAssess_NoScorerConfigured(t *testing.T) {
	s, m := newService(t, Options{})

	res, err := s.Assess(context.Background(), Request{
		GPA: 3.5, Income: 3_000_000, Financial: ptr(40), Photo: photo(t),
	})
	require.NoError(t, err)
	assert.Equal(t, FinancialManual, res.FinancialSource)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ScorerFailures))
}

func TestAssess_IncomeClamped(t *testing.T) {
	s, _ := newService(t, Options{})
	ceiling := rulebook.DefaultModel().IncomeCeiling()

	res, err := s.Assess(context.Background(), Request{GPA: 3, Income: ceiling * 10})
	require.NoError(t, err)
	assert.True(t, res.IncomeClamped)
	assert.Equal(t, ceiling, res.Income)

	res, err = s.Assess(context.Background(), Request{GPA: 3, Income: ceiling})
	require.NoError(t, err)
	assert.False(t, res.IncomeClamped)
}

func TestAssess_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		hint string
	}{
		{"gpa above range", Request{GPA: 4.5, Income: 1}, "GPA"},
		{"gpa below range", Request{GPA: -0.1, Income: 1}, "GPA"},
		{"gpa NaN", Request{GPA: math.NaN(), Income: 1}, "GPA"},
		{"negative income", Request{GPA: 3, Income: -1}, "income"},
		{"infinite income", Request{GPA: 3, Income: math.Inf(1)}, "income"},
		{"achievement above 100", Request{GPA: 3, Income: 1, Achievement: ptr(101)}, "achievement"},
		{"unknown certificate level", Request{GPA: 3, Income: 1, Certificate: achievement.Certificate{Level: "galactic"}}, "level"},
		{"financial below 0", Request{GPA: 3, Income: 1, Financial: ptr(-5)}, "financial"},
		{"photo wrong extension", Request{GPA: 3, Income: 1, Photo: &Upload{Filename: "house.gif", Data: []byte("GIF89a")}}, ""},
		{"photo not an image", Request{GPA: 3, Income: 1, Photo: &Upload{Filename: "house.png", Data: []byte("hello")}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			s, m := newService(t, Options{Store: store})

			_, err := s.Assess(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.NotEmpty(t, errors.GetAllHints(err))
			if tt.hint != "" {
				assert.Contains(t, errors.UserMessage(err), tt.hint)
			}
			assert.Empty(t, store.saved)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected))
		})
	}
}

func TestAssess_StoreFailureIsNotFatal(t *testing.T) {
	s, m := newService(t, Options{Store: &fakeStore{err: errors.New("database is locked")}})

	res, err := s.Assess(context.Background(), Request{GPA: 3.5, Income: 3_000_000})
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Empty(t, res.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFailures))
}

func TestAssess_StoreClosedDuringShutdown(t *testing.T) {
	closed := errors.Mark(errors.New("sql: database is closed"), db.ErrDatabaseClosed)
	s, m := newService(t, Options{Store: &fakeStore{err: closed}})

	res, err := s.Assess(context.Background(), Request{GPA: 3.5, Income: 3_000_000})
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFailures))
}

func TestAssess_PersistsToSQLite(t *testing.T) {
	store := storage.NewAssessmentStore(qtest.CreateTestDB(t))
	s, _ := newService(t, Options{Store: store})
	ctx := context.Background()

	res, err := s.Assess(ctx, Request{GPA: 2, Income: 15_000_000, Achievement: ptr(30), Financial: ptr(100)})
	require.NoError(t, err)
	require.True(t, res.Saved)

	got, err := store.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.InDelta(t, 16.666667, got.Score, 1e-5)
	assert.Equal(t, fuzzy.TierLow, got.Tier)
	assert.Equal(t, "manual", got.FinancialSource)
	assert.Len(t, got.Trace, len(res.Rules))
}

func TestAssess_UsesSwappedModel(t *testing.T) {
	holder := rulebook.NewHolder(rulebook.DefaultModel())
	s, _ := newService(t, Options{Models: holder})

	f := rulebook.Default()
	f.Version = "2"
	m, err := rulebook.Build(f, rulebook.DefaultSettings(), "test")
	require.NoError(t, err)
	holder.Swap(m)

	res, err := s.Assess(context.Background(), Request{GPA: 3, Income: 1})
	require.NoError(t, err)
	assert.Equal(t, "2", res.RulebookVersion)
}

func TestAssess_NoModel(t *testing.T) {
	s, _ := newService(t, Options{Models: rulebook.NewHolder(nil)})

	_, err := s.Assess(context.Background(), Request{GPA: 3, Income: 1})
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestNewService_RequiresModels(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
}
