package imagescore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/teranos/scholar/errors"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestNeutral(t *testing.T) {
	_, err := Neutral{}.Score(context.Background(), Image{})
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.True(t, errors.IsServiceUnavailableError(err))
}

func TestClassMap_Map(t *testing.T) {
	ranges := DefaultClassMap()
	probs := DefaultClassMap()
	probs.UseRanges = false

	tests := []struct {
		name      string
		cm        ClassMap
		preds     []float64
		wantClass string
		wantScore float64
	}{
		{"simple midpoint", ranges, []float64{0.7, 0.2, 0.1}, "simple", 27.5},
		{"moderate midpoint", ranges, []float64{0.1, 0.8, 0.1}, "moderate", 68},
		{"luxury midpoint", ranges, []float64{0.05, 0.05, 0.9}, "luxury", 90.5},
		{"tie picks first", ranges, []float64{0.4, 0.4, 0.2}, "simple", 27.5},
		{"probability scaled", probs, []float64{0.12345, 0.81237, 0.06418}, "moderate", 81.24},
		{"certain", probs, []float64{0, 0, 1}, "luxury", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.cm.Map(tt.preds)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClass, p.Class)
			assert.InDelta(t, tt.wantScore, p.Score, 1e-9)
		})
	}
}

func TestClassMap_MapErrors(t *testing.T) {
	cm := DefaultClassMap()
	_, err := cm.Map([]float64{0.5, 0.5})
	assert.Error(t, err)
	_, err = cm.Map([]float64{0.5, -0.1, 0.6})
	assert.Error(t, err)
	_, err = ClassMap{}.Map(nil)
	assert.Error(t, err)
}

func TestClassMap_Validate(t *testing.T) {
	assert.NoError(t, DefaultClassMap().Validate())
	assert.Error(t, ClassMap{}.Validate())
	assert.Error(t, ClassMap{Classes: []Class{{Name: "x", Min: 50, Max: 40}}}.Validate())
	assert.Error(t, ClassMap{Classes: []Class{{Name: "x", Min: 0, Max: 140}}}.Validate())
}

func TestValidateUpload(t *testing.T) {
	img, err := ValidateUpload("house.PNG", pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, "image/png", img.ContentType())
	assert.Equal(t, "png", img.Extension())

	img, err = ValidateUpload("house.jpeg", jpegBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, "jpg", img.Extension())

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"gif extension", "house.gif", pngBytes(t)},
		{"no extension", "house", pngBytes(t)},
		{"empty", "house.png", nil},
		{"not an image", "house.jpg", []byte("definitely not a jpeg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateUpload(tt.filename, tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidImage))
			assert.NotEmpty(t, errors.GetAllHints(err))
		})
	}
}

func newTestScorer(t *testing.T, url string, retries int) *HTTPScorer {
	t.Helper()
	s, err := NewHTTPScorer(HTTPConfig{
		Endpoint:   url,
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		Classes:    DefaultClassMap(),
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	s.backoffs = []time.Duration{time.Millisecond}
	return s
}

func TestHTTPScorer_Score(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, data, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictions":[0.1,0.2,0.7]}`))
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 0)
	score, err := s.Score(context.Background(), Image{Filename: "h.png", Format: "png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, 90.5, score)
}

func TestHTTPScorer_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"predictions":[0.9,0.05,0.05]}`))
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 3)
	score, err := s.Score(context.Background(), Image{Format: "jpeg", Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, 27.5, score)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPScorer_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 2)
	_, err := s.Score(context.Background(), Image{Format: "png", Data: []byte{1}})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPScorer_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 3)
	_, err := s.Score(context.Background(), Image{Format: "png", Data: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPScorer_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"predictions":[0.5,0.5]}`))
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 0)
	_, err := s.Score(context.Background(), Image{Format: "png", Data: []byte{1}})
	assert.Error(t, err)
}

func TestHTTPScorer_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 3)
	s.backoffs = []time.Duration{time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Score(ctx, Image{Format: "png", Data: []byte{1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPScorer_RetriesTakeLimiterTokens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestScorer(t, srv.URL, 3)
	s.limiter = rate.NewLimiter(rate.Every(time.Minute), 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := s.Score(ctx, Image{Format: "png", Data: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, int32(1), calls.Load(), "a retry must wait for the next token")
}

func TestNewHTTPScorer_Validation(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()

	_, err := NewHTTPScorer(HTTPConfig{Classes: DefaultClassMap()}, log)
	assert.Error(t, err)

	_, err = NewHTTPScorer(HTTPConfig{Endpoint: "ftp://classifier/predict", Classes: DefaultClassMap()}, log)
	assert.Error(t, err)

	_, err = NewHTTPScorer(HTTPConfig{Endpoint: "http://127.0.0.1:9000/predict", BlockPrivate: true, Classes: DefaultClassMap()}, log)
	assert.Error(t, err)

	_, err = NewHTTPScorer(HTTPConfig{Endpoint: "http://127.0.0.1:9000/predict"}, log)
	assert.Error(t, err, "empty class map")
}
