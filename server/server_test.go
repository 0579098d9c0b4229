package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/scholar/assess"
	"github.com/teranos/scholar/fuzzy"
	"github.com/teranos/scholar/imagescore"
	qtest "github.com/teranos/scholar/internal/testing"
	"github.com/teranos/scholar/internal/util"
	"github.com/teranos/scholar/rulebook"
	"github.com/teranos/scholar/storage"
)

type testServer struct {
	*ScholarServer
	handler http.Handler
	models  *rulebook.Holder
}

func newTestServer(t *testing.T, opts Options, scorer imagescore.Scorer) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	reg := prometheus.NewRegistry()

	models := rulebook.NewHolder(rulebook.DefaultModel())
	var store assess.Store
	if h, ok := opts.History.(*storage.AssessmentStore); ok {
		store = h
	}
	svc, err := assess.NewService(assess.Options{
		Models:    models,
		Scorer:    scorer,
		Store:     store,
		UploadDir: t.TempDir(),
		Logger:    logger,
		Metrics:   assess.NewMetrics(reg),
	})
	require.NoError(t, err)

	opts.Service = svc
	opts.Models = models
	opts.Gatherer = reg
	opts.Logger = logger
	srv, err := New(opts)
	require.NoError(t, err)
	return &testServer{ScholarServer: srv, handler: srv.Handler(), models: models}
}

func withHistory(t *testing.T) Options {
	return Options{History: storage.NewAssessmentStore(qtest.CreateTestDB(t))}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestNew_RequiresServiceAndModels(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHandleAssess(t *testing.T) {
	ts := newTestServer(t, withHistory(t), nil)

	rec := ts.postJSON(t, "/api/assess", `{"gpa": 4, "income": 0, "achievement": 100, "financial": 0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res assess.Result
	decode(t, rec, &res)
	assert.InDelta(t, 93.333333, res.Score, 1e-5)
	assert.Equal(t, fuzzy.TierVeryHigh, res.Tier)
	assert.True(t, res.Saved)
	assert.NotEmpty(t, res.ID)
	assert.NotEmpty(t, res.Rules)
}

func TestHandleAssess_Certificates(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := ts.postJSON(t, "/api/assess", `{"gpa": 3, "income": 2000000, "level": "national", "nomination": "nominee", "placement": "1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res assess.Result
	decode(t, rec, &res)
	assert.InDelta(t, (80.0+75+95)/3, res.Achievement, 1e-9)
	assert.False(t, res.Saved)
}

func TestHandleAssess_Photo(t *testing.T) {
	scorer := imagescore.Func(func(context.Context, imagescore.Image) (float64, error) { return 12, nil })
	ts := newTestServer(t, Options{}, scorer)

	body, err := json.Marshal(AssessRequest{
		GPA:    util.Ptr(3.5),
		Income: util.Ptr(3_000_000.0),
		Photo:  &Photo{Filename: "house.png", Data: pngBytes(t)},
	})
	require.NoError(t, err)
	rec := ts.postJSON(t, "/api/assess", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res assess.Result
	decode(t, rec, &res)
	assert.Equal(t, 12.0, res.Financial)
	assert.Equal(t, assess.FinancialImage, res.FinancialSource)
	assert.NotEmpty(t, res.PhotoPath)
}

func TestHandleAssess_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		status int
		want   string
	}{
		{"missing gpa", http.MethodPost, `{"income": 1}`, http.StatusBadRequest, "gpa is required"},
		{"missing income", http.MethodPost, `{"gpa": 3}`, http.StatusBadRequest, "income is required"},
		{"gpa out of range", http.MethodPost, `{"gpa": 5, "income": 1}`, http.StatusBadRequest, "GPA must be a number between 0 and 4"},
		{"negative income", http.MethodPost, `{"gpa": 3, "income": -1}`, http.StatusBadRequest, "income must be"},
		{"unknown level", http.MethodPost, `{"gpa": 3, "income": 1, "level": "galactic"}`, http.StatusBadRequest, "level must be one of"},
		{"unknown field", http.MethodPost, `{"gpa": 3, "income": 1, "zodiac": "leo"}`, http.StatusBadRequest, "Invalid request body"},
		{"not json", http.MethodPost, `gpa=3`, http.StatusBadRequest, "Invalid request body"},
		{"wrong method", http.MethodGet, ``, http.StatusMethodNotAllowed, "Method not allowed"},
	}

	ts := newTestServer(t, Options{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(tt.method, "/api/assess", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			decode(t, rec, &body)
			assert.Contains(t, body["error"], tt.want)
		})
	}
}

func TestHandleAssess_BodyTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxUploadBytes: 32}, nil)

	rec := ts.postJSON(t, "/api/assess", `{"gpa": 3, "income": 1000000, "achievement": 50, "financial": 50}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleAssess_RateLimited(t *testing.T) {
	ts := newTestServer(t, Options{RequestsPerMinute: 1}, nil)

	body := `{"gpa": 3, "income": 1000000}`
	assert.Equal(t, http.StatusOK, ts.postJSON(t, "/api/assess", body).Code)

	rec := ts.postJSON(t, "/api/assess", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.do(httptest.NewRequest(http.MethodGet, "/api/rulebook", nil)).Code)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, withHistory(t), nil)

	for _, body := range []string{
		`{"gpa": 4, "income": 0, "achievement": 100, "financial": 0}`,
		`{"gpa": 0, "income": 20000000, "achievement": 0, "financial": 100}`,
	} {
		require.Equal(t, http.StatusOK, ts.postJSON(t, "/api/assess", body).Code)
	}

	t.Run("list", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Assessments []storage.Assessment `json:"assessments"`
			Count       int                  `json:"count"`
		}
		decode(t, rec, &body)
		assert.Equal(t, 2, body.Count)
		require.Len(t, body.Assessments, 2)
	})

	t.Run("filter by tier", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments?tier=very-high&limit=10", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Assessments []storage.Assessment `json:"assessments"`
		}
		decode(t, rec, &body)
		require.Len(t, body.Assessments, 1)
		assert.Equal(t, fuzzy.TierVeryHigh, body.Assessments[0].Tier)

		id := body.Assessments[0].ID
		rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var one storage.Assessment
		decode(t, rec, &one)
		assert.Equal(t, id, one.ID)
		assert.NotEmpty(t, one.Trace)
	})

	t.Run("bad query", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments?tier=urgent", nil)).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments?limit=-3", nil)).Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments/nope", nil)).Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/assessments/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var stats storage.Stats
		decode(t, rec, &stats)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.ByTier[fuzzy.TierVeryHigh])
	})
}

func TestHistory_Disabled(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	for _, path := range []string{"/api/assessments", "/api/assessments/stats", "/api/assessments/x"} {
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(httptest.NewRequest(http.MethodGet, path, nil)).Code, path)
	}
}

func TestHandleRulebook(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/rulebook", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Name       string           `json:"name"`
		Source     string           `json:"source"`
		Fallback   float64          `json:"fallback"`
		Thresholds fuzzy.Thresholds `json:"thresholds"`
		Definition rulebook.File    `json:"definition"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "scholarship", body.Name)
	assert.Equal(t, "builtin", body.Source)
	assert.Equal(t, 50.0, body.Fallback)
	assert.Equal(t, fuzzy.DefaultThresholds(), body.Thresholds)
	assert.Len(t, body.Definition.Inputs, 4)

	ts.models.Swap(nil)
	assert.Equal(t, http.StatusServiceUnavailable, ts.do(httptest.NewRequest(http.MethodGet, "/api/rulebook", nil)).Code)
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "scholarship", body.Rulebook)

	ts.setState(ServerStateDraining)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, "draining", body.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)
	require.Equal(t, http.StatusOK, ts.postJSON(t, "/api/assess", `{"gpa": 3, "income": 1000000}`).Code)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scholar_assessments_total")
	assert.Contains(t, rec.Body.String(), "scholar_priority_score")
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost"}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := ts.do(req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost.evil.com")
	rec = ts.do(req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/assess", nil)
	req.Header.Set("Origin", "http://localhost")
	rec = ts.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestIndex_RendersForm(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, html, `value="3.5"`)
	assert.Contains(t, html, `value="3000000"`)
	assert.Contains(t, html, `<option value="international"`)
	assert.NotContains(t, html, `class="result"`)

	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil)).Code)
}

func postForm(ts *testServer, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ts.do(req)
}

func TestIndex_Submit(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := postForm(ts, url.Values{
		"gpa": {"4"}, "income": {"0"},
		"achievement_mode": {"manual"}, "achievement": {"100"},
		"financial": {"0"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "93.33")
	assert.Contains(t, html, "Very High Priority")
	assert.Contains(t, html, `value="4"`, "submitted values are echoed")
}

func TestIndex_SubmitCertificate(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	rec := postForm(ts, url.Values{
		"gpa": {"3"}, "income": {"2000000"},
		"achievement_mode": {"certificate"}, "achievement": {"10"},
		"level": {"national"}, "placement": {"1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "87.5")
	assert.Contains(t, html, "certificates")
	assert.Contains(t, html, `<option value="national" selected>`)
}

func TestIndex_SubmitInvalid(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		flash  string
	}{
		{"gpa not a number", url.Values{"gpa": {"abc"}, "income": {"1"}}, "GPA must be a number"},
		{"gpa missing", url.Values{"income": {"1"}}, "GPA is required"},
		{"gpa out of range", url.Values{"gpa": {"9"}, "income": {"1"}}, "GPA must be a number between 0 and 4"},
		{"financial out of range", url.Values{"gpa": {"3"}, "income": {"1"}, "financial": {"120"}}, "financial score must be"},
	}

	ts := newTestServer(t, Options{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(ts, tt.values)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `class="flash"`)
			assert.Contains(t, rec.Body.String(), tt.flash)
		})
	}
}

func TestIndex_SubmitPhoto(t *testing.T) {
	scorer := imagescore.Func(func(context.Context, imagescore.Image) (float64, error) { return 20, nil })
	ts := newTestServer(t, Options{}, scorer)

	send := func(filename string, data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("gpa", "3.5"))
		require.NoError(t, mw.WriteField("income", "3000000"))
		fw, err := mw.CreateFormFile("photo", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return ts.do(req)
	}

	rec := send("house.png", pngBytes(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `20 <span class="muted">image</span>`)

	rec = send("house.gif", []byte("GIF89a not really"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="flash"`)
}

func TestIPLimiter(t *testing.T) {
	unlimited := newIPLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.allow("10.0.0.1"))
	}

	l := newIPLimiter(2)
	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "clients have separate budgets")

	l.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.prune(time.Now())
	assert.NotContains(t, l.clients, "10.0.0.1")
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestServe_GracefulShutdown(t *testing.T) {
	ts := newTestServer(t, Options{}, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, ServerStateStopped, ts.getState())
}
