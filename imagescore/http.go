package imagescore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/scholar/errors"
	"github.com/teranos/scholar/internal/httpclient"
)

// HTTPConfig configures the remote classifier client.
type HTTPConfig struct {
	Endpoint string
	Timeout  time.Duration
	// RequestsPerSecond caps outbound calls; zero means unlimited.
	RequestsPerSecond float64
	MaxRetries        int
	// BlockPrivate refuses classifier endpoints on private networks.
	BlockPrivate bool
	Classes      ClassMap
}

// HTTPScorer posts the photo to an external classifier that answers with
// {"predictions": [p0, p1, ...]} and maps the result through a ClassMap.
type HTTPScorer struct {
	endpoint   string
	client     *httpclient.Client
	limiter    *rate.Limiter
	maxRetries int
	backoffs   []time.Duration
	classes    ClassMap
	logger     *zap.SugaredLogger
}

type predictResponse struct {
	Predictions []float64 `json:"predictions"`
}

// NewHTTPScorer validates the endpoint and class map.
func NewHTTPScorer(cfg HTTPConfig, logger *zap.SugaredLogger) (*HTTPScorer, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("classifier endpoint is required")
	}
	if err := cfg.Classes.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := httpclient.New(httpclient.Options{Timeout: cfg.Timeout, BlockPrivate: cfg.BlockPrivate})
	if _, err := client.ValidateURL(cfg.Endpoint); err != nil {
		return nil, errors.Wrapf(err, "classifier endpoint %s", cfg.Endpoint)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &HTTPScorer{
		endpoint:   cfg.Endpoint,
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: cfg.MaxRetries,
		backoffs:   []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		classes:    cfg.Classes,
		logger:     logger,
	}, nil
}

// Name identifies the scorer in logs and stored assessments.
func (s *HTTPScorer) Name() string { return "http" }

// Score classifies the photo and returns the mapped financial score.
func (s *HTTPScorer) Score(ctx context.Context, img Image) (float64, error) {
	pred, err := s.Classify(ctx, img)
	if err != nil {
		return 0, err
	}
	return pred.Score, nil
}

// Classify returns the full mapped prediction.
func (s *HTTPScorer) Classify(ctx context.Context, img Image) (Prediction, error) {
	body, err := s.doWithRetry(ctx, img)
	if err != nil {
		return Prediction{}, err
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Prediction{}, errors.Wrap(err, "parse classifier response")
	}
	pred, err := s.classes.Map(resp.Predictions)
	if err != nil {
		return Prediction{}, err
	}

	s.logger.Debugw("House photo classified",
		"class", pred.Class,
		"confidence", pred.Confidence,
		"score", pred.Score)
	return pred, nil
}

// doWithRetry retries 429 and 5xx responses with 1s, 2s, 4s backoff and
// honors Retry-After on 429. Every attempt takes a limiter token.
func (s *HTTPScorer) doWithRetry(ctx context.Context, img Image) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "rate limiter (attempt %d)", attempt+1)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(img.Data))
		if err != nil {
			return nil, errors.Wrap(err, "create request")
		}
		req.Header.Set("Content-Type", img.ContentType())
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "classifier request cancelled")
			}
			lastErr = errors.Wrap(err, "classifier request failed")
			if err := s.wait(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = errors.Wrap(readErr, "read classifier response")
			if err := s.wait(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = errors.Newf("classifier error (status %d): %s", resp.StatusCode, truncate(body))
			var retryAfter time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
					retryAfter = min(time.Duration(secs)*time.Second, 30*time.Second)
				}
			}
			if err := s.wait(ctx, attempt, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		return nil, errors.Newf("classifier error (status %d): %s", resp.StatusCode, truncate(body))
	}

	return nil, errors.Wrapf(lastErr, "classifier failed after %d retries", s.maxRetries)
}

// wait sleeps before the next attempt unless this was the last one.
func (s *HTTPScorer) wait(ctx context.Context, attempt int, override time.Duration) error {
	if attempt >= s.maxRetries {
		return nil
	}
	delay := override
	if delay == 0 {
		delay = s.backoffs[min(attempt, len(s.backoffs)-1)]
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func truncate(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
