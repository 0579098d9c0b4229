package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/teranos/scholar/logger"
)

// Handler returns the routed, middleware-wrapped handler.
func (s *ScholarServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Applicant form: GET renders, POST scores the multipart submission
	mux.HandleFunc("/{$}", s.limit(s.HandleIndex))

	// JSON API
	mux.HandleFunc("/api/assess", s.corsMiddleware(s.limit(s.HandleAssess)))
	mux.HandleFunc("/api/assessments", s.corsMiddleware(s.HandleAssessments))
	mux.HandleFunc("/api/assessments/stats", s.corsMiddleware(s.HandleAssessmentStats))
	mux.HandleFunc("/api/assessments/{id}", s.corsMiddleware(s.HandleAssessment))
	mux.HandleFunc("/api/rulebook", s.corsMiddleware(s.HandleRulebook))

	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.requestLogger(mux)
}

// corsMiddleware sets CORS headers for allowed origins and answers preflights
func (s *ScholarServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// originAllowed uses prefix matching so any port of an allowed host passes
func (s *ScholarServer) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || origin == allowed || strings.HasPrefix(origin, allowed+":") {
			return true
		}
	}
	return false
}

// limit rejects POSTs from clients over their per-minute budget
func (s *ScholarServer) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !s.limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Too many assessments, try again in a minute")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each request with an ID and logs it at debug
func (s *ScholarServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(logger.WithRequestID(r.Context(), id))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debugw("HTTP request",
			logger.FieldRequestID, shortID(id),
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	})
}

// ipLimiter hands each client IP its own token bucket.
type ipLimiter struct {
	perMinute int
	mu        sync.Mutex
	clients   map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// maxTrackedClients bounds the map; idle entries are pruned past it.
const maxTrackedClients = 10000

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{perMinute: perMinute, clients: make(map[string]*clientLimiter)}
}

func (l *ipLimiter) allow(ip string) bool {
	if l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.clients[ip]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.prune(now)
		}
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.Allow()
}

func (l *ipLimiter) prune(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > time.Minute {
			delete(l.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
