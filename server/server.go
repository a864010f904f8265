// Package server - HTTP interface of the detector.
package server

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/util"
)

// RequestIDHeader carries the id of every request and response.
const RequestIDHeader = "X-Request-ID"

// ImageFetcher downloads the image named by a JSON request.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// Config holds the collaborators of a Server.
type Config struct {
	// Detector runs the model.
	Detector *detector.Detector
	// Fetcher downloads images for JSON requests; nil disables URL input.
	Fetcher ImageFetcher
	// Defaults fill parameters a request leaves out.
	Defaults detector.Options
	// MaxBodyBytes bounds request bodies (default: 20 MiB).
	MaxBodyBytes int64
	// Profiler is reported by /metrics.
	Profiler *profiler.Profiler
	// Logger receives one line per request; nil selects the standard logger.
	Logger logrus.FieldLogger
}

// Server serves detection requests. It holds no per-request state.
type Server struct {
	detector     *detector.Detector
	fetcher      ImageFetcher
	defaults     detector.Options
	maxBodyBytes int64
	profiler     *profiler.Profiler
	logger       logrus.FieldLogger
	router       *mux.Router
	started      time.Time
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImageSize is the size of the analysed image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	Image       ImageSize             `json:"image"`
	Predictions []detector.Prediction `json:"predictions"`
}

// New creates a server and its routes.
//
// Arguments:
//   - cfg: The detector, fetcher, defaults and logging.
//
// Returns:
//   - *Server: The server.
//   - error: An ErrInvalidConfig error for a missing detector or bad defaults.
//
// @example
// srv, err := server.New(server.Config{Detector: d, Fetcher: fetcher, Defaults: detector.DefaultOptions()})
// http.ListenAndServe(":8080", srv.Handler())
func New(cfg Config) (*Server, error) {
	if cfg.Detector == nil {
		return nil, common.Errorf(common.ErrInvalidConfig, "server needs a detector")
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, errors.WithMessage(err, "default detection options")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 20 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	s := &Server{
		detector:     cfg.Detector,
		fetcher:      cfg.Fetcher,
		defaults:     cfg.Defaults,
		maxBodyBytes: cfg.MaxBodyBytes,
		profiler:     cfg.Profiler,
		logger:       cfg.Logger,
		started:      time.Now(),
	}

	r := mux.NewRouter()
	r.Use(s.requestMiddleware)
	r.HandleFunc("/v1/predict", s.handlePredict).Methods(http.MethodPost)
	s.addMonitoringRoutes(r)
	r.NotFoundHandler = s.requestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendError(w, "not_found", "no such route", http.StatusNotFound)
	}))
	r.MethodNotAllowedHandler = s.requestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendError(w, "method_not_allowed", "method not allowed", http.StatusMethodNotAllowed)
	}))
	s.router = r

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// NewHTTPServer wraps the handler in an http.Server with the given limits.
func (s *Server) NewHTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Handler:           s.router,
		Addr:              addr,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}

func (s *Server) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	img, opts, err := s.readRequest(r)
	if err != nil {
		code, status := errorStatus(err)
		sendError(w, code, err.Error(), status)
		return
	}

	result, err := s.detector.Detect(img, opts)
	if err != nil {
		code, status := errorStatus(err)
		sendError(w, code, err.Error(), status)
		return
	}
	if info := infoFrom(r.Context()); info != nil {
		info.detections = len(result.Predictions)
	}

	sendJSON(w, http.StatusOK, PredictResponse{
		Image:       ImageSize{Width: result.Width, Height: result.Height},
		Predictions: s.detector.Labels(result),
	})
}

// MetricsResponse is the body of /metrics.
type MetricsResponse struct {
	UptimeSeconds float64                `json:"uptime_seconds"`
	Session       *inference.Metrics     `json:"session,omitempty"`
	Pool          *inference.PoolMetrics `json:"pool,omitempty"`
	Runtime       profiler.Snapshot      `json:"runtime"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	resp := MetricsResponse{
		UptimeSeconds: time.Since(s.started).Seconds(),
		Runtime:       s.profiler.Snapshot(),
	}

	session := s.detector.Session()
	if ps, ok := session.(*inference.ProfiledSession); ok {
		m := ps.Metrics()
		resp.Session = &m
		session = ps.Session
	}
	if pool, ok := session.(*inference.Pool); ok {
		m := pool.Metrics()
		resp.Pool = &m
	}

	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorStatus maps an error to its response code and HTTP status.
func errorStatus(err error) (string, int) {
	var tooLarge *http.MaxBytesError
	var bad *requestError
	switch {
	case errors.As(err, &tooLarge):
		return "request_too_large", http.StatusRequestEntityTooLarge
	case errors.As(err, &bad), errors.Is(err, util.ErrInvalidURL):
		return "invalid_request", http.StatusBadRequest
	case errors.Is(err, util.ErrFetchFailed):
		return "fetch_failed", http.StatusBadGateway
	}

	switch kind := common.Kind(err); kind {
	case "invalid_image", "invalid_config":
		return kind, http.StatusBadRequest
	case "shape_mismatch":
		return kind, http.StatusUnprocessableEntity
	default:
		return kind, http.StatusInternalServerError
	}
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	sendJSON(w, status, ErrorResponse{Code: code, Message: message})
}

type requestInfo struct {
	id         string
	detections int
}

type infoKey struct{}

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(infoKey{}).(*requestInfo)
	return info
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestMiddleware assigns a request id, echoes it in the response and logs
// one line when the request completes.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if infoFrom(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		info := &requestInfo{id: id}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), infoKey{}, info)))

		entry := s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start),
		})
		if r.URL.Path == "/v1/predict" {
			entry = entry.WithField("detections", info.detections)
		}
		entry.Info("request complete")
	})
}
