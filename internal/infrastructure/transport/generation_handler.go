package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docgen/app/usecase"
	"docgen/internal/domain/entity"
	"docgen/internal/infrastructure/metrics"
	"docgen/internal/infrastructure/validator"
)

const (
	writeWait           = 10 * time.Second
	maxMessageSize      = 512
	maxRequestBodyBytes = 2 << 20

	defaultStatusPollInterval = 2 * time.Second
)

// GenerationSubmitter queues background generations.
type GenerationSubmitter interface {
	Submit(ctx context.Context, kind entity.JobKind, targetID string, req entity.GenerationRequest) (string, error)
}

// GenerationReader answers status and record queries.
type GenerationReader interface {
	GetStatus(ctx context.Context, targetID string) (entity.StatusView, error)
	GetRecord(ctx context.Context, targetID string) (*entity.GenerationRecord, error)
}

type HealthCheck func(ctx context.Context) error

type GenerationHandler struct {
	submitter   GenerationSubmitter
	generations GenerationReader
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	requests    *validator.RequestValidator

	pollInterval time.Duration
	checks       map[string]HealthCheck
}

type HandlerOption func(*GenerationHandler)

// WithStatusPollInterval sets how often the websocket stream re-reads the status.
func WithStatusPollInterval(d time.Duration) HandlerOption {
	return func(h *GenerationHandler) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithHealthCheck adds a named dependency check to /api/v1/health.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *GenerationHandler) { h.checks[name] = check }
}

func NewGenerationHandler(
	submitter GenerationSubmitter,
	generations GenerationReader,
	logger *slog.Logger,
	opts ...HandlerOption,
) *GenerationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &GenerationHandler{
		submitter:   submitter,
		generations: generations,
		logger:      logger.With("component", "http"),
		requests:    validator.NewRequestValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pollInterval: defaultStatusPollInterval,
		checks:       map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Middleware for metrics
func (h *GenerationHandler) withMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)

		metrics.ObserveHTTPRequest(r.Method, path, rw.status, strconv.Itoa(rw.status), time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over a recorded connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (h *GenerationHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/targets/{id}/generation", h.withMetrics(h.handleGenerate)).Methods(http.MethodPost)
	api.HandleFunc("/targets/{id}/generation", h.withMetrics(h.handleGetRecord)).Methods(http.MethodGet)
	api.HandleFunc("/targets/{id}/generation/retry", h.withMetrics(h.handleRetry)).Methods(http.MethodPost)
	api.HandleFunc("/targets/{id}/generation/status", h.withMetrics(h.handleStatus)).Methods(http.MethodGet)
	api.HandleFunc("/targets/{id}/generation/ws", h.withMetrics(h.handleStatusStream)).Methods(http.MethodGet)
	api.HandleFunc("/health", h.withMetrics(h.handleHealth)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrTargetNotFound), errors.Is(err, entity.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrAlreadyExists), errors.Is(err, entity.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrQueueFull), errors.Is(err, usecase.ErrDispatcherStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

type generateReq struct {
	Code              string            `json:"code"`
	Language          string            `json:"language"`
	Filename          string            `json:"filename"`
	AdditionalContext string            `json:"additional_context"`
	FileStructure     map[string]string `json:"file_structure"`
}

type generateResp struct {
	JobID    string `json:"job_id"`
	TargetID string `json:"target_id"`
	Status   string `json:"status"`
}

func (h *GenerationHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (string, entity.GenerationRequest, bool) {
	targetID := strings.TrimSpace(mux.Vars(r)["id"])
	if targetID == "" {
		writeError(w, http.StatusBadRequest, errors.New("id required"))
		return "", entity.GenerationRequest{}, false
	}

	var req generateReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body: %w", err))
		return "", entity.GenerationRequest{}, false
	}

	out := entity.GenerationRequest{
		Code:              req.Code,
		Language:          req.Language,
		Filename:          req.Filename,
		AdditionalContext: req.AdditionalContext,
		FileStructure:     req.FileStructure,
	}
	if err := h.requests.Validate(out); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", entity.GenerationRequest{}, false
	}
	return targetID, out, true
}

// POST /api/v1/targets/{id}/generation
func (h *GenerationHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, entity.JobKindGenerate)
}

// POST /api/v1/targets/{id}/generation/retry
func (h *GenerationHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, entity.JobKindRetry)
}

func (h *GenerationHandler) submit(w http.ResponseWriter, r *http.Request, kind entity.JobKind) {
	targetID, req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	jobID, err := h.submitter.Submit(r.Context(), kind, targetID, req)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("submit generation failed", "target_id", targetID, "kind", kind, "err", err)
		}
		writeError(w, code, err)
		return
	}

	writeJSON(w, http.StatusAccepted, generateResp{JobID: jobID, TargetID: targetID, Status: "queued"})
}

// GET /api/v1/targets/{id}/generation/status
func (h *GenerationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	view, err := h.generations.GetStatus(r.Context(), targetID)
	if err != nil {
		h.logger.Error("get status failed", "target_id", targetID, "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GET /api/v1/targets/{id}/generation
func (h *GenerationHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	record, err := h.generations.GetRecord(r.Context(), targetID)
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.logger.Error("get record failed", "target_id", targetID, "err", err)
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GET /api/v1/targets/{id}/generation/ws
// Pushes the status view every poll interval until it is terminal, then closes.
func (h *GenerationHandler) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	targetID := mux.Vars(r)["id"]
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response
		h.logger.Warn("websocket upgrade failed", "target_id", targetID, "err", err)
		return
	}
	defer conn.Close()

	log := h.logger.With("target_id", targetID)
	log.Debug("status stream opened")

	// the client never sends anything meaningful; reading only detects disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxMessageSize)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	ctx := context.WithoutCancel(r.Context())
	for {
		view, err := h.generations.GetStatus(ctx, targetID)
		if err != nil {
			log.Error("status stream read failed", "err", err)
			h.closeStream(conn, websocket.CloseInternalServerErr, "status unavailable")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view); err != nil {
			log.Debug("status stream write failed", "err", err)
			return
		}
		if view.IsTerminal() {
			h.closeStream(conn, websocket.CloseNormalClosure, view.Status)
			return
		}

		select {
		case <-gone:
			log.Debug("status stream closed by client")
			return
		case <-ticker.C:
		}
	}
}

func (h *GenerationHandler) closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// GET /api/v1/health
func (h *GenerationHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ok := true
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			ok = false
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	status := map[string]interface{}{
		"ok": ok,
		"ts": time.Now().UTC(),
	}
	if len(deps) > 0 {
		status["deps"] = deps
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
