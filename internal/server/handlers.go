package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/maauso/vidcompress/internal/compress"
	"github.com/maauso/vidcompress/internal/job"
	"github.com/maauso/vidcompress/internal/media"
	"github.com/maauso/vidcompress/internal/platform"
	"github.com/maauso/vidcompress/internal/storage"
)

const (
	defaultThumbnailQuality = 100
	defaultListLimit        = 50
	maxListLimit            = 500
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	orchestrator *compress.Orchestrator
	platform     platform.Platform
	prober       compress.Prober
	store        storage.Storage
	levelVar     *slog.LevelVar
	validator    *validator.Validate
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithLevelVar lets PUT /log-level change the service log level.
func WithLevelVar(lv *slog.LevelVar) HandlerOption {
	return func(h *Handlers) {
		h.levelVar = lv
	}
}

// WithAllowedOrigins restricts which origins may open the progress websocket.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handlers) {
		h.upgrader.CheckOrigin = originChecker(origins)
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	orchestrator *compress.Orchestrator,
	plat platform.Platform,
	prober compress.Prober,
	store storage.Storage,
	logger *slog.Logger,
	opts ...HandlerOption,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		orchestrator: orchestrator,
		platform:     plat,
		prober:       prober,
		store:        store,
		validator:    validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// MediaInfo handles GET /media/info?path= requests.
func (h *Handlers) MediaInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required", "VALIDATION_ERROR")
		return
	}

	info, err := h.prober.Probe(r.Context(), path)
	if err != nil {
		h.writeDomainError(w, err, "probe media")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Thumbnail handles GET /media/thumbnail?path=&quality=&position= requests
// and responds with JPEG bytes.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := platform.ThumbnailRequest{
		Path:    q.Get("path"),
		Quality: defaultThumbnailQuality,
	}

	var err error
	if v := q.Get("quality"); v != "" {
		if req.Quality, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "quality must be an integer", "VALIDATION_ERROR")
			return
		}
	}
	if v := q.Get("position"); v != "" {
		if req.PositionMs, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "position must be an integer", "VALIDATION_ERROR")
			return
		}
	}

	data, err := h.thumbnail(r, req)
	if err != nil {
		h.writeDomainError(w, err, "extract thumbnail")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ThumbnailFile handles POST /media/thumbnail-file requests. The thumbnail
// is written to the cache directory.
func (h *Handlers) ThumbnailFile(w http.ResponseWriter, r *http.Request) {
	var body ThumbnailFileRequest
	if !h.decode(w, r, &body) {
		return
	}

	data, err := h.thumbnail(r, platform.ThumbnailRequest{
		Path:       body.Path,
		Quality:    body.Quality,
		PositionMs: body.PositionMs,
	})
	if err != nil {
		h.writeDomainError(w, err, "extract thumbnail")
		return
	}

	base := strings.TrimSuffix(filepath.Base(body.Path), filepath.Ext(body.Path))
	path, err := h.store.SaveTemp(r.Context(), base+".jpg", bytes.NewReader(data))
	if err != nil {
		h.logger.Error("failed to save thumbnail",
			slog.String("path", body.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save thumbnail", "THUMBNAIL_SAVE_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, ThumbnailFileResponse{Path: path})
}

// CreateCompression handles POST /compressions requests.
func (h *Handlers) CreateCompression(w http.ResponseWriter, r *http.Request) {
	var body CompressRequest
	if !h.decode(w, r, &body) {
		return
	}

	req := compress.Request{
		SourcePath:     body.SourcePath,
		OutputPath:     body.OutputPath,
		Quality:        platform.Quality(body.Quality),
		StartTimeMs:    body.StartTimeMs,
		DurationMs:     body.DurationMs,
		IncludeAudio:   body.IncludeAudio,
		FrameRate:      body.FrameRate,
		DeleteOriginal: body.DeleteOriginal,
		CheckSize:      body.CheckSize,
		Explicit:       body.Explicit,
		PushToS3:       body.PushToS3,
	}

	submitted, err := h.orchestrator.Submit(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err, "submit compression")
		return
	}

	h.logger.Info("compression submitted",
		slog.String("job_id", submitted.ID),
		slog.String("status", string(submitted.Status)),
		slog.String("path", body.SourcePath),
	)

	resp := CompressResponse{ID: submitted.ID, Status: string(submitted.Status)}
	if submitted.Status == job.StatusSkipped {
		resp.Output = submitted.Output
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// CancelCompression handles POST /compressions/cancel requests.
func (h *Handlers) CancelCompression(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Cancel()
	writeJSON(w, http.StatusAccepted, h.orchestrator.State())
}

// CompressionState handles GET /compressions/state requests.
func (h *Handlers) CompressionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orchestrator.State())
}

// GetCompression handles GET /compressions/{id} requests.
func (h *Handlers) GetCompression(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.orchestrator.Job(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found))
}

// DeleteCompression handles DELETE /compressions/{id} requests.
func (h *Handlers) DeleteCompression(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	err := h.orchestrator.DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, compress.ErrJobActive):
		writeError(w, http.StatusConflict, err.Error(), "JOB_ACTIVE")
	default:
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
	}
}

// ListCompressions handles GET /compressions?limit= requests.
func (h *Handlers) ListCompressions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be within 1..%d", maxListLimit), "VALIDATION_ERROR")
			return
		}
		limit = n
	}

	jobs, err := h.orchestrator.Jobs(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearCache handles DELETE /cache requests.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.platform.ClearCache(r.Context())
	if err != nil {
		h.logger.Error("failed to clear cache", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to clear cache", "CACHE_CLEAR_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, ClearCacheResponse{Cleared: cleared})
}

// SetLogLevel handles PUT /log-level requests.
func (h *Handlers) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var body LogLevelRequest
	if !h.decode(w, r, &body) {
		return
	}

	h.platform.SetLogLevel(*body.Level)
	resp := LogLevelResponse{Level: *body.Level}

	if body.AppLevel != "" && h.levelVar != nil {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(body.AppLevel)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.levelVar.Set(lvl)
		resp.AppLevel = strings.ToLower(lvl.String())
	}

	h.logger.Info("log level changed",
		slog.Int("level", resp.Level),
		slog.String("app_level", resp.AppLevel),
	)
	writeJSON(w, http.StatusOK, resp)
}

// thumbnail checks the source exists before asking the platform for a frame.
func (h *Handlers) thumbnail(r *http.Request, req platform.ThumbnailRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(req.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", media.ErrNotFound, req.Path)
		}
		return nil, err
	}
	return h.platform.ExtractThumbnail(r.Context(), req)
}

// decode reads and validates a JSON body. It writes the error response
// and returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP status codes.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error, action string) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, platform.ErrInvalidRequest), errors.Is(err, media.ErrEmptyPath):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, media.ErrNotFound):
		status, code = http.StatusNotFound, "MEDIA_NOT_FOUND"
	case errors.Is(err, media.ErrCorruptMedia):
		status, code = http.StatusUnprocessableEntity, "CORRUPT_MEDIA"
	case errors.Is(err, job.ErrAlreadyBusy):
		status, code = http.StatusConflict, "JOB_IN_PROGRESS"
	case errors.Is(err, compress.ErrJobTimedOut):
		status, code = http.StatusGatewayTimeout, "JOB_TIMED_OUT"
	case errors.Is(err, compress.ErrNativeInvocation), errors.Is(err, platform.ErrInvocation):
		status, code = http.StatusBadGateway, "NATIVE_INVOCATION_FAILED"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error(action+" failed", slog.String("error", err.Error()))
	} else {
		h.logger.Warn(action+" rejected", slog.String("code", code), slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error(), code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
