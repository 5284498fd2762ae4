package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/service"
)

// LectureService is the slice of the pipeline service the handlers need.
type LectureService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResponse, error)
	Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error)
	List(ctx context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, int, error)
	Delete(ctx context.Context, id domain.RecordingID) error
}

// RecordingHandler handles recording-related HTTP requests.
type RecordingHandler struct {
	svc    LectureService
	logger *slog.Logger
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(svc LectureService, logger *slog.Logger) *RecordingHandler {
	return &RecordingHandler{
		svc:    svc,
		logger: logger,
	}
}

// SubmitRequest is the JSON request body for recording submission.
type SubmitRequest struct {
	Title        string      `json:"title"`
	BaseURL      string      `json:"base_url"`
	StartIndex   int         `json:"start_index"`
	EndIndex     int         `json:"end_index"`
	Auth         AuthRequest `json:"auth"`
	ClipDuration int         `json:"clip_duration_seconds,omitempty"`
}

// AuthRequest carries the CDN signed-URL parameters.
type AuthRequest struct {
	KeyPairID string `json:"key_pair_id,omitempty"`
	Policy    string `json:"policy,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SubmitResponse is the JSON response after submission.
type SubmitResponse struct {
	RecordingID string `json:"recording_id"`
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
}

// RecordingResponse represents a recording in list/get responses.
type RecordingResponse struct {
	RecordingID     string    `json:"recording_id"`
	Title           string    `json:"title"`
	BaseURL         string    `json:"base_url"`
	StartIndex      int       `json:"start_index"`
	EndIndex        int       `json:"end_index"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	VideoPath       string    `json:"video_path,omitempty"`
	SegmentCount    int       `json:"segment_count"`
	ClipCount       int       `json:"clip_count"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	TranscriptPath  string    `json:"transcript_path,omitempty"`
	NotesPath       string    `json:"notes_path,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ProcessedAt     time.Time `json:"processed_at,omitempty"`
}

// StatusResponse is returned for status queries.
type StatusResponse struct {
	RecordingID  string `json:"recording_id"`
	Status       string `json:"status"`
	SegmentCount int    `json:"segment_count"`
	ClipCount    int    `json:"clip_count"`
	Error        string `json:"error,omitempty"`
}

// ListResponse contains a paginated recording list.
type ListResponse struct {
	Recordings []RecordingResponse `json:"recordings"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

func toRecordingResponse(rec *domain.Recording) RecordingResponse {
	rr := RecordingResponse{
		RecordingID:     string(rec.ID),
		Title:           rec.Title,
		BaseURL:         rec.BaseURL,
		StartIndex:      rec.StartIndex,
		EndIndex:        rec.EndIndex,
		Status:          string(rec.Status),
		Error:           rec.Error,
		VideoPath:       rec.VideoPath,
		SegmentCount:    rec.SegmentCount,
		ClipCount:       rec.ClipCount,
		DurationSeconds: rec.DurationSeconds,
		TranscriptPath:  rec.TranscriptPath,
		NotesPath:       rec.NotesPath,
		CreatedAt:       rec.CreatedAt,
	}
	if rec.ProcessedAt != nil {
		rr.ProcessedAt = *rec.ProcessedAt
	}
	return rr
}

// Submit handles POST /api/v1/recordings
func (h *RecordingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Submit(r.Context(), service.SubmitRequest{
		Title:      req.Title,
		BaseURL:    req.BaseURL,
		StartIndex: req.StartIndex,
		EndIndex:   req.EndIndex,
		Auth: domain.SignedURLAuth{
			KeyPairID: req.Auth.KeyPairID,
			Policy:    req.Auth.Policy,
			Signature: req.Auth.Signature,
		},
		ClipDuration: req.ClipDuration,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidBaseURL) {
			h.writeError(w, http.StatusBadRequest, "invalid base URL")
			return
		}
		if errors.Is(err, domain.ErrInvalidRange) {
			h.writeError(w, http.StatusBadRequest, "invalid segment index range")
			return
		}
		h.logger.Error("submit failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit recording")
		return
	}

	h.writeJSON(w, http.StatusAccepted, SubmitResponse{
		RecordingID: string(result.Recording.ID),
		JobID:       string(result.Job.ID),
		Status:      string(result.Recording.Status),
	})
}

// List handles GET /api/v1/recordings
func (h *RecordingHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	var status *domain.RecordingStatus

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.RecordingStatus(s)
		status = &st
	}

	recordings, total, err := h.svc.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list recordings")
		return
	}

	response := ListResponse{
		Recordings: make([]RecordingResponse, 0, len(recordings)),
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}
	for _, rec := range recordings {
		response.Recordings = append(response.Recordings, toRecordingResponse(rec))
	}

	h.writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/v1/recordings/{recordingID}
func (h *RecordingHandler) Get(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	if recordingID == "" {
		h.writeError(w, http.StatusBadRequest, "missing recording ID")
		return
	}

	rec, err := h.svc.Get(r.Context(), domain.RecordingID(recordingID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("get failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get recording")
		return
	}

	h.writeJSON(w, http.StatusOK, toRecordingResponse(rec))
}

// GetStatus handles GET /api/v1/recordings/{recordingID}/status
func (h *RecordingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	if recordingID == "" {
		h.writeError(w, http.StatusBadRequest, "missing recording ID")
		return
	}

	rec, err := h.svc.Get(r.Context(), domain.RecordingID(recordingID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("get status failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get recording status")
		return
	}

	h.writeJSON(w, http.StatusOK, StatusResponse{
		RecordingID:  string(rec.ID),
		Status:       string(rec.Status),
		SegmentCount: rec.SegmentCount,
		ClipCount:    rec.ClipCount,
		Error:        rec.Error,
	})
}

// ClipFileResponse describes one clip file.
type ClipFileResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// ClipListResponse lists the clips produced for a recording.
type ClipListResponse struct {
	RecordingID string             `json:"recording_id"`
	Clips       []ClipFileResponse `json:"clips"`
}

// ListClips handles GET /api/v1/recordings/{recordingID}/clips
func (h *RecordingHandler) ListClips(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	if recordingID == "" {
		h.writeError(w, http.StatusBadRequest, "missing recording ID")
		return
	}

	rec, err := h.svc.Get(r.Context(), domain.RecordingID(recordingID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("list clips failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list clips")
		return
	}

	response := ClipListResponse{
		RecordingID: recordingID,
		Clips:       []ClipFileResponse{},
	}

	entries, err := os.ReadDir(filepath.Join(rec.OutputDir, "clips"))
	if err != nil {
		// No clips directory yet; splitting has not run.
		h.writeJSON(w, http.StatusOK, response)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		response.Clips = append(response.Clips, ClipFileResponse{
			Filename: entry.Name(),
			Size:     info.Size(),
			URL:      fmt.Sprintf("/api/v1/recordings/%s/clips/%s", recordingID, entry.Name()),
		})
	}

	h.writeJSON(w, http.StatusOK, response)
}

// ServeClip handles GET /api/v1/recordings/{recordingID}/clips/{filename}
func (h *RecordingHandler) ServeClip(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	filename := chi.URLParam(r, "filename")

	if recordingID == "" || filename == "" {
		h.writeError(w, http.StatusBadRequest, "missing recording ID or filename")
		return
	}

	// Security: validate filename to prevent path traversal
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		h.writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	rec, err := h.svc.Get(r.Context(), domain.RecordingID(recordingID))
	if err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("serve clip failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get recording")
		return
	}

	file, err := os.Open(filepath.Join(rec.OutputDir, "clips", filename))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "clip not found")
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to stat clip")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")

	// http.ServeContent handles Range requests automatically
	http.ServeContent(w, r, filename, stat.ModTime(), file)
}

// Delete handles DELETE /api/v1/recordings/{recordingID}
func (h *RecordingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	recordingID := chi.URLParam(r, "recordingID")
	if recordingID == "" {
		h.writeError(w, http.StatusBadRequest, "missing recording ID")
		return
	}

	if err := h.svc.Delete(r.Context(), domain.RecordingID(recordingID)); err != nil {
		if errors.Is(err, domain.ErrRecordingNotFound) {
			h.writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		h.logger.Error("delete failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to delete recording")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *RecordingHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *RecordingHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
