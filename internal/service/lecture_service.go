package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/lectura/internal/config"
	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/hls"
	"github.com/iconidentify/lectura/internal/media"
	"github.com/iconidentify/lectura/internal/repository"
	"github.com/iconidentify/lectura/pkg/ffmpeg"
	"github.com/iconidentify/lectura/pkg/ollama"
	"github.com/iconidentify/lectura/pkg/whisper"
)

// AudioPreparer extracts and chunks audio ahead of transcription.
// *ffmpeg.Processor satisfies it.
type AudioPreparer interface {
	ExtractAudio(ctx context.Context, videoPath string, cfg ffmpeg.ExtractAudioConfig) (string, float64, error)
	ChunkAudio(ctx context.Context, audioPath string, cfg ffmpeg.ChunkAudioConfig) ([]string, error)
}

// SubmitRequest describes a lecture recording to acquire and process.
type SubmitRequest struct {
	Title      string
	BaseURL    string
	StartIndex int
	EndIndex   int
	Auth       domain.SignedURLAuth

	// ClipDuration in seconds; 0 means the configured default.
	ClipDuration int
}

// SubmitResponse is returned on successful submission.
type SubmitResponse struct {
	Recording *domain.Recording
	Job       *domain.Job
}

// LectureService owns the recording lifecycle: submission, the processing
// pipeline (download, merge, split, transcribe, notes), and queries.
type LectureService struct {
	recordings repository.RecordingRepository
	jobs       repository.JobRepository

	reconstructor *media.Reconstructor
	resegmenter   *media.Resegmenter

	// Optional stages; nil disables them.
	audio       AudioPreparer
	transcriber whisper.Client
	notes       ollama.Client

	events domain.EventEmitter
	cfg    *config.Config
	logger *slog.Logger
}

// NewLectureService wires the pipeline. audio, transcriber, and notes may be
// nil; the corresponding stages are then skipped.
func NewLectureService(
	recordings repository.RecordingRepository,
	jobs repository.JobRepository,
	engine media.Engine,
	audio AudioPreparer,
	transcriber whisper.Client,
	notes ollama.Client,
	events domain.EventEmitter,
	cfg *config.Config,
	logger *slog.Logger,
) *LectureService {
	return &LectureService{
		recordings:    recordings,
		jobs:          jobs,
		reconstructor: media.NewReconstructor(engine, logger),
		resegmenter:   media.NewResegmenter(engine, logger),
		audio:         audio,
		transcriber:   transcriber,
		notes:         notes,
		events:        events,
		cfg:           cfg,
		logger:        logger,
	}
}

// Submit validates a recording request, persists it, and enqueues a job.
func (s *LectureService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := validateBaseURL(req.BaseURL); err != nil {
		return nil, err
	}
	if req.StartIndex < 0 || req.EndIndex < req.StartIndex {
		return nil, domain.ErrInvalidRange
	}

	recordingID := domain.RecordingID("rec_" + uuid.New().String()[:8])

	recording := &domain.Recording{
		ID:           recordingID,
		Title:        req.Title,
		BaseURL:      hls.NormalizeBaseURL(req.BaseURL),
		StartIndex:   req.StartIndex,
		EndIndex:     req.EndIndex,
		Auth:         req.Auth,
		ClipDuration: req.ClipDuration,
		Status:       domain.StatusPending,
		OutputDir:    filepath.Join(s.cfg.Storage.BasePath, recordingID.String()),
		CreatedAt:    time.Now(),
	}

	if err := s.recordings.Create(ctx, recording); err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	job := domain.NewJob(
		domain.JobID("job_"+uuid.New().String()[:8]),
		recordingID,
		s.cfg.Worker.MaxRetries,
	)
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("recording submitted",
		"recording_id", recordingID,
		"job_id", job.ID,
		"range", fmt.Sprintf("%d-%d", req.StartIndex, req.EndIndex),
	)
	s.emitInfo(domain.EventCategoryDownload, "recording submitted", domain.EventMetadata{
		"recording_id": recordingID.String(),
		"title":        req.Title,
		"segments":     req.EndIndex - req.StartIndex + 1,
	})

	return &SubmitResponse{Recording: recording, Job: job}, nil
}

// Get retrieves a recording by ID.
func (s *LectureService) Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	return s.recordings.Get(ctx, id)
}

// List returns recordings, newest first, optionally filtered by status.
func (s *LectureService) List(ctx context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, int, error) {
	recordings, err := s.recordings.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.recordings.Count(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return recordings, total, nil
}

// Delete removes a recording row. Files on disk are kept; re-submitting the
// same lecture reuses the cached segments.
func (s *LectureService) Delete(ctx context.Context, id domain.RecordingID) error {
	return s.recordings.Delete(ctx, id)
}

// QueueStats returns the current job queue statistics.
func (s *LectureService) QueueStats(ctx context.Context) (*repository.QueueStats, error) {
	return s.jobs.Stats(ctx)
}

// Process runs the full pipeline for one recording. Download, merge, and
// split failures are fatal; transcription and notes failures degrade the
// result instead of failing it.
func (s *LectureService) Process(ctx context.Context, id domain.RecordingID) error {
	recording, err := s.recordings.Get(ctx, id)
	if err != nil {
		return domain.NewRecordingError(id, "load", err)
	}

	segments, err := s.download(ctx, recording)
	if err != nil {
		return s.fail(ctx, recording, "download", err)
	}

	if err := s.merge(ctx, recording, segments); err != nil {
		return s.fail(ctx, recording, "merge", err)
	}

	if err := s.split(ctx, recording); err != nil {
		return s.fail(ctx, recording, "split", err)
	}

	// Optional stages. A failed transcript (and therefore notes) still leaves
	// a complete video and clips, which is the product people actually wait on.
	if s.transcriber != nil && s.audio != nil {
		if err := s.transcribe(ctx, recording); err != nil {
			if ctx.Err() != nil {
				return s.fail(ctx, recording, "transcribe", err)
			}
			s.logger.Warn("transcription failed, continuing without transcript",
				"recording_id", recording.ID, "error", err)
			s.emitWarning(domain.EventCategoryTranscription, "transcription failed", domain.EventMetadata{
				"recording_id": recording.ID.String(),
				"error":        err.Error(),
			})
		}
	}

	if s.notes != nil && recording.TranscriptPath != "" {
		if err := s.generateNotes(ctx, recording); err != nil {
			if ctx.Err() != nil {
				return s.fail(ctx, recording, "notes", err)
			}
			s.logger.Warn("notes generation failed, continuing without notes",
				"recording_id", recording.ID, "error", err)
			s.emitWarning(domain.EventCategoryNotes, "notes generation failed", domain.EventMetadata{
				"recording_id": recording.ID.String(),
				"error":        err.Error(),
			})
		}
	}

	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusCompleted, ""); err != nil {
		return domain.NewRecordingError(recording.ID, "complete", err)
	}

	s.logger.Info("recording processed",
		"recording_id", recording.ID,
		"segments", recording.SegmentCount,
		"clips", recording.ClipCount,
		"duration_seconds", recording.DurationSeconds,
	)
	s.emitSuccess(domain.EventCategorySystem, "recording processed", domain.EventMetadata{
		"recording_id": recording.ID.String(),
		"segments":     recording.SegmentCount,
		"clips":        recording.ClipCount,
	})
	return nil
}

// download acquires all segments and returns them in index order.
func (s *LectureService) download(ctx context.Context, recording *domain.Recording) ([]hls.StoredSegment, error) {
	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusDownloading, ""); err != nil {
		return nil, err
	}
	s.emitInfo(domain.EventCategoryDownload, "segment acquisition started", domain.EventMetadata{
		"recording_id": recording.ID.String(),
	})

	store, err := hls.NewStore(recording.OutputDir)
	if err != nil {
		return nil, err
	}

	sessionCfg := hls.SessionConfig{
		BaseURL:                recording.BaseURL,
		StartIndex:             recording.StartIndex,
		EndIndex:               recording.EndIndex,
		Auth:                   recording.Auth,
		ProbeTimeout:           s.cfg.Acquire.ProbeTimeout,
		FetchTimeout:           s.cfg.Acquire.FetchTimeout,
		MaxConsecutiveFailures: s.cfg.Acquire.MaxConsecutiveFailures,
		UserAgent:              s.cfg.Acquire.UserAgent,
	}
	// A pattern persisted by an earlier run lets the session skip probing and
	// recognize cached files immediately.
	if recording.Pattern != nil {
		sessionCfg.Pattern = &hls.NamingPattern{
			Prefix:  recording.Pattern.Prefix,
			Padding: recording.Pattern.Padding,
			Suffix:  recording.Pattern.Suffix,
		}
	}

	progress := func(current, total int, message string) {
		s.logger.Debug("acquisition progress",
			"recording_id", recording.ID,
			"current", current,
			"total", total,
			"message", message,
		)
	}

	session := hls.NewSession(sessionCfg, store, progress, s.logger)
	result, err := session.Run(ctx)
	if err != nil {
		return nil, err
	}

	// A run satisfied entirely from cache never probes; the store was filled
	// under the default naming in that case.
	pattern := hls.DefaultPattern()
	if result.Pattern != nil {
		pattern = *result.Pattern
	}

	recording.Pattern = &domain.SegmentNaming{
		Prefix:  pattern.Prefix,
		Padding: pattern.Padding,
		Suffix:  pattern.Suffix,
	}
	recording.SegmentCount = result.SuccessCount
	if err := s.recordings.Update(ctx, recording); err != nil {
		return nil, err
	}

	s.emitSuccess(domain.EventCategoryDownload, "segment acquisition complete", domain.EventMetadata{
		"recording_id": recording.ID.String(),
		"segments":     result.SuccessCount,
		"requested":    result.TotalRequested,
	})

	return store.ListOrdered(pattern)
}

// merge concatenates the acquired segments into a single video.
func (s *LectureService) merge(ctx context.Context, recording *domain.Recording, segments []hls.StoredSegment) error {
	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusMerging, ""); err != nil {
		return err
	}

	outputPath := filepath.Join(recording.OutputDir, "lecture.mp4")
	result, err := s.reconstructor.Reconstruct(ctx, segments, outputPath)
	if err != nil {
		return err
	}

	recording.VideoPath = result.OutputPath
	recording.DurationSeconds = result.DurationSeconds
	if err := s.recordings.Update(ctx, recording); err != nil {
		return err
	}

	s.emitSuccess(domain.EventCategoryMerge, "segments merged", domain.EventMetadata{
		"recording_id":     recording.ID.String(),
		"video_path":       result.OutputPath,
		"total_bytes":      result.TotalBytes,
		"duration_seconds": result.DurationSeconds,
	})
	return nil
}

// split cuts the merged video into fixed-duration clips.
func (s *LectureService) split(ctx context.Context, recording *domain.Recording) error {
	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusSplitting, ""); err != nil {
		return err
	}

	clipDuration := float64(recording.ClipDuration)
	if clipDuration <= 0 {
		clipDuration = s.cfg.Media.ClipDurationSeconds
	}

	clips, err := s.resegmenter.Split(ctx, recording.VideoPath, recording.OutputDir, s.cfg.Media.ClipPrefix, clipDuration)
	if err != nil {
		return err
	}

	recording.ClipCount = len(clips)
	if err := s.recordings.Update(ctx, recording); err != nil {
		return err
	}

	s.emitSuccess(domain.EventCategoryClips, "clips created", domain.EventMetadata{
		"recording_id": recording.ID.String(),
		"clips":        len(clips),
	})
	return nil
}

// transcribe extracts audio, chunks it, and writes the transcript to disk.
func (s *LectureService) transcribe(ctx context.Context, recording *domain.Recording) error {
	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusTranscribing, ""); err != nil {
		return err
	}
	s.emitInfo(domain.EventCategoryTranscription, "transcription started", domain.EventMetadata{
		"recording_id": recording.ID.String(),
	})

	audioPath, _, err := s.audio.ExtractAudio(ctx, recording.VideoPath, ffmpeg.ExtractAudioConfig{
		OutputPath: filepath.Join(recording.OutputDir, "audio.mp3"),
	})
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}

	chunks, err := s.audio.ChunkAudio(ctx, audioPath, ffmpeg.ChunkAudioConfig{
		OutputDir: filepath.Join(recording.OutputDir, "audio_chunks"),
	})
	if err != nil {
		return fmt.Errorf("chunk audio: %w", err)
	}

	result, err := s.transcriber.TranscribeChunks(ctx, chunks, whisper.TranscriptionOptions{
		Model: s.cfg.Whisper.Model,
	})
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	transcriptPath := filepath.Join(recording.OutputDir, "transcript.txt")
	if err := os.WriteFile(transcriptPath, []byte(result.Text), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}

	recording.TranscriptPath = transcriptPath
	if err := s.recordings.Update(ctx, recording); err != nil {
		return err
	}

	s.emitSuccess(domain.EventCategoryTranscription, "transcript written", domain.EventMetadata{
		"recording_id":     recording.ID.String(),
		"transcript_path":  transcriptPath,
		"duration_seconds": result.Duration,
	})
	return nil
}

// generateNotes turns the transcript into study notes.
func (s *LectureService) generateNotes(ctx context.Context, recording *domain.Recording) error {
	if err := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusGenerating, ""); err != nil {
		return err
	}

	transcript, err := os.ReadFile(recording.TranscriptPath)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	result, err := s.notes.GenerateNotes(ctx, ollama.NotesRequest{
		Transcript: string(transcript),
		Title:      recording.Title,
		Style:      s.cfg.Notes.Style,
	})
	if err != nil {
		return fmt.Errorf("generate notes: %w", err)
	}

	notesPath := filepath.Join(recording.OutputDir, "notes.md")
	if err := os.WriteFile(notesPath, []byte(result.Notes), 0644); err != nil {
		return fmt.Errorf("write notes: %w", err)
	}

	recording.NotesPath = notesPath
	if err := s.recordings.Update(ctx, recording); err != nil {
		return err
	}

	s.emitSuccess(domain.EventCategoryNotes, "notes written", domain.EventMetadata{
		"recording_id": recording.ID.String(),
		"notes_path":   notesPath,
		"style":        result.Style,
		"word_count":   result.WordCount,
	})
	return nil
}

// fail marks the recording failed and wraps the stage error.
func (s *LectureService) fail(ctx context.Context, recording *domain.Recording, op string, err error) error {
	s.emitError(categoryForOp(op), op+" failed", domain.EventMetadata{
		"recording_id": recording.ID.String(),
		"error":        err.Error(),
	})
	if updateErr := s.recordings.UpdateStatus(ctx, recording.ID, domain.StatusFailed, err.Error()); updateErr != nil {
		s.logger.Error("failed to record failure status",
			"recording_id", recording.ID, "error", updateErr)
	}
	return domain.NewRecordingError(recording.ID, op, err)
}

func categoryForOp(op string) domain.EventCategory {
	switch op {
	case "download":
		return domain.EventCategoryDownload
	case "merge":
		return domain.EventCategoryMerge
	case "split":
		return domain.EventCategoryClips
	case "transcribe":
		return domain.EventCategoryTranscription
	case "notes":
		return domain.EventCategoryNotes
	default:
		return domain.EventCategorySystem
	}
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return domain.ErrInvalidBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrInvalidBaseURL
	}
	return nil
}

func (s *LectureService) emitInfo(category domain.EventCategory, message string, md domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitInfo(category, "pipeline", message, md)
	}
}

func (s *LectureService) emitWarning(category domain.EventCategory, message string, md domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitWarning(category, "pipeline", message, md)
	}
}

func (s *LectureService) emitError(category domain.EventCategory, message string, md domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitError(category, "pipeline", message, md)
	}
}

func (s *LectureService) emitSuccess(category domain.EventCategory, message string, md domain.EventMetadata) {
	if s.events != nil {
		s.events.EmitSuccess(category, "pipeline", message, md)
	}
}
