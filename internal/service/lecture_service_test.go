package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/lectura/internal/config"
	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/hls"
	"github.com/iconidentify/lectura/internal/repository"
	"github.com/iconidentify/lectura/pkg/ffmpeg"
	"github.com/iconidentify/lectura/pkg/ollama"
	"github.com/iconidentify/lectura/pkg/whisper"
)

// fakeRecordingRepo is an in-memory RecordingRepository that records the
// status transitions a pipeline run walked through.
type fakeRecordingRepo struct {
	mu       sync.Mutex
	recs     map[domain.RecordingID]*domain.Recording
	statuses []domain.RecordingStatus
}

func newFakeRecordingRepo() *fakeRecordingRepo {
	return &fakeRecordingRepo{recs: make(map[domain.RecordingID]*domain.Recording)}
}

func (r *fakeRecordingRepo) Create(_ context.Context, rec *domain.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = rec
	return nil
}

func (r *fakeRecordingRepo) Get(_ context.Context, id domain.RecordingID) (*domain.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, domain.ErrRecordingNotFound
	}
	return rec, nil
}

func (r *fakeRecordingRepo) List(_ context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Recording
	for _, rec := range r.recs {
		if status == nil || rec.Status == *status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRecordingRepo) Count(_ context.Context, status *domain.RecordingStatus) (int, error) {
	recs, _ := r.List(context.Background(), status, 0, 0)
	return len(recs), nil
}

func (r *fakeRecordingRepo) Update(_ context.Context, rec *domain.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[rec.ID]; !ok {
		return domain.ErrRecordingNotFound
	}
	r.recs[rec.ID] = rec
	return nil
}

func (r *fakeRecordingRepo) UpdateStatus(_ context.Context, id domain.RecordingID, status domain.RecordingStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return domain.ErrRecordingNotFound
	}
	rec.Status = status
	rec.Error = errMsg
	if rec.Terminal() {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *fakeRecordingRepo) Delete(_ context.Context, id domain.RecordingID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recs[id]; !ok {
		return domain.ErrRecordingNotFound
	}
	delete(r.recs, id)
	return nil
}

func (r *fakeRecordingRepo) statusHistory() []domain.RecordingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.RecordingStatus(nil), r.statuses...)
}

// fakeEngine is an in-process media.Engine.
type fakeEngine struct {
	mu        sync.Mutex
	duration  float64
	concatErr error
	clipErr   error
	clipCalls int
}

func (e *fakeEngine) Concat(_ context.Context, _ []string, outputPath string) error {
	if e.concatErr != nil {
		return e.concatErr
	}
	return os.WriteFile(outputPath, bytes.Repeat([]byte{0x00}, 2048), 0644)
}

func (e *fakeEngine) Duration(_ context.Context, _ string) (float64, error) {
	return e.duration, nil
}

func (e *fakeEngine) Clip(_ context.Context, _, outputPath string, _, _ float64) error {
	e.mu.Lock()
	e.clipCalls++
	e.mu.Unlock()
	if e.clipErr != nil {
		return e.clipErr
	}
	return os.WriteFile(outputPath, []byte("clip"), 0644)
}

type fakeAudio struct{}

func (fakeAudio) ExtractAudio(_ context.Context, _ string, cfg ffmpeg.ExtractAudioConfig) (string, float64, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return "", 0, err
	}
	if err := os.WriteFile(cfg.OutputPath, []byte("audio"), 0644); err != nil {
		return "", 0, err
	}
	return cfg.OutputPath, 100, nil
}

func (fakeAudio) ChunkAudio(_ context.Context, audioPath string, _ ffmpeg.ChunkAudioConfig) ([]string, error) {
	return []string{audioPath}, nil
}

type fakeTranscriber struct {
	err error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ whisper.TranscriptionRequest) (*whisper.TranscriptionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &whisper.TranscriptionResponse{Text: "hello lecture", Duration: 100}, nil
}

func (f *fakeTranscriber) TranscribeChunks(ctx context.Context, _ []string, _ whisper.TranscriptionOptions) (*whisper.TranscriptionResponse, error) {
	return f.Transcribe(ctx, whisper.TranscriptionRequest{})
}

type fakeNotes struct {
	err error
}

func (f *fakeNotes) GenerateNotes(_ context.Context, req ollama.NotesRequest) (*ollama.NotesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ollama.NotesResponse{Notes: "## " + req.Title, Style: ollama.StyleLectureNotes, WordCount: 2}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{BasePath: t.TempDir()},
		Worker:  config.WorkerConfig{Count: 1, MaxRetries: 3},
		Acquire: config.AcquireConfig{
			ProbeTimeout:           time.Second,
			FetchTimeout:           time.Second,
			MaxConsecutiveFailures: 10,
		},
		Media:   config.MediaConfig{ClipDurationSeconds: 60, ClipPrefix: "clip"},
		Whisper: config.WhisperConfig{Model: "whisper-1"},
		Notes:   config.NotesConfig{Style: "lecture_notes"},
	}
}

// seedSegments fills the recording's chunk cache under the default naming so
// acquisition completes without touching the network.
func seedSegments(t *testing.T, outputDir string, count int) {
	t.Helper()
	dir := filepath.Join(outputDir, "chunks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir chunks: %v", err)
	}
	body := bytes.Repeat([]byte{0x47}, hls.MinSegmentBytes+100)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("data%d.ts", i)
		if err := os.WriteFile(filepath.Join(dir, name), body, 0644); err != nil {
			t.Fatalf("seed segment: %v", err)
		}
	}
}

func newTestLectureService(t *testing.T, engine *fakeEngine, transcriber whisper.Client, notes ollama.Client) (*LectureService, *fakeRecordingRepo) {
	t.Helper()
	recs := newFakeRecordingRepo()
	var audio AudioPreparer
	if transcriber != nil {
		audio = fakeAudio{}
	}
	svc := NewLectureService(
		recs,
		repository.NewInMemoryJobRepository(),
		engine,
		audio,
		transcriber,
		notes,
		nil,
		testConfig(t),
		testLogger(),
	)
	return svc, recs
}

func TestSubmit(t *testing.T) {
	svc, recs := newTestLectureService(t, &fakeEngine{}, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		Title:      "Algorithms, week 1",
		BaseURL:    "https://cdn.example.com/lec42",
		StartIndex: 0,
		EndIndex:   99,
		Auth:       domain.SignedURLAuth{KeyPairID: "APK1", Policy: "pol", Signature: "sig"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rec := resp.Recording
	if !strings.HasPrefix(rec.ID.String(), "rec_") {
		t.Errorf("recording ID = %q, want rec_ prefix", rec.ID)
	}
	if !strings.HasPrefix(resp.Job.ID.String(), "job_") {
		t.Errorf("job ID = %q, want job_ prefix", resp.Job.ID)
	}
	if rec.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", rec.Status)
	}
	if rec.BaseURL != "https://cdn.example.com/lec42/" {
		t.Errorf("BaseURL = %q, want trailing slash", rec.BaseURL)
	}
	if rec.OutputDir == "" {
		t.Error("OutputDir not set")
	}

	stored, err := recs.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("stored recording: %v", err)
	}
	if stored.EndIndex != 99 {
		t.Errorf("EndIndex = %d, want 99", stored.EndIndex)
	}
}

func TestSubmit_Validation(t *testing.T) {
	svc, _ := newTestLectureService(t, &fakeEngine{}, nil, nil)

	tests := []struct {
		name    string
		req     SubmitRequest
		wantErr error
	}{
		{"empty url", SubmitRequest{StartIndex: 0, EndIndex: 1}, domain.ErrInvalidBaseURL},
		{"bad scheme", SubmitRequest{BaseURL: "ftp://x/y", EndIndex: 1}, domain.ErrInvalidBaseURL},
		{"no host", SubmitRequest{BaseURL: "https://", EndIndex: 1}, domain.ErrInvalidBaseURL},
		{"inverted range", SubmitRequest{BaseURL: "https://cdn.example.com/l", StartIndex: 5, EndIndex: 4}, domain.ErrInvalidRange},
		{"negative start", SubmitRequest{BaseURL: "https://cdn.example.com/l", StartIndex: -1, EndIndex: 4}, domain.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Submit(context.Background(), tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProcess_FullPipeline(t *testing.T) {
	engine := &fakeEngine{duration: 125}
	svc, recs := newTestLectureService(t, engine, &fakeTranscriber{}, &fakeNotes{})

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		Title:      "Databases, week 3",
		BaseURL:    "https://cdn.example.com/lec",
		StartIndex: 0,
		EndIndex:   2,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	seedSegments(t, resp.Recording.OutputDir, 3)

	if err := svc.Process(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("Status = %q (error %q), want completed", rec.Status, rec.Error)
	}
	if rec.SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", rec.SegmentCount)
	}
	if rec.VideoPath == "" {
		t.Error("VideoPath not set")
	} else if _, err := os.Stat(rec.VideoPath); err != nil {
		t.Errorf("merged video missing: %v", err)
	}
	// 125s at 60s clips = floor(125/60)+1 = 3.
	if rec.ClipCount != 3 {
		t.Errorf("ClipCount = %d, want 3", rec.ClipCount)
	}
	if rec.Pattern == nil || rec.Pattern.Prefix != "data" || rec.Pattern.Suffix != ".ts" {
		t.Errorf("Pattern = %+v", rec.Pattern)
	}
	if rec.ProcessedAt == nil {
		t.Error("ProcessedAt not set")
	}

	transcript, err := os.ReadFile(rec.TranscriptPath)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(transcript) != "hello lecture" {
		t.Errorf("transcript = %q", transcript)
	}

	notes, err := os.ReadFile(rec.NotesPath)
	if err != nil {
		t.Fatalf("read notes: %v", err)
	}
	if string(notes) != "## Databases, week 3" {
		t.Errorf("notes = %q", notes)
	}

	wantStatuses := []domain.RecordingStatus{
		domain.StatusDownloading,
		domain.StatusMerging,
		domain.StatusSplitting,
		domain.StatusTranscribing,
		domain.StatusGenerating,
		domain.StatusCompleted,
	}
	got := recs.statusHistory()
	if len(got) != len(wantStatuses) {
		t.Fatalf("status history = %v, want %v", got, wantStatuses)
	}
	for i := range wantStatuses {
		if got[i] != wantStatuses[i] {
			t.Errorf("status[%d] = %q, want %q", i, got[i], wantStatuses[i])
		}
	}
}

func TestProcess_DownloadsOverHTTP(t *testing.T) {
	body := bytes.Repeat([]byte{0x47}, hls.MinSegmentBytes+100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	engine := &fakeEngine{duration: 30}
	svc, recs := newTestLectureService(t, engine, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		Title:      "Networking, week 2",
		BaseURL:    server.URL + "/lec",
		StartIndex: 0,
		EndIndex:   4,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := svc.Process(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("Status = %q (error %q)", rec.Status, rec.Error)
	}
	if rec.SegmentCount != 5 {
		t.Errorf("SegmentCount = %d, want 5", rec.SegmentCount)
	}
	if rec.Pattern == nil {
		t.Fatal("detected pattern not persisted")
	}
}

func TestProcess_MergeFailureIsFatal(t *testing.T) {
	engine := &fakeEngine{duration: 30, concatErr: errors.New("concat blew up")}
	svc, recs := newTestLectureService(t, engine, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		BaseURL: "https://cdn.example.com/lec", StartIndex: 0, EndIndex: 1,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	seedSegments(t, resp.Recording.OutputDir, 2)

	err = svc.Process(context.Background(), resp.Recording.ID)
	if !errors.Is(err, domain.ErrMergeFailed) {
		t.Fatalf("Process error = %v, want ErrMergeFailed", err)
	}

	var recErr *domain.RecordingError
	if !errors.As(err, &recErr) || recErr.Op != "merge" {
		t.Errorf("error = %v, want RecordingError op merge", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}
	if rec.Error == "" {
		t.Error("failure message not persisted")
	}
}

func TestProcess_DownloadFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	svc, recs := newTestLectureService(t, &fakeEngine{duration: 30}, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		BaseURL: server.URL + "/lec", StartIndex: 0, EndIndex: 50,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err = svc.Process(context.Background(), resp.Recording.ID)
	if !errors.Is(err, domain.ErrPatternNotFound) {
		t.Fatalf("Process error = %v, want ErrPatternNotFound", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusFailed {
		t.Errorf("Status = %q, want failed", rec.Status)
	}
}

func TestProcess_TranscriptionFailureIsNonFatal(t *testing.T) {
	engine := &fakeEngine{duration: 30}
	svc, recs := newTestLectureService(t, engine, &fakeTranscriber{err: errors.New("whisper down")}, &fakeNotes{})

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		BaseURL: "https://cdn.example.com/lec", StartIndex: 0, EndIndex: 1,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	seedSegments(t, resp.Recording.OutputDir, 2)

	if err := svc.Process(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusCompleted {
		t.Errorf("Status = %q, want completed despite transcription failure", rec.Status)
	}
	if rec.TranscriptPath != "" {
		t.Errorf("TranscriptPath = %q, want empty", rec.TranscriptPath)
	}
	// Notes need a transcript; the stage must have been skipped.
	if rec.NotesPath != "" {
		t.Errorf("NotesPath = %q, want empty", rec.NotesPath)
	}
}

func TestProcess_OptionalStagesSkippedWhenUnconfigured(t *testing.T) {
	engine := &fakeEngine{duration: 30}
	svc, recs := newTestLectureService(t, engine, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		BaseURL: "https://cdn.example.com/lec", StartIndex: 0, EndIndex: 1,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	seedSegments(t, resp.Recording.OutputDir, 2)

	if err := svc.Process(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("Status = %q", rec.Status)
	}
	for _, status := range recs.statusHistory() {
		if status == domain.StatusTranscribing || status == domain.StatusGenerating {
			t.Errorf("unexpected optional stage %q", status)
		}
	}
}

func TestProcess_CustomClipDuration(t *testing.T) {
	engine := &fakeEngine{duration: 100}
	svc, recs := newTestLectureService(t, engine, nil, nil)

	resp, err := svc.Submit(context.Background(), SubmitRequest{
		BaseURL: "https://cdn.example.com/lec", StartIndex: 0, EndIndex: 1,
		ClipDuration: 30,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	seedSegments(t, resp.Recording.OutputDir, 2)

	if err := svc.Process(context.Background(), resp.Recording.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// 100s at 30s clips = floor(100/30)+1 = 4.
	rec, _ := recs.Get(context.Background(), resp.Recording.ID)
	if rec.ClipCount != 4 {
		t.Errorf("ClipCount = %d, want 4", rec.ClipCount)
	}
}

func TestProcess_UnknownRecording(t *testing.T) {
	svc, _ := newTestLectureService(t, &fakeEngine{}, nil, nil)
	err := svc.Process(context.Background(), "rec_missing")
	if !errors.Is(err, domain.ErrRecordingNotFound) {
		t.Errorf("Process error = %v, want ErrRecordingNotFound", err)
	}
}
