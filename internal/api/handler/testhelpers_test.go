package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/lectura/internal/domain"
	"github.com/iconidentify/lectura/internal/repository"
	"github.com/iconidentify/lectura/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockJobRepository is a test implementation of repository.JobRepository.
type mockJobRepository struct {
	stats    *repository.QueueStats
	statsErr error
	jobs     map[domain.JobID]*domain.Job
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{
		stats: &repository.QueueStats{},
		jobs:  make(map[domain.JobID]*domain.Job),
	}
}

func (m *mockJobRepository) Enqueue(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) Dequeue(ctx context.Context) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued {
			return job, nil
		}
	}
	return nil, domain.ErrNoJobs
}

func (m *mockJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if job, ok := m.jobs[id]; ok {
		return job, nil
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) GetByRecordingID(ctx context.Context, recordingID domain.RecordingID) (*domain.Job, error) {
	for _, job := range m.jobs {
		if job.RecordingID == recordingID {
			return job, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockJobRepository) Update(ctx context.Context, job *domain.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepository) ListPending(ctx context.Context) ([]*domain.Job, error) {
	var pending []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued || job.Status == domain.JobStatusRetrying {
			pending = append(pending, job)
		}
	}
	return pending, nil
}

func (m *mockJobRepository) Stats(ctx context.Context) (*repository.QueueStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockLectureService is a test implementation of LectureService.
type mockLectureService struct {
	recordings map[domain.RecordingID]*domain.Recording
	submitErr  error
	listErr    error
	deleteErr  error
}

func newMockLectureService() *mockLectureService {
	return &mockLectureService{
		recordings: make(map[domain.RecordingID]*domain.Recording),
	}
}

func (m *mockLectureService) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResponse, error) {
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	rec := &domain.Recording{
		ID:         "rec_test1",
		Title:      req.Title,
		BaseURL:    req.BaseURL,
		StartIndex: req.StartIndex,
		EndIndex:   req.EndIndex,
		Status:     domain.StatusPending,
	}
	m.recordings[rec.ID] = rec
	return &service.SubmitResponse{
		Recording: rec,
		Job:       domain.NewJob("job_test1", rec.ID, 3),
	}, nil
}

func (m *mockLectureService) Get(ctx context.Context, id domain.RecordingID) (*domain.Recording, error) {
	if rec, ok := m.recordings[id]; ok {
		return rec, nil
	}
	return nil, domain.ErrRecordingNotFound
}

func (m *mockLectureService) List(ctx context.Context, status *domain.RecordingStatus, limit, offset int) ([]*domain.Recording, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []*domain.Recording
	for _, rec := range m.recordings {
		if status == nil || rec.Status == *status {
			out = append(out, rec)
		}
	}
	return out, len(out), nil
}

func (m *mockLectureService) Delete(ctx context.Context, id domain.RecordingID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.recordings[id]; !ok {
		return domain.ErrRecordingNotFound
	}
	delete(m.recordings, id)
	return nil
}
