package repository

import (
	"context"
	"testing"

	"github.com/iconidentify/lectura/internal/domain"
)

func TestInMemoryJobRepository_EnqueueDequeue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job1 := domain.NewJob("job-1", "rec-1", 3)
	job2 := domain.NewJob("job-2", "rec-2", 3)

	if err := repo.Enqueue(ctx, job1); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := repo.Enqueue(ctx, job2); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// FIFO order
	got, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "job-1" {
		t.Errorf("Dequeue returned %s, want job-1", got.ID)
	}

	got, err = repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got.ID != "job-2" {
		t.Errorf("Dequeue returned %s, want job-2", got.ID)
	}
}

func TestInMemoryJobRepository_DequeueEmpty(t *testing.T) {
	repo := NewInMemoryJobRepository()

	if _, err := repo.Dequeue(context.Background()); err != domain.ErrNoJobs {
		t.Errorf("Dequeue on empty queue = %v, want %v", err, domain.ErrNoJobs)
	}
}

func TestInMemoryJobRepository_RetryingRejoinsQueue(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := domain.NewJob("job-1", "rec-1", 3)
	if err := repo.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	dequeued, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}

	dequeued.MarkProcessing()
	dequeued.MarkFailed("segment fetch failed")
	if dequeued.Status != domain.JobStatusRetrying {
		t.Fatalf("job status = %s, want %s", dequeued.Status, domain.JobStatusRetrying)
	}
	if err := repo.Update(ctx, dequeued); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// The retrying job must come back out of the queue.
	again, err := repo.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue after retry failed: %v", err)
	}
	if again.ID != "job-1" {
		t.Errorf("Dequeue returned %s, want job-1", again.ID)
	}
}

func TestInMemoryJobRepository_UpdateUnknownJob(t *testing.T) {
	repo := NewInMemoryJobRepository()

	job := domain.NewJob("ghost", "rec-1", 3)
	if err := repo.Update(context.Background(), job); err != domain.ErrJobNotFound {
		t.Errorf("Update = %v, want %v", err, domain.ErrJobNotFound)
	}
}

func TestInMemoryJobRepository_GetByRecordingID(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	job := domain.NewJob("job-1", "rec-42", 3)
	if err := repo.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	got, err := repo.GetByRecordingID(ctx, "rec-42")
	if err != nil {
		t.Fatalf("GetByRecordingID failed: %v", err)
	}
	if got.ID != "job-1" {
		t.Errorf("GetByRecordingID returned %s, want job-1", got.ID)
	}

	if _, err := repo.GetByRecordingID(ctx, "rec-unknown"); err != domain.ErrJobNotFound {
		t.Errorf("GetByRecordingID = %v, want %v", err, domain.ErrJobNotFound)
	}
}

func TestInMemoryJobRepository_Stats(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	queued := domain.NewJob("job-1", "rec-1", 3)
	processing := domain.NewJob("job-2", "rec-2", 3)
	processing.MarkProcessing()
	failed := domain.NewJob("job-3", "rec-3", 0)
	failed.MarkFailed("no segments")

	for _, job := range []*domain.Job{queued, processing, failed} {
		if err := repo.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Queued != 1 || stats.Processing != 1 || stats.Failed != 1 {
		t.Errorf("Stats = %+v, want 1 queued, 1 processing, 1 failed", stats)
	}
}

func TestInMemoryJobRepository_ListPending(t *testing.T) {
	repo := NewInMemoryJobRepository()
	ctx := context.Background()

	queued := domain.NewJob("job-1", "rec-1", 3)
	completed := domain.NewJob("job-2", "rec-2", 3)
	completed.MarkCompleted()

	if err := repo.Enqueue(ctx, queued); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := repo.Enqueue(ctx, completed); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "job-1" {
		t.Errorf("ListPending = %v, want only job-1", pending)
	}
}
