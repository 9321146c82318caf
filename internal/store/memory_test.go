package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docucast/api/internal/model"
)

func newTestJob(id string) *model.Job {
	now := time.Now()
	return &model.Job{
		ID:          id,
		Status:      model.JobStatusPending,
		Message:     "Waiting to start",
		DocumentKey: "uploads/" + id + ".pdf",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := newTestJob("job-1")
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.JobStatusPending {
		t.Errorf("expected status pending, got %s", got.Status)
	}

	// Mutating the returned record must not touch stored state
	got.Status = model.JobStatusFailed
	again, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.Status != model.JobStatusPending {
		t.Errorf("stored record was aliased by a read")
	}
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.Create(ctx, newTestJob("job-1")); err == nil {
		t.Error("expected error on duplicate id")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Update(context.Background(), "missing", func(j *model.Job) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateMutateErrorLeavesRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update(ctx, "job-1", func(j *model.Job) error {
		j.Status = model.JobStatusFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.JobStatusPending {
		t.Errorf("aborted update leaked into stored record: %s", got.Status)
	}
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Update(ctx, "job-1", func(j *model.Job) error {
				j.Message = fmt.Sprintf("update %d", n)
				j.Script = append(j.Script, model.ScriptSegment{Speaker: "A", Text: "line"})
				return nil
			})
			if err != nil {
				t.Errorf("update failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Script) != writers {
		t.Errorf("expected %d appended segments, got %d (lost update)", writers, len(got.Script))
	}
}

func TestMemoryStore_ScanStale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	old := newTestJob("old-running")
	old.Status = model.JobStatusSynthesizingAudio
	old.UpdatedAt = time.Now().Add(-time.Hour)
	if err := s.Create(ctx, old); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	done := newTestJob("old-done")
	done.Status = model.JobStatusCompleted
	done.UpdatedAt = time.Now().Add(-time.Hour)
	if err := s.Create(ctx, done); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fresh := newTestJob("fresh")
	if err := s.Create(ctx, fresh); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stale, err := s.ScanStale(ctx, time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "old-running" {
		t.Errorf("expected only old-running to be stale, got %v", stale)
	}
}
