package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/internal/storage"
	"github.com/docucast/api/internal/store"
)

const (
	TaskTypeEpisode = "episode:process"
	QueueEpisodes   = "episodes"
)

// EpisodeTaskPayload is the asynq task body; everything else lives on the
// job record.
type EpisodeTaskPayload struct {
	JobID string `json:"jobId"`
}

var (
	// ErrInvalidInput marks a submission rejected before any job is created.
	ErrInvalidInput = errors.New("invalid input document")
	// ErrNotReady is returned when a result or script is requested before the
	// pipeline has produced it.
	ErrNotReady = errors.New("job not ready")
	// ErrJobFailed is returned when the result of a failed job is requested.
	ErrJobFailed = errors.New("job failed")
	// ErrJobTerminal rejects a state transition on a completed or failed job.
	ErrJobTerminal = errors.New("job already in terminal state")
)

// TaskDispatcher hands a job id to the background pipeline. The production
// implementation enqueues via asynq; tests run the worker inline.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// AsynqDispatcher enqueues episode tasks on the shared Redis broker
type AsynqDispatcher struct {
	client    *asynq.Client
	retention time.Duration
}

func NewAsynqDispatcher(client *asynq.Client, retention time.Duration) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, retention: retention}
}

func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(&EpisodeTaskPayload{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	// Failures are surfaced on the job record, never re-run: a retried task
	// could re-enter a pipeline stage the first attempt already passed.
	_, err = d.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeEpisode, payload),
		asynq.Queue(QueueEpisodes),
		asynq.MaxRetry(0),
		asynq.Retention(d.retention),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// PodcastService handles episode job management
type PodcastService struct {
	store      store.Store
	blobs      storage.BlobStore
	dispatcher TaskDispatcher
}

func NewPodcastService(st store.Store, blobs storage.BlobStore, dispatcher TaskDispatcher) *PodcastService {
	return &PodcastService{
		store:      st,
		blobs:      blobs,
		dispatcher: dispatcher,
	}
}

// Generate validates the uploaded document, creates the job record and hands
// it to the pipeline. Validation failures reject the request synchronously;
// no job record is created for them.
func (s *PodcastService) Generate(ctx context.Context, document []byte, documentName string, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if len(document) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidInput)
	}
	if !bytes.HasPrefix(document, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: not a PDF document", ErrInvalidInput)
	}

	language := req.Language
	if language == "" {
		language = string(model.LanguageEN)
	}

	jobID := uuid.New().String()
	now := time.Now()

	documentKey := fmt.Sprintf("uploads/%s.pdf", jobID)
	if err := s.blobs.Put(ctx, documentKey, document, "application/pdf"); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	job := &model.Job{
		ID:           jobID,
		Status:       model.JobStatusPending,
		Message:      "Queued for processing",
		DocumentKey:  documentKey,
		DocumentName: documentName,
		Language:     language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Title != "" {
		job.DocumentName = req.Title
	}

	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, jobID); err != nil {
		// The record exists but nothing will ever pick it up; fail it so
		// pollers see a terminal state instead of an eternal pending.
		if _, failErr := s.FailJob(ctx, jobID, model.ErrorKindGeneration, "failed to queue job for processing"); failErr != nil {
			log.Printf("[PodcastService] Could not fail undispatched job %s: %v", jobID, failErr)
		}
		return nil, fmt.Errorf("failed to dispatch job: %w", err)
	}

	return &model.GenerateResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the poller view of a job
func (s *PodcastService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.StatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Message:   job.Message,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

// GetScript returns the generated script once the first stage has produced
// it. The script stays retrievable after a later synthesis failure.
func (s *PodcastService) GetScript(ctx context.Context, jobID string) (*model.ScriptResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if len(job.Script) == 0 {
		return nil, fmt.Errorf("%w: script not generated yet", ErrNotReady)
	}

	return &model.ScriptResponse{
		JobID:    job.ID,
		Segments: job.Script,
	}, nil
}

// GetResult returns the finished episode audio. Only a completed job has a
// result; a failed job reports its stored error instead.
func (s *PodcastService) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch {
	case job.Status == model.JobStatusCompleted:
		audio, err := s.blobs.Get(ctx, job.ResultKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load result audio: %w", err)
		}
		return audio, nil
	case job.Status == model.JobStatusFailed:
		if job.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrJobFailed, job.Error.Kind, job.Error.Message)
		}
		return nil, ErrJobFailed
	default:
		return nil, fmt.Errorf("%w: job is %s", ErrNotReady, job.Status)
	}
}

// GetJob returns the raw job record (worker-side)
func (s *PodcastService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Get(ctx, jobID)
}

// MarkGeneratingScript moves a pending job into the first pipeline stage
func (s *PodcastService) MarkGeneratingScript(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return ErrJobTerminal
		}
		if job.Status != model.JobStatusPending {
			return fmt.Errorf("cannot start script generation from %s", job.Status)
		}
		job.Status = model.JobStatusGeneratingScript
		job.Message = "Generating narration script"
		return nil
	})
}

// StoreScript records the parsed script and moves the job into synthesis
func (s *PodcastService) StoreScript(ctx context.Context, jobID string, segments []model.ScriptSegment) (*model.Job, error) {
	return s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return ErrJobTerminal
		}
		if job.Status != model.JobStatusGeneratingScript {
			return fmt.Errorf("cannot store script from %s", job.Status)
		}
		job.Status = model.JobStatusSynthesizingAudio
		job.Message = "Synthesizing audio"
		job.Script = segments
		return nil
	})
}

// UpdateMessage refreshes the progress message without changing status
func (s *PodcastService) UpdateMessage(ctx context.Context, jobID, message string) (*model.Job, error) {
	return s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return ErrJobTerminal
		}
		job.Message = message
		return nil
	})
}

// CompleteJob records the result location and marks the job completed
func (s *PodcastService) CompleteJob(ctx context.Context, jobID, resultKey string) (*model.Job, error) {
	return s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return ErrJobTerminal
		}
		if job.Status != model.JobStatusSynthesizingAudio {
			return fmt.Errorf("cannot complete from %s", job.Status)
		}
		job.Status = model.JobStatusCompleted
		job.Message = "Episode ready"
		job.ResultKey = resultKey
		job.Error = nil
		return nil
	})
}

// FailJob marks the job failed with a structured error. Already-terminal
// jobs are left untouched. Any script stored before the failure survives.
func (s *PodcastService) FailJob(ctx context.Context, jobID string, kind model.ErrorKind, message string) (*model.Job, error) {
	return s.store.Update(ctx, jobID, func(job *model.Job) error {
		if job.Status.Terminal() {
			return ErrJobTerminal
		}
		job.Status = model.JobStatusFailed
		job.Message = "Processing failed"
		job.Error = &model.JobError{Kind: kind, Message: message}
		return nil
	})
}
