package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/internal/storage"
	"github.com/docucast/api/internal/store"
)

type recordingDispatcher struct {
	dispatched []string
	err        error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, jobID string) error {
	if d.err != nil {
		return d.err
	}
	d.dispatched = append(d.dispatched, jobID)
	return nil
}

func newTestService(t *testing.T) (*PodcastService, *recordingDispatcher, store.Store, storage.BlobStore) {
	t.Helper()
	st := store.NewMemoryStore()
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	dispatcher := &recordingDispatcher{}
	return NewPodcastService(st, blobs, dispatcher), dispatcher, st, blobs
}

var pdfBytes = []byte("%PDF-1.4\nfake document content")

func TestGenerate_CreatesPendingJob(t *testing.T) {
	svc, dispatcher, st, blobs := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job id")
	}
	if resp.Status != model.JobStatusPending {
		t.Errorf("expected pending status, got %s", resp.Status)
	}

	job, err := st.Get(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("job record not stored: %v", err)
	}
	if job.Language != "en" {
		t.Errorf("expected default language en, got %q", job.Language)
	}
	if _, err := blobs.Get(ctx, job.DocumentKey); err != nil {
		t.Errorf("document not stored: %v", err)
	}
	if len(dispatcher.dispatched) != 1 || dispatcher.dispatched[0] != resp.JobID {
		t.Errorf("job not dispatched: %v", dispatcher.dispatched)
	}
}

func TestGenerate_FreshIDPerSubmission(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Generate(ctx, pdfBytes, "same.pdf", &model.GenerateRequest{})
	if err != nil {
		t.Fatalf("first Generate failed: %v", err)
	}
	b, err := svc.Generate(ctx, pdfBytes, "same.pdf", &model.GenerateRequest{})
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	if a.JobID == b.JobID {
		t.Error("identical submissions must still get distinct job ids")
	}
}

func TestGenerate_RejectsInvalidInput(t *testing.T) {
	svc, dispatcher, _, _ := newTestService(t)
	ctx := context.Background()

	for name, doc := range map[string][]byte{
		"empty":   {},
		"not pdf": []byte("hello world"),
	} {
		if _, err := svc.Generate(ctx, doc, "doc.pdf", &model.GenerateRequest{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if len(dispatcher.dispatched) != 0 {
		t.Error("rejected submissions must not be dispatched")
	}
}

func TestGenerate_DispatchFailureFailsJob(t *testing.T) {
	svc, dispatcher, st, _ := newTestService(t)
	dispatcher.err = errors.New("broker down")
	ctx := context.Background()

	_, err := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	if err == nil {
		t.Fatal("expected error when dispatch fails")
	}

	// The orphaned record must land in failed, not linger pending
	stale, err := st.ScanStale(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("undispatched job left non-terminal: %+v", stale[0])
	}
}

func TestTransitions_HappyPath(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	resp, _ := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	jobID := resp.JobID

	job, err := svc.MarkGeneratingScript(ctx, jobID)
	if err != nil {
		t.Fatalf("MarkGeneratingScript: %v", err)
	}
	if job.Status != model.JobStatusGeneratingScript {
		t.Errorf("expected generating_script, got %s", job.Status)
	}

	segments := []model.ScriptSegment{{Speaker: "A", Text: "Hello."}}
	job, err = svc.StoreScript(ctx, jobID, segments)
	if err != nil {
		t.Fatalf("StoreScript: %v", err)
	}
	if job.Status != model.JobStatusSynthesizingAudio {
		t.Errorf("expected synthesizing_audio, got %s", job.Status)
	}

	job, err = svc.CompleteJob(ctx, jobID, "episodes/"+jobID+".wav")
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if job.Status != model.JobStatusCompleted || job.ResultKey == "" {
		t.Errorf("unexpected completed record: %+v", job)
	}
}

func TestTransitions_RejectOutOfOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	resp, _ := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	jobID := resp.JobID

	// Still pending: completing or storing a script must be refused
	if _, err := svc.CompleteJob(ctx, jobID, "x"); err == nil {
		t.Error("CompleteJob from pending should fail")
	}
	if _, err := svc.StoreScript(ctx, jobID, nil); err == nil {
		t.Error("StoreScript from pending should fail")
	}

	// Re-entering the first stage is also refused
	if _, err := svc.MarkGeneratingScript(ctx, jobID); err != nil {
		t.Fatalf("MarkGeneratingScript: %v", err)
	}
	if _, err := svc.MarkGeneratingScript(ctx, jobID); err == nil {
		t.Error("MarkGeneratingScript twice should fail")
	}
}

func TestFailJob_TerminalImmutability(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	resp, _ := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	jobID := resp.JobID

	if _, err := svc.FailJob(ctx, jobID, model.ErrorKindGeneration, "model unavailable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	// Terminal records reject every further mutation
	if _, err := svc.FailJob(ctx, jobID, model.ErrorKindSynthesis, "again"); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("second FailJob: expected ErrJobTerminal, got %v", err)
	}
	if _, err := svc.CompleteJob(ctx, jobID, "x"); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("CompleteJob after failure: expected ErrJobTerminal, got %v", err)
	}
	if _, err := svc.UpdateMessage(ctx, jobID, "still going"); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("UpdateMessage after failure: expected ErrJobTerminal, got %v", err)
	}

	status, err := svc.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Error == nil || status.Error.Kind != model.ErrorKindGeneration {
		t.Errorf("first failure detail lost: %+v", status.Error)
	}
}

func TestGetScript_RetainedAfterSynthesisFailure(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	resp, _ := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	jobID := resp.JobID
	svc.MarkGeneratingScript(ctx, jobID)
	segments := []model.ScriptSegment{{Speaker: "A", Text: "Hello."}, {Speaker: "B", Text: "Hi."}}
	svc.StoreScript(ctx, jobID, segments)
	svc.FailJob(ctx, jobID, model.ErrorKindSynthesis, "endpoint unreachable")

	script, err := svc.GetScript(ctx, jobID)
	if err != nil {
		t.Fatalf("script should survive synthesis failure: %v", err)
	}
	if len(script.Segments) != 2 {
		t.Errorf("expected 2 segments, got %d", len(script.Segments))
	}

	if _, err := svc.GetResult(ctx, jobID); !errors.Is(err, ErrJobFailed) {
		t.Errorf("expected ErrJobFailed, got %v", err)
	}
}

func TestGetResult_Gating(t *testing.T) {
	svc, _, _, blobs := newTestService(t)
	ctx := context.Background()

	resp, _ := svc.Generate(ctx, pdfBytes, "report.pdf", &model.GenerateRequest{})
	jobID := resp.JobID

	if _, err := svc.GetResult(ctx, jobID); !errors.Is(err, ErrNotReady) {
		t.Errorf("pending result: expected ErrNotReady, got %v", err)
	}

	svc.MarkGeneratingScript(ctx, jobID)
	svc.StoreScript(ctx, jobID, []model.ScriptSegment{{Speaker: "A", Text: "Hi."}})

	resultKey := "episodes/" + jobID + ".wav"
	wav := []byte("RIFFfakeWAVE")
	if err := blobs.Put(ctx, resultKey, wav, "audio/wav"); err != nil {
		t.Fatalf("put: %v", err)
	}
	svc.CompleteJob(ctx, jobID, resultKey)

	audio, err := svc.GetResult(ctx, jobID)
	if err != nil {
		t.Fatalf("completed result: %v", err)
	}
	if string(audio) != string(wav) {
		t.Error("result bytes do not match stored audio")
	}
}

func TestGetStatus_UnknownJob(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.GetStatus(context.Background(), "no-such-id"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected store.ErrNotFound, got %v", err)
	}
}
