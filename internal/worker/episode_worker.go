package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docucast/api/internal/audio"
	"github.com/docucast/api/internal/client"
	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/internal/script"
	"github.com/docucast/api/internal/service"
	"github.com/docucast/api/internal/storage"
	"github.com/docucast/api/internal/websocket"
)

// Mock synthesis output matches the XTTS worker: 24kHz mono 16-bit
const (
	mockSampleRate = 24000
	mockSegmentDur = 2 * time.Second
)

// EpisodeWorker drives one job through both pipeline stages: script
// generation from the uploaded document, then per-segment voice synthesis
// and episode assembly.
type EpisodeWorker struct {
	podcastService *service.PodcastService
	generator      client.ScriptGenerator
	synthesizer    client.VoiceSynthesizer
	blobs          storage.BlobStore
	hub            *websocket.Hub

	speakers   map[string]string
	introKey   string
	genTimeout time.Duration
}

// NewEpisodeWorker creates a new episode worker
func NewEpisodeWorker(
	podcastService *service.PodcastService,
	generator client.ScriptGenerator,
	synthesizer client.VoiceSynthesizer,
	blobs storage.BlobStore,
	hub *websocket.Hub,
	speakers map[string]string,
	introKey string,
	genTimeout time.Duration,
) *EpisodeWorker {
	return &EpisodeWorker{
		podcastService: podcastService,
		generator:      generator,
		synthesizer:    synthesizer,
		blobs:          blobs,
		hub:            hub,
		speakers:       speakers,
		introKey:       introKey,
		genTimeout:     genTimeout,
	}
}

// ProcessTask handles episode task processing
func (w *EpisodeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.EpisodeTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := payload.JobID
	log.Printf("Starting episode job: %s", jobID)

	job, err := w.podcastService.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	// A redelivered or duplicated task must never touch a job that already
	// ran: only a pending record may enter the pipeline.
	if job.Status.Terminal() {
		log.Printf("Episode job %s already %s, skipping", jobID, job.Status)
		return nil
	}
	if job.Status != model.JobStatusPending {
		log.Printf("Episode job %s already in progress (%s), skipping", jobID, job.Status)
		return nil
	}

	segments, err := w.generateScript(ctx, job)
	if err != nil {
		return err
	}

	return w.synthesizeEpisode(ctx, job, segments)
}

// generateScript runs the first pipeline stage and stores the parsed script
func (w *EpisodeWorker) generateScript(ctx context.Context, job *model.Job) ([]model.ScriptSegment, error) {
	jobID := job.ID

	if _, err := w.podcastService.MarkGeneratingScript(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to start script generation for %s: %w", jobID, err)
	}
	w.hub.BroadcastStatus(jobID, model.JobStatusGeneratingScript, "Generating narration script")

	document, err := w.blobs.Get(ctx, job.DocumentKey)
	if err != nil {
		w.failJob(ctx, jobID, model.ErrorKindGeneration, "uploaded document is no longer available")
		return nil, fmt.Errorf("failed to load document for %s: %w", jobID, err)
	}

	var raw string
	if w.generator != nil && w.generator.IsConfigured() {
		genCtx, cancel := context.WithTimeout(ctx, w.genTimeout)
		defer cancel()

		prompt := script.BuildPrompt(job.DocumentName, job.Language)
		raw, err = w.generator.GenerateScript(genCtx, prompt, document)
		if err != nil {
			kind := model.ErrorKindGeneration
			if errors.Is(err, context.DeadlineExceeded) {
				kind = model.ErrorKindTimeout
			}
			w.failJob(ctx, jobID, kind, fmt.Sprintf("script generation failed: %v", err))
			return nil, err
		}
	} else {
		log.Printf("Script generator not configured, using mock script for %s", jobID)
		raw = mockScript(job.DocumentName)
	}

	segments := script.Parse(raw)
	if len(segments) == 0 {
		w.failJob(ctx, jobID, model.ErrorKindGeneration, "model produced no usable dialogue")
		return nil, fmt.Errorf("job %s: no dialogue lines in model output", jobID)
	}

	if _, err := w.podcastService.StoreScript(ctx, jobID, segments); err != nil {
		return nil, fmt.Errorf("failed to store script for %s: %w", jobID, err)
	}
	w.hub.BroadcastStatus(jobID, model.JobStatusSynthesizingAudio, "Synthesizing audio")

	return segments, nil
}

// synthesizeEpisode runs the second pipeline stage: per-segment synthesis,
// episode assembly and upload
func (w *EpisodeWorker) synthesizeEpisode(ctx context.Context, job *model.Job, segments []model.ScriptSegment) error {
	jobID := job.ID

	var files [][]byte
	if intro := w.loadIntro(ctx); intro != nil {
		files = append(files, intro)
	}

	synthesized := 0
	for i, seg := range segments {
		speakerRef, ok := w.speakerRef(seg.Speaker)
		if !ok {
			log.Printf("Job %s: no voice configured for speaker %q, skipping segment %d", jobID, seg.Speaker, i+1)
			continue
		}

		message := fmt.Sprintf("Synthesizing segment %d/%d", i+1, len(segments))
		if _, err := w.podcastService.UpdateMessage(ctx, jobID, message); err != nil {
			log.Printf("Failed to update progress for %s: %v", jobID, err)
		}
		w.hub.BroadcastStatus(jobID, model.JobStatusSynthesizingAudio, message)

		wav, err := w.synthesizeSegment(ctx, seg, speakerRef, job.Language)
		if err != nil {
			kind := model.ErrorKindSynthesis
			if errors.Is(err, client.ErrSynthesisTimeout) {
				kind = model.ErrorKindTimeout
			}
			w.failJob(ctx, jobID, kind, fmt.Sprintf("segment %d synthesis failed: %v", i+1, err))
			return err
		}

		files = append(files, wav)
		synthesized++
	}

	if synthesized == 0 {
		w.failJob(ctx, jobID, model.ErrorKindSynthesis, "no segment could be matched to a configured voice")
		return fmt.Errorf("job %s: no synthesizable segments", jobID)
	}

	episode, err := audio.Concat(files...)
	if err != nil {
		w.failJob(ctx, jobID, model.ErrorKindSynthesis, fmt.Sprintf("failed to assemble episode: %v", err))
		return err
	}

	resultKey := fmt.Sprintf("episodes/%s.wav", jobID)
	if err := w.blobs.Put(ctx, resultKey, episode, "audio/wav"); err != nil {
		w.failJob(ctx, jobID, model.ErrorKindSynthesis, "failed to store episode audio")
		return err
	}

	// The source document has served its purpose
	if err := w.blobs.Delete(ctx, job.DocumentKey); err != nil {
		log.Printf("Failed to delete source document for %s: %v", jobID, err)
	}

	if _, err := w.podcastService.CompleteJob(ctx, jobID, resultKey); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}

	w.hub.BroadcastComplete(jobID)
	log.Printf("Episode job %s completed (%d segments)", jobID, synthesized)
	return nil
}

func (w *EpisodeWorker) synthesizeSegment(ctx context.Context, seg model.ScriptSegment, speakerRef, language string) ([]byte, error) {
	if w.synthesizer == nil || !w.synthesizer.IsConfigured() {
		return audio.Silence(mockSegmentDur, mockSampleRate, 1, 16), nil
	}
	return w.synthesizer.Synthesize(ctx, seg.Text, speakerRef, language)
}

// speakerRef resolves a script speaker code to a reference voice sample.
// Config loaded through env vars arrives with lowercased keys, so the
// lookup tries the exact code first and its lowercase form second.
func (w *EpisodeWorker) speakerRef(speaker string) (string, bool) {
	if ref, ok := w.speakers[speaker]; ok {
		return ref, true
	}
	ref, ok := w.speakers[strings.ToLower(speaker)]
	return ref, ok
}

func (w *EpisodeWorker) loadIntro(ctx context.Context) []byte {
	if w.introKey == "" {
		return nil
	}
	intro, err := w.blobs.Get(ctx, w.introKey)
	if err != nil {
		log.Printf("Intro jingle %q unavailable, continuing without it: %v", w.introKey, err)
		return nil
	}
	return intro
}

func (w *EpisodeWorker) failJob(ctx context.Context, jobID string, kind model.ErrorKind, message string) {
	job, err := w.podcastService.FailJob(ctx, jobID, kind, message)
	if err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
		return
	}
	if job.Error != nil {
		w.hub.BroadcastError(jobID, *job.Error)
	}
}

func mockScript(documentName string) string {
	title := documentName
	if title == "" {
		title = "your document"
	}
	return fmt.Sprintf(`Speaker A: Welcome to the show! Today we're walking through %s.
Speaker B: There's a lot in here, so let's hit the highlights.
Speaker A: Agreed. The main takeaway is right up front.
Speaker B: And the details are worth a closer read afterwards.
Speaker A: That's all for this episode. Thanks for listening!`, title)
}
