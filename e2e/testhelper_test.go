package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/docucast/api/internal/handler"
	"github.com/docucast/api/internal/middleware"
	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/internal/service"
	"github.com/docucast/api/internal/storage"
	"github.com/docucast/api/internal/store"
	"github.com/docucast/api/internal/websocket"
	"github.com/docucast/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	store   store.Store
	blobs   storage.BlobStore
	service *service.PodcastService
	auth    *middleware.AuthMiddleware
}

// inlineDispatcher runs the episode worker in a goroutine instead of going
// through Redis, so the full pipeline can be exercised in-process.
type inlineDispatcher struct {
	worker *worker.EpisodeWorker
}

func (d *inlineDispatcher) Dispatch(_ context.Context, jobID string) error {
	payload, err := json.Marshal(&service.EpisodeTaskPayload{JobID: jobID})
	if err != nil {
		return err
	}
	go func() {
		// The worker reports failures on the job record; a returned error
		// here only means the record is already settled.
		_ = d.worker.ProcessTask(context.Background(),
			asynq.NewTask(service.TaskTypeEpisode, payload))
	}()
	return nil
}

// setupApp wires the same routes as main.go on top of in-memory stores and
// unconfigured external clients, so every pipeline run uses the mock paths.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobStore := store.NewMemoryStore()
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	dispatcher := &inlineDispatcher{}
	podcastService := service.NewPodcastService(jobStore, blobs, dispatcher)

	speakers := map[string]string{"a": "philip.wav", "b": "oskar.wav"}
	dispatcher.worker = worker.NewEpisodeWorker(
		podcastService, nil, nil, blobs, hub, speakers, "", 30*time.Second)

	validate := validator.New()
	podcastHandler := handler.NewPodcastHandler(podcastService, validate, 50*1024*1024)
	voicesHandler := handler.NewVoicesHandler(speakers)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"gemini": false,
				"runpod": false,
				"redis":  false,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	podcast := api.Group("/podcast")
	podcast.Post("/generate", podcastHandler.Generate)
	podcast.Get("/status/:jobId", podcastHandler.Status)
	podcast.Get("/result/:jobId", podcastHandler.Result)
	podcast.Get("/script/:jobId", podcastHandler.Script)

	api.Get("/voices", voicesHandler.List)

	return &testApp{
		app:     app,
		store:   jobStore,
		blobs:   blobs,
		service: podcastService,
		auth:    authMiddleware,
	}
}

// generateToken creates an HMAC JWT token for test requests
func generateToken(t *testing.T, ta *testApp) string {
	t.Helper()
	token, err := ta.auth.GenerateToken("test-user-123", "test@example.com")
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app
func doRequest(ta *testApp, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return ta.app.Test(req, -1)
}

// doAuthRequest performs an authenticated request
func doAuthRequest(t *testing.T, ta *testApp, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	t.Helper()
	headers := map[string]string{
		"Authorization": "Bearer " + generateToken(t, ta),
	}
	if contentType != "" {
		headers["Content-Type"] = contentType
	}
	return doRequest(ta, method, path, body, headers)
}

// pdfUpload builds a multipart body holding a minimal valid PDF plus any
// extra form fields
func pdfUpload(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="document"; filename=%q`, filename)}
	h["Content-Type"] = []string{"application/pdf"}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("failed to create multipart file: %v", err)
	}
	if _, err := part.Write([]byte("%PDF-1.4\nfake document body for tests")); err != nil {
		t.Fatalf("failed to write multipart file: %v", err)
	}

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field %s: %v", k, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// submitPodcast uploads a PDF and returns the assigned job id
func submitPodcast(t *testing.T, ta *testApp) string {
	t.Helper()
	body, contentType := pdfUpload(t, "report.pdf", nil)
	resp, err := doAuthRequest(t, ta, http.MethodPost, "/api/podcast/generate", body, contentType)
	if err != nil {
		t.Fatalf("generate request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)
	result := parseJSON(t, resp)
	jobID, _ := result["jobId"].(string)
	if jobID == "" {
		t.Fatalf("no job id in response: %v", result)
	}
	return jobID
}

// waitForStatus polls the job store until the job reaches want or the
// deadline passes
func waitForStatus(t *testing.T, ta *testApp, jobID string, want model.JobStatus) *model.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := ta.store.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("job lookup failed: %v", err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.Terminal() {
			t.Fatalf("job settled in %s while waiting for %s (%+v)", job.Status, want, job.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", jobID, want)
	return nil
}

// readBody reads and returns the response body as a string
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
