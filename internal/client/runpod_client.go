package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/docucast/api/internal/config"
)

// ErrSynthesisTimeout marks a synthesis job abandoned after the configured
// wait. The remote job is not polled further once this is returned.
var ErrSynthesisTimeout = errors.New("synthesis timed out")

// VoiceSynthesizer defines the voice-synthesis capability consumed by the
// episode worker. speakerRef names a reference voice sample known to the
// synthesis worker.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text, speakerRef, language string) ([]byte, error)
	IsConfigured() bool
}

// RunPodClient implements VoiceSynthesizer against a RunPod serverless
// endpoint hosting the XTTS model. Jobs are submitted asynchronously and
// polled until completion.
type RunPodClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	endpointID   string
	pollInterval time.Duration
	jobTimeout   time.Duration
}

type runPodInput struct {
	Text            string `json:"text"`
	SpeakerFilename string `json:"speaker_filename"`
	Language        string `json:"language"`
}

type runPodSubmitRequest struct {
	Input runPodInput `json:"input"`
}

type runPodOutput struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error"`
}

type runPodJobStatus struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Output *runPodOutput `json:"output,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// NewRunPodClient creates a new RunPod serverless client
func NewRunPodClient(cfg *config.RunPodConfig) *RunPodClient {
	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	if cfg.PollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &RunPodClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		endpointID:   cfg.EndpointID,
		pollInterval: pollInterval,
		jobTimeout:   time.Duration(cfg.JobTimeout) * time.Second,
	}
}

// Synthesize submits one script segment to the endpoint and polls until the
// remote job finishes, returning the decoded WAV bytes. The call is bounded
// by the configured job timeout.
func (c *RunPodClient) Synthesize(ctx context.Context, text, speakerRef, language string) ([]byte, error) {
	submitted, err := c.submit(ctx, runPodInput{
		Text:            text,
		SpeakerFilename: speakerRef,
		Language:        language,
	})
	if err != nil {
		return nil, err
	}

	return c.poll(ctx, submitted.ID)
}

func (c *RunPodClient) submit(ctx context.Context, input runPodInput) (*runPodJobStatus, error) {
	endpoint := fmt.Sprintf("/v2/%s/run", c.endpointID)
	var result runPodJobStatus
	if err := c.post(ctx, endpoint, &runPodSubmitRequest{Input: input}, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, fmt.Errorf("runpod submission response missing job id")
	}
	log.Printf("[RunPod API] Submitted synthesis job %s (speaker=%s)", result.ID, input.SpeakerFilename)
	return &result, nil
}

func (c *RunPodClient) poll(ctx context.Context, remoteID string) ([]byte, error) {
	endpoint := fmt.Sprintf("/v2/%s/status/%s", c.endpointID, remoteID)
	deadline := time.Now().Add(c.jobTimeout)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		var status runPodJobStatus
		if err := c.get(ctx, endpoint, &status); err != nil {
			return nil, err
		}

		log.Printf("[RunPod API] Poll #%d (job=%s) — status: %s", attempt, remoteID, status.Status)

		switch status.Status {
		case "COMPLETED":
			return decodeAudio(&status)
		case "FAILED":
			msg := status.Error
			if msg == "" && status.Output != nil {
				msg = status.Output.Error
			}
			return nil, fmt.Errorf("synthesis job %s failed: %s", remoteID, msg)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return nil, fmt.Errorf("job %s: %w after %v", remoteID, ErrSynthesisTimeout, c.jobTimeout)
}

func decodeAudio(status *runPodJobStatus) ([]byte, error) {
	if status.Output == nil || status.Output.AudioBase64 == "" {
		return nil, fmt.Errorf("job %s completed without audio output", status.ID)
	}
	audio, err := base64.StdEncoding.DecodeString(status.Output.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio for job %s: %w", status.ID, err)
	}
	return audio, nil
}

// post sends a POST request with JSON body
func (c *RunPodClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *RunPodClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *RunPodClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("runpod API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RunPodClient) IsConfigured() bool {
	return c.apiKey != "" && c.endpointID != ""
}
