package model

import "time"

// Narration languages
type Language string

const (
	LanguageEN Language = "en"
	LanguageTR Language = "tr"
	LanguageFR Language = "fr"
)

// GenerateRequest carries the optional form fields of a podcast submission.
// The document itself arrives as a multipart file.
type GenerateRequest struct {
	Title    string `json:"title" validate:"omitempty,max=200"`
	Language string `json:"language" validate:"omitempty,oneof=en tr fr"`
}

// GenerateResponse is returned to the submitter before any stage runs
type GenerateResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse is the poller-facing projection of a job
type StatusResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Message   string    `json:"message"`
	Error     *JobError `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ScriptResponse returns the generated narration script of a job
type ScriptResponse struct {
	JobID    string          `json:"jobId"`
	Segments []ScriptSegment `json:"segments"`
}

// Voice describes one configured narrator voice
type Voice struct {
	Code      string `json:"code"`
	SampleRef string `json:"sampleRef"`
}
