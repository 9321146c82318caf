package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusGeneratingScript  JobStatus = "generating_script"
	JobStatusSynthesizingAudio JobStatus = "synthesizing_audio"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusFailed            JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Error kinds recorded on failed jobs
type ErrorKind string

const (
	ErrorKindGeneration ErrorKind = "generation_error"
	ErrorKindSynthesis  ErrorKind = "synthesis_error"
	ErrorKindTimeout    ErrorKind = "timeout"
)

// JobError is the structured failure detail stored on a FAILED job
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ScriptSegment is one line of dialogue in the generated narration script
type ScriptSegment struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Job represents one submitted document's end-to-end processing unit.
// The id is the only handle exposed to pollers.
type Job struct {
	ID           string          `json:"id"`
	Status       JobStatus       `json:"status"`
	Message      string          `json:"message"`
	DocumentKey  string          `json:"documentKey"`
	DocumentName string          `json:"documentName,omitempty"`
	Language     string          `json:"language,omitempty"`
	Script       []ScriptSegment `json:"script,omitempty"`
	ResultKey    string          `json:"resultKey,omitempty"`
	Error        *JobError       `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}
