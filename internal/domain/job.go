package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates supported pipeline invocations.
type JobKind string

const (
	JobKindGenerate        JobKind = "generate"
	JobKindRegenerateAudio JobKind = "regenerate_audio"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one execution of the pipeline against a story. A story accumulates
// one generation job and any number of audio regeneration jobs; the job id is
// also the correlation id carried by the work queue.
type Job struct {
	ID           string
	StoryID      string
	Kind         JobKind
	Status       JobStatus
	Progress     int
	ErrorMessage string
	Result       json.RawMessage
	Params       json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegenerateAudioParams are the caller-supplied overrides stored on an audio
// regeneration job.
type RegenerateAudioParams struct {
	VoicePreset string `json:"voice_preset,omitempty"`
	Emotion     string `json:"emotion,omitempty"`
}

// GenerateResult is the result payload of a completed generation job.
type GenerateResult struct {
	Title string `json:"title"`
}

// RegenerateAudioResult is the result payload of a completed audio job.
type RegenerateAudioResult struct {
	AssetCount int `json:"asset_count"`
}
