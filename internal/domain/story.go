package domain

import (
	"encoding/json"
	"time"
)

// StoryInputType enumerates the supported creation inputs.
type StoryInputType string

const (
	InputTypeScenario   StoryInputType = "scenario"
	InputTypeImage      StoryInputType = "image"
	InputTypeCharacters StoryInputType = "characters"
)

// StoryStatus enumerates story lifecycle states.
type StoryStatus string

const (
	StoryStatusPending    StoryStatus = "pending"
	StoryStatusProcessing StoryStatus = "processing"
	StoryStatusCompleted  StoryStatus = "completed"
	StoryStatusFailed     StoryStatus = "failed"
)

// Story is the content record: generation inputs, the generated scene tree,
// and the synthesized audio references. Created by the submission API and
// mutated only by the pipeline afterwards.
type Story struct {
	ID             string
	Title          string
	Language       string
	InputType      StoryInputType
	InputPayload   json.RawMessage
	Tone           string
	TargetAudience string
	Length         int
	Content        *StoryContent
	AudioURLs      []string
	Status         StoryStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScenarioInput is the payload for InputTypeScenario.
type ScenarioInput struct {
	Scenario string `json:"scenario"`
}

// ImageInput is the payload for InputTypeImage.
type ImageInput struct {
	ImageURL        string `json:"image_url"`
	UserDescription string `json:"user_description,omitempty"`
}

// CharacterSpec describes one member of a character roster.
type CharacterSpec struct {
	Name   string `json:"name"`
	Traits string `json:"traits,omitempty"`
}

// CharactersInput is the payload for InputTypeCharacters.
type CharactersInput struct {
	Characters []CharacterSpec `json:"characters"`
	Setting    string          `json:"setting,omitempty"`
	Conflict   string          `json:"conflict,omitempty"`
}
