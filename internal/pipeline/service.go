package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taleweaver/internal/domain"
	"taleweaver/internal/infra"
	"taleweaver/internal/queue"
)

// Service is the submission facade: it creates story and job records and
// publishes work for the pipeline, returning immediately.
type Service struct {
	stories domain.StoryRepository
	jobs    domain.JobRepository
	queue   queue.Queue
	logger  infra.Logger
}

// NewService wires the submission service.
func NewService(stories domain.StoryRepository, jobs domain.JobRepository, q queue.Queue, logger infra.Logger) *Service {
	return &Service{stories: stories, jobs: jobs, queue: q, logger: logger}
}

// CreateStoryRequest is a validated story creation request.
type CreateStoryRequest struct {
	InputType      domain.StoryInputType
	InputPayload   json.RawMessage
	Language       string
	Tone           string
	TargetAudience string
	Length         int
}

const (
	defaultTone     = "cheerful"
	defaultAudience = "kids"
	defaultLength   = 500
	minLength       = 100
	maxLength       = 2000
)

// Normalize applies defaults and clamps the target length into its allowed
// range.
func (r *CreateStoryRequest) Normalize() {
	r.Language = NormalizeLanguage(r.Language)
	if strings.TrimSpace(r.Tone) == "" {
		r.Tone = defaultTone
	}
	if strings.TrimSpace(r.TargetAudience) == "" {
		r.TargetAudience = defaultAudience
	}
	if r.Length == 0 {
		r.Length = defaultLength
	}
	if r.Length < minLength {
		r.Length = minLength
	}
	if r.Length > maxLength {
		r.Length = maxLength
	}
}

// Validate rejects structurally unusable creation requests before anything is
// persisted.
func (r *CreateStoryRequest) Validate() error {
	switch r.InputType {
	case domain.InputTypeScenario:
		var input domain.ScenarioInput
		if err := json.Unmarshal(r.InputPayload, &input); err != nil {
			return fmt.Errorf("decode scenario payload: %w", err)
		}
		if n := len(strings.TrimSpace(input.Scenario)); n < 10 || n > 1000 {
			return fmt.Errorf("scenario must be between 10 and 1000 characters")
		}
	case domain.InputTypeImage:
		var input domain.ImageInput
		if err := json.Unmarshal(r.InputPayload, &input); err != nil {
			return fmt.Errorf("decode image payload: %w", err)
		}
		if strings.TrimSpace(input.ImageURL) == "" {
			return fmt.Errorf("image_url is required")
		}
	case domain.InputTypeCharacters:
		var input domain.CharactersInput
		if err := json.Unmarshal(r.InputPayload, &input); err != nil {
			return fmt.Errorf("decode characters payload: %w", err)
		}
		if len(input.Characters) == 0 {
			return fmt.Errorf("at least one character is required")
		}
	default:
		return fmt.Errorf("unsupported input type %q", r.InputType)
	}
	return nil
}

// CreateStory persists a pending story, queues its generation job and
// publishes the work item.
func (s *Service) CreateStory(ctx context.Context, req CreateStoryRequest) (*domain.Story, *domain.Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	story := &domain.Story{
		ID:             uuid.NewString(),
		Title:          "Generating...",
		Language:       req.Language,
		InputType:      req.InputType,
		InputPayload:   req.InputPayload,
		Tone:           req.Tone,
		TargetAudience: req.TargetAudience,
		Length:         req.Length,
		Status:         domain.StoryStatusPending,
	}
	if err := s.stories.Create(ctx, story); err != nil {
		return nil, nil, fmt.Errorf("create story: %w", err)
	}

	job, err := s.SubmitGenerate(ctx, story.ID)
	if err != nil {
		return nil, nil, err
	}
	return story, job, nil
}

// SubmitGenerate queues a generation job against an existing story.
func (s *Service) SubmitGenerate(ctx context.Context, storyID string) (*domain.Job, error) {
	if _, err := s.stories.GetByID(ctx, storyID); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, &domain.Job{
		ID:      uuid.NewString(),
		StoryID: storyID,
		Kind:    domain.JobKindGenerate,
		Status:  domain.JobStatusQueued,
	})
}

// SubmitRegenerateAudio queues an audio regeneration job. The story's state
// is not checked here: the orchestrator rejects incompatible states as an
// immediate job failure, so the outcome is observable on the job record.
func (s *Service) SubmitRegenerateAudio(ctx context.Context, storyID, voicePreset, emotion string) (*domain.Job, error) {
	if _, err := s.stories.GetByID(ctx, storyID); err != nil {
		return nil, err
	}
	params, err := json.Marshal(domain.RegenerateAudioParams{VoicePreset: voicePreset, Emotion: emotion})
	if err != nil {
		return nil, fmt.Errorf("encode job params: %w", err)
	}
	return s.enqueue(ctx, &domain.Job{
		ID:      uuid.NewString(),
		StoryID: storyID,
		Kind:    domain.JobKindRegenerateAudio,
		Status:  domain.JobStatusQueued,
		Params:  params,
	})
}

// GetJob returns the job record for status polling.
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, jobID)
}

func (s *Service) enqueue(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.queue.Publish(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish job: %w", err)
	}
	s.logger.Info().Str("job_id", job.ID).Str("story_id", job.StoryID).Str("kind", string(job.Kind)).Msg("pipeline: job queued")
	return job, nil
}
