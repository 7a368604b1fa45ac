package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taleweaver/internal/domain"
	"taleweaver/internal/infra"
)

// NarrativeRequest carries everything the narrative backend needs to produce
// a story tree.
type NarrativeRequest struct {
	InputType       domain.StoryInputType
	Scenario        string
	ImageContext    string
	UserDescription string
	Characters      []domain.CharacterSpec
	Setting         string
	Conflict        string
	Language        string
	Tone            string
	TargetAudience  string
	Length          int
}

// NarrativeGenerator produces a structured story from a creation request.
type NarrativeGenerator interface {
	Generate(ctx context.Context, req NarrativeRequest) (*domain.StoryContent, error)
}

// SceneAnalyzer turns an image reference into a textual scene description.
type SceneAnalyzer interface {
	Describe(ctx context.Context, imageURL, userHint string) (string, error)
}

// SpeechRequest is one synthesis unit: a narration block or a dialogue line.
type SpeechRequest struct {
	Text     string
	VoiceID  string
	Emotion  string
	AssetKey string
}

// SpeechSynthesizer renders one unit of speech and returns its asset
// reference.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) (string, error)
}

// Timeouts bounds each backend call; a timeout is a backend failure, not a
// hang.
type Timeouts struct {
	Narrative time.Duration
	Vision    time.Duration
	Speech    time.Duration
}

func (t Timeouts) orDefault() Timeouts {
	if t.Narrative <= 0 {
		t.Narrative = 60 * time.Second
	}
	if t.Vision <= 0 {
		t.Vision = 30 * time.Second
	}
	if t.Speech <= 0 {
		t.Speech = 30 * time.Second
	}
	return t
}

// RunResult is the terminal outcome of one Run invocation.
type RunResult struct {
	Status domain.JobStatus
	Error  string
	Result json.RawMessage
}

// Orchestrator drives a job from queued to a terminal state by executing its
// stage sequence against the generation backends.
type Orchestrator struct {
	stories   domain.StoryRepository
	jobs      domain.JobRepository
	narrative NarrativeGenerator
	vision    SceneAnalyzer
	speech    SpeechSynthesizer
	timeouts  Timeouts
	logger    infra.Logger
}

// NewOrchestrator wires the orchestrator with its stores and backends.
func NewOrchestrator(
	stories domain.StoryRepository,
	jobs domain.JobRepository,
	narrative NarrativeGenerator,
	vision SceneAnalyzer,
	speech SpeechSynthesizer,
	timeouts Timeouts,
	logger infra.Logger,
) *Orchestrator {
	return &Orchestrator{
		stories:   stories,
		jobs:      jobs,
		narrative: narrative,
		vision:    vision,
		speech:    speech,
		timeouts:  timeouts.orDefault(),
		logger:    logger,
	}
}

// Run executes the job's stage sequence to a terminal state. It is safe to
// invoke twice for the same id: a terminal job short-circuits to its stored
// result without touching any backend. A non-nil error means the run could
// not settle the job (busy story or infrastructure failure) and the message
// should be redelivered; business failures are recorded on the job and
// returned as a FAILED RunResult with a nil error.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*RunResult, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, err
	}

	if job.Status.Terminal() {
		o.logger.Debug().Str("job_id", jobID).Str("status", string(job.Status)).Msg("pipeline: job already terminal")
		return &RunResult{Status: job.Status, Error: job.ErrorMessage, Result: job.Result}, nil
	}

	if err := o.jobs.ClaimProcessing(ctx, jobID); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// Lost a race against another delivery that finished the job.
			finished, getErr := o.jobs.GetByID(ctx, jobID)
			if getErr != nil {
				return nil, getErr
			}
			return &RunResult{Status: finished.Status, Error: finished.ErrorMessage, Result: finished.Result}, nil
		}
		return nil, err
	}

	if err := o.jobs.SetProgress(ctx, jobID, 10); err != nil {
		return nil, err
	}

	story, err := o.stories.GetByID(ctx, job.StoryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.logger.Error().Str("job_id", jobID).Str("story_id", job.StoryID).Msg("pipeline: story record missing")
			msg := fmt.Sprintf("story %s: %s", job.StoryID, domain.ErrContentMissing)
			return o.failJob(ctx, job, msg)
		}
		return nil, err
	}

	switch job.Kind {
	case domain.JobKindGenerate:
		return o.runGenerate(ctx, job, story)
	case domain.JobKindRegenerateAudio:
		return o.runRegenerateAudio(ctx, job, story)
	default:
		return o.failJob(ctx, job, fmt.Sprintf("unsupported job kind %q", job.Kind))
	}
}

func (o *Orchestrator) runGenerate(ctx context.Context, job *domain.Job, story *domain.Story) (*RunResult, error) {
	if err := o.stories.SetStatus(ctx, story.ID, domain.StoryStatusProcessing); err != nil {
		return nil, err
	}

	content, genErr := o.generateContent(ctx, job, story)
	if genErr == nil {
		genErr = content.Validate()
		if genErr != nil {
			genErr = fmt.Errorf("%w: %v", domain.ErrBackendFailure, genErr)
		}
	}
	if genErr != nil {
		o.logger.Error().Err(genErr).Str("job_id", job.ID).Str("story_id", story.ID).Msg("pipeline: generation failed")
		if err := o.stories.SetStatus(ctx, story.ID, domain.StoryStatusFailed); err != nil {
			return nil, err
		}
		return o.failJob(ctx, job, genErr.Error())
	}

	if err := o.jobs.SetProgress(ctx, job.ID, 80); err != nil {
		return nil, err
	}
	if err := o.stories.SaveGenerated(ctx, story.ID, content.Title, content, domain.StoryStatusCompleted); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(domain.GenerateResult{Title: content.Title})
	if err := o.jobs.Finish(ctx, job.ID, domain.JobStatusCompleted, "", result); err != nil {
		return nil, err
	}
	o.logger.Info().Str("job_id", job.ID).Str("story_id", story.ID).Str("title", content.Title).Msg("pipeline: story generated")
	return &RunResult{Status: domain.JobStatusCompleted, Result: result}, nil
}

// generateContent dispatches on the story's input type and calls the
// narrative backend (after the scene analyzer, for images) under bounded
// timeouts.
func (o *Orchestrator) generateContent(ctx context.Context, job *domain.Job, story *domain.Story) (*domain.StoryContent, error) {
	req := NarrativeRequest{
		InputType:      story.InputType,
		Language:       story.Language,
		Tone:           story.Tone,
		TargetAudience: story.TargetAudience,
		Length:         story.Length,
	}

	switch story.InputType {
	case domain.InputTypeScenario:
		var input domain.ScenarioInput
		if err := json.Unmarshal(story.InputPayload, &input); err != nil {
			return nil, fmt.Errorf("decode scenario payload: %w", err)
		}
		req.Scenario = input.Scenario

	case domain.InputTypeImage:
		var input domain.ImageInput
		if err := json.Unmarshal(story.InputPayload, &input); err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		describeCtx, cancel := context.WithTimeout(ctx, o.timeouts.Vision)
		imageContext, err := o.vision.Describe(describeCtx, input.ImageURL, input.UserDescription)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: analyze image: %v", domain.ErrBackendFailure, err)
		}
		if err := o.jobs.SetProgress(ctx, job.ID, 30); err != nil {
			return nil, err
		}
		req.ImageContext = imageContext
		req.UserDescription = input.UserDescription

	case domain.InputTypeCharacters:
		var input domain.CharactersInput
		if err := json.Unmarshal(story.InputPayload, &input); err != nil {
			return nil, fmt.Errorf("decode characters payload: %w", err)
		}
		req.Characters = input.Characters
		req.Setting = input.Setting
		req.Conflict = input.Conflict

	default:
		return nil, fmt.Errorf("unsupported input type %q", story.InputType)
	}

	generateCtx, cancel := context.WithTimeout(ctx, o.timeouts.Narrative)
	defer cancel()
	content, err := o.narrative.Generate(generateCtx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: generate story: %v", domain.ErrBackendFailure, err)
	}

	if story.InputType == domain.InputTypeImage {
		if err := o.jobs.SetProgress(ctx, job.ID, 60); err != nil {
			return nil, err
		}
	}
	return content, nil
}

func (o *Orchestrator) runRegenerateAudio(ctx context.Context, job *domain.Job, story *domain.Story) (*RunResult, error) {
	if story.Status != domain.StoryStatusCompleted || story.Content == nil {
		msg := fmt.Sprintf("story %s is %s without generated content: %s", story.ID, story.Status, domain.ErrInvalidState)
		return o.failJob(ctx, job, msg)
	}

	var params domain.RegenerateAudioParams
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return o.failJob(ctx, job, fmt.Sprintf("decode job params: %v", err))
		}
	}

	if err := o.jobs.SetProgress(ctx, job.ID, 20); err != nil {
		return nil, err
	}

	units := synthesisPlan(story, params)

	if err := o.jobs.SetProgress(ctx, job.ID, 40); err != nil {
		return nil, err
	}

	var (
		assets   []string
		firstErr error
		failed   int
	)
	for _, unit := range units {
		synthCtx, cancel := context.WithTimeout(ctx, o.timeouts.Speech)
		asset, err := o.speech.Synthesize(synthCtx, unit)
		cancel()
		if err != nil {
			// One bad line must not sink the batch; keep collecting.
			failed++
			if firstErr == nil {
				firstErr = err
			}
			o.logger.Warn().Err(err).Str("job_id", job.ID).Str("voice", unit.VoiceID).Msg("pipeline: synthesis unit failed")
			continue
		}
		assets = append(assets, asset)
	}

	if err := o.jobs.SetProgress(ctx, job.ID, 80); err != nil {
		return nil, err
	}

	if len(assets) == 0 {
		msg := fmt.Sprintf("%s: all %d synthesis calls failed", domain.ErrBackendFailure, len(units))
		if firstErr != nil {
			msg = fmt.Sprintf("%s: first error: %v", msg, firstErr)
		}
		return o.failJob(ctx, job, msg)
	}

	if err := o.stories.SaveAudio(ctx, story.ID, assets); err != nil {
		return nil, err
	}

	result, _ := json.Marshal(domain.RegenerateAudioResult{AssetCount: len(assets)})
	if err := o.jobs.Finish(ctx, job.ID, domain.JobStatusCompleted, "", result); err != nil {
		return nil, err
	}
	o.logger.Info().Str("job_id", job.ID).Str("story_id", story.ID).Int("assets", len(assets)).Int("failed", failed).Msg("pipeline: audio regenerated")
	return &RunResult{Status: domain.JobStatusCompleted, Result: result}, nil
}

// synthesisPlan orders the synthesis units: narration first within each
// scene, then the scene's dialogue lines in order. The requested preset
// overrides the narrator voice; the requested emotion fills lines that carry
// none of their own.
func synthesisPlan(story *domain.Story, params domain.RegenerateAudioParams) []SpeechRequest {
	var units []SpeechRequest
	for _, scene := range story.Content.Scenes {
		if strings.TrimSpace(scene.Narration) != "" {
			voice := VoiceFor(story.Language, RoleNarrator)
			if params.VoicePreset != "" {
				voice = params.VoicePreset
			}
			units = append(units, SpeechRequest{
				Text:     scene.Narration,
				VoiceID:  voice,
				Emotion:  "calm",
				AssetKey: fmt.Sprintf("audio/%s/scene_%d_narration", story.ID, scene.ID),
			})
		}
		for i, line := range scene.Dialogue {
			emotion := line.Emotion
			if emotion == "" || emotion == "neutral" {
				if params.Emotion != "" {
					emotion = params.Emotion
				} else if emotion == "" {
					emotion = "neutral"
				}
			}
			units = append(units, SpeechRequest{
				Text:     line.Line,
				VoiceID:  VoiceFor(story.Language, ClassifyCharacter(line.Character)),
				Emotion:  emotion,
				AssetKey: fmt.Sprintf("audio/%s/scene_%d_dialogue_%d", story.ID, scene.ID, i),
			})
		}
	}
	return units
}

// failJob records a business failure as the job's terminal state.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, msg string) (*RunResult, error) {
	if err := o.jobs.Finish(ctx, job.ID, domain.JobStatusFailed, msg, nil); err != nil {
		return nil, err
	}
	return &RunResult{Status: domain.JobStatusFailed, Error: msg}, nil
}
