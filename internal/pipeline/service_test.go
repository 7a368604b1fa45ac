package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"taleweaver/internal/domain"
	"taleweaver/internal/queue"
)

func newServiceFixture() (*Service, *memStoryStore, *memJobStore, *queue.MemoryQueue) {
	stories := newMemStoryStore()
	jobs := newMemJobStore()
	q := queue.NewMemoryQueue(time.Minute, time.Millisecond)
	return NewService(stories, jobs, q, zerolog.Nop()), stories, jobs, q
}

func scenarioPayload(t *testing.T, scenario string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(domain.ScenarioInput{Scenario: scenario})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return raw
}

func TestCreateStoryRequestNormalize(t *testing.T) {
	req := CreateStoryRequest{Language: "en-GB"}
	req.Normalize()
	if req.Language != "en" {
		t.Fatalf("language = %q, want en", req.Language)
	}
	if req.Tone != "cheerful" || req.TargetAudience != "kids" || req.Length != 500 {
		t.Fatalf("defaults not applied: %+v", req)
	}

	req = CreateStoryRequest{Length: 50}
	req.Normalize()
	if req.Length != 100 {
		t.Fatalf("length = %d, want clamped to 100", req.Length)
	}

	req = CreateStoryRequest{Length: 9000}
	req.Normalize()
	if req.Length != 2000 {
		t.Fatalf("length = %d, want clamped to 2000", req.Length)
	}
}

func TestCreateStoryRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     CreateStoryRequest
		wantErr string
	}{
		{
			name: "scenario too short",
			req: CreateStoryRequest{
				InputType:    domain.InputTypeScenario,
				InputPayload: json.RawMessage(`{"scenario":"short"}`),
			},
			wantErr: "between 10 and 1000",
		},
		{
			name: "image missing url",
			req: CreateStoryRequest{
				InputType:    domain.InputTypeImage,
				InputPayload: json.RawMessage(`{"user_description":"a fox"}`),
			},
			wantErr: "image_url is required",
		},
		{
			name: "characters empty roster",
			req: CreateStoryRequest{
				InputType:    domain.InputTypeCharacters,
				InputPayload: json.RawMessage(`{"characters":[]}`),
			},
			wantErr: "at least one character",
		},
		{
			name: "unsupported type",
			req: CreateStoryRequest{
				InputType:    "poem",
				InputPayload: json.RawMessage(`{}`),
			},
			wantErr: "unsupported input type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestCreateStoryQueuesGeneration(t *testing.T) {
	svc, stories, jobs, q := newServiceFixture()

	story, job, err := svc.CreateStory(context.Background(), CreateStoryRequest{
		InputType:    domain.InputTypeScenario,
		InputPayload: scenarioPayload(t, "a fox befriends two children by the river"),
		Language:     "hi-IN",
	})
	if err != nil {
		t.Fatalf("create story: %v", err)
	}
	if story.Status != domain.StoryStatusPending {
		t.Fatalf("story status = %s, want pending", story.Status)
	}
	if story.Language != "hi" {
		t.Fatalf("language = %q, want hi", story.Language)
	}
	if story.Title != "Generating..." {
		t.Fatalf("title = %q", story.Title)
	}

	if job.Kind != domain.JobKindGenerate || job.Status != domain.JobStatusQueued {
		t.Fatalf("job = %+v", job)
	}
	stored, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	if stored.StoryID != story.ID {
		t.Fatalf("job story id = %q, want %q", stored.StoryID, story.ID)
	}
	if _, err := stories.GetByID(context.Background(), story.ID); err != nil {
		t.Fatalf("story not persisted: %v", err)
	}

	if q.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", q.Depth())
	}
	lease, err := q.TryClaim()
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if lease.JobID != job.ID {
		t.Fatalf("queued job id = %q, want %q", lease.JobID, job.ID)
	}
}

func TestCreateStoryRejectsInvalidRequest(t *testing.T) {
	svc, stories, _, q := newServiceFixture()
	_, _, err := svc.CreateStory(context.Background(), CreateStoryRequest{
		InputType:    domain.InputTypeScenario,
		InputPayload: json.RawMessage(`{"scenario":"nope"}`),
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if got, _ := stories.List(context.Background(), domain.StoryFilter{}); len(got) != 0 {
		t.Fatalf("rejected request persisted a story")
	}
	if q.Depth() != 0 {
		t.Fatalf("rejected request published a message")
	}
}

func TestSubmitRegenerateAudio(t *testing.T) {
	svc, stories, jobs, q := newServiceFixture()
	story := &domain.Story{ID: "story-1", Status: domain.StoryStatusCompleted, Language: "en"}
	if err := stories.Create(context.Background(), story); err != nil {
		t.Fatalf("seed story: %v", err)
	}

	job, err := svc.SubmitRegenerateAudio(context.Background(), "story-1", "en-US-GuyNeural", "cheerful")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.Kind != domain.JobKindRegenerateAudio {
		t.Fatalf("kind = %s", job.Kind)
	}
	var params domain.RegenerateAudioParams
	stored, _ := jobs.GetByID(context.Background(), job.ID)
	if err := json.Unmarshal(stored.Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.VoicePreset != "en-US-GuyNeural" || params.Emotion != "cheerful" {
		t.Fatalf("params = %+v", params)
	}
	if q.Depth() != 1 {
		t.Fatalf("queue depth = %d, want 1", q.Depth())
	}
}

func TestSubmitRegenerateAudioUnknownStory(t *testing.T) {
	svc, _, _, q := newServiceFixture()
	_, err := svc.SubmitRegenerateAudio(context.Background(), "missing", "", "neutral")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if q.Depth() != 0 {
		t.Fatalf("message published for an unknown story")
	}
}
