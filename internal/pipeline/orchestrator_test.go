package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"taleweaver/internal/domain"
)

func testContent() *domain.StoryContent {
	return &domain.StoryContent{
		Title: "The Brave Little Fox",
		Scenes: []domain.Scene{
			{
				ID:        1,
				Title:     "The Forest",
				Narration: "Once upon a time a fox lived in a quiet forest.",
				Dialogue: []domain.DialogueLine{
					{Character: "Little Timmy", Line: "Look, a fox!", Emotion: "excited"},
					{Character: "Grandma Rose", Line: "Stay close, dear.", Emotion: ""},
				},
			},
			{
				ID:        2,
				Title:     "The River",
				Narration: "The fox led them to a sparkling river.",
			},
		},
	}
}

type orchestratorFixture struct {
	stories   *memStoryStore
	jobs      *memJobStore
	narrative *fakeNarrative
	vision    *fakeVision
	speech    *fakeSpeech
	orch      *Orchestrator
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		stories:   newMemStoryStore(),
		jobs:      newMemJobStore(),
		narrative: &fakeNarrative{content: testContent()},
		vision:    &fakeVision{desc: "Scene: a fox beside a river. Mood: peaceful and serene"},
		speech:    &fakeSpeech{},
	}
	f.orch = NewOrchestrator(f.stories, f.jobs, f.narrative, f.vision, f.speech, Timeouts{}, zerolog.Nop())
	return f
}

func (f *orchestratorFixture) seedStory(t *testing.T, inputType domain.StoryInputType, payload any, status domain.StoryStatus) *domain.Story {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	story := &domain.Story{
		ID:             "story-1",
		Title:          "Generating...",
		Language:       "en",
		InputType:      inputType,
		InputPayload:   raw,
		Tone:           "cheerful",
		TargetAudience: "kids",
		Length:         500,
		Status:         status,
	}
	if err := f.stories.Create(context.Background(), story); err != nil {
		t.Fatalf("seed story: %v", err)
	}
	return story
}

func (f *orchestratorFixture) seedJob(t *testing.T, id string, kind domain.JobKind, params any) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:      id,
		StoryID: "story-1",
		Kind:    kind,
		Status:  domain.JobStatusQueued,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("encode params: %v", err)
		}
		job.Params = raw
	}
	if err := f.jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func TestRunGenerateScenario(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}

	story, err := f.stories.GetByID(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if story.Status != domain.StoryStatusCompleted {
		t.Fatalf("story status = %s, want completed", story.Status)
	}
	if story.Title != "The Brave Little Fox" {
		t.Fatalf("story title = %q", story.Title)
	}
	if story.Content == nil || len(story.Content.Scenes) != 2 {
		t.Fatalf("story content not saved: %+v", story.Content)
	}

	var res domain.GenerateResult
	if err := json.Unmarshal(result.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Title != "The Brave Little Fox" {
		t.Fatalf("result title = %q", res.Title)
	}

	if got, want := f.jobs.progressHistory("job-1"), []int{10, 80, 100}; !reflect.DeepEqual(got, want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
	if f.vision.calls != 0 {
		t.Fatalf("vision called %d times for a scenario story", f.vision.calls)
	}
	if f.narrative.lastReq.Scenario != "a fox befriends two children" {
		t.Fatalf("scenario not forwarded: %q", f.narrative.lastReq.Scenario)
	}
}

func TestRunGenerateImageCheckpoints(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeImage, domain.ImageInput{
		ImageURL:        "https://cdn.example.com/fox.png",
		UserDescription: "a fox by the water",
	}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}

	if f.vision.calls != 1 {
		t.Fatalf("vision calls = %d, want 1", f.vision.calls)
	}
	if f.vision.lastURL != "https://cdn.example.com/fox.png" {
		t.Fatalf("vision url = %q", f.vision.lastURL)
	}
	if f.vision.lastHint != "a fox by the water" {
		t.Fatalf("vision hint = %q", f.vision.lastHint)
	}
	if f.narrative.lastReq.ImageContext == "" {
		t.Fatalf("image context not forwarded to narrative backend")
	}
	if got, want := f.jobs.progressHistory("job-1"), []int{10, 30, 60, 80, 100}; !reflect.DeepEqual(got, want) {
		t.Fatalf("progress = %v, want %v", got, want)
	}
}

func TestRunGenerateBackendFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.narrative.err = errors.New("model unavailable")
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !strings.Contains(result.Error, "model unavailable") {
		t.Fatalf("error message = %q", result.Error)
	}

	story, _ := f.stories.GetByID(context.Background(), "story-1")
	if story.Status != domain.StoryStatusFailed {
		t.Fatalf("story status = %s, want failed", story.Status)
	}
	job, _ := f.jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("job status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Fatalf("job error message is empty")
	}
}

func TestRunGenerateMalformedContent(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.narrative.content = &domain.StoryContent{Title: "No Scenes"}
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	story, _ := f.stories.GetByID(context.Background(), "story-1")
	if story.Status != domain.StoryStatusFailed {
		t.Fatalf("story status = %s, want failed", story.Status)
	}
}

func TestRunTerminalJobShortCircuits(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusCompleted)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)
	stored, _ := json.Marshal(domain.GenerateResult{Title: "Already Done"})
	if err := f.jobs.Finish(context.Background(), "job-1", domain.JobStatusCompleted, "", stored); err != nil {
		t.Fatalf("finish: %v", err)
	}

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}
	var res domain.GenerateResult
	if err := json.Unmarshal(result.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Title != "Already Done" {
		t.Fatalf("result title = %q, want stored result", res.Title)
	}
	if f.narrative.calls != 0 || f.vision.calls != 0 || len(f.speech.requests()) != 0 {
		t.Fatalf("terminal job touched a backend: narrative=%d vision=%d speech=%d",
			f.narrative.calls, f.vision.calls, len(f.speech.requests()))
	}
}

func TestRunMissingJob(t *testing.T) {
	f := newOrchestratorFixture(t)
	_, err := f.orch.Run(context.Background(), "no-such-job")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRunMissingStoryFailsJob(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !strings.Contains(result.Error, "story-1") {
		t.Fatalf("error message = %q, want story id", result.Error)
	}
	if f.narrative.calls != 0 {
		t.Fatalf("narrative called for a missing story")
	}
}

func TestRunBusyStory(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusProcessing)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)
	sibling := f.seedJob(t, "job-2", domain.JobKindRegenerateAudio, nil)
	if err := f.jobs.ClaimProcessing(context.Background(), sibling.ID); err != nil {
		t.Fatalf("claim sibling: %v", err)
	}

	_, err := f.orch.Run(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrContentBusy) {
		t.Fatalf("err = %v, want ErrContentBusy", err)
	}
	job, _ := f.jobs.GetByID(context.Background(), "job-1")
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("job status = %s, want queued (untouched)", job.Status)
	}
}

func TestRunRegenerateAudio(t *testing.T) {
	f := newOrchestratorFixture(t)
	story := f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusCompleted)
	if err := f.stories.SaveGenerated(context.Background(), story.ID, "The Brave Little Fox", testContent(), domain.StoryStatusCompleted); err != nil {
		t.Fatalf("save content: %v", err)
	}
	if err := f.stories.SaveAudio(context.Background(), story.ID, []string{"audio/story-1/old.mp3"}); err != nil {
		t.Fatalf("seed old audio: %v", err)
	}
	f.seedJob(t, "job-1", domain.JobKindRegenerateAudio, domain.RegenerateAudioParams{
		VoicePreset: "en-US-GuyNeural",
		Emotion:     "cheerful",
	})

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", result.Status)
	}

	reqs := f.speech.requests()
	// Two narrations plus two dialogue lines.
	if len(reqs) != 4 {
		t.Fatalf("synthesis units = %d, want 4", len(reqs))
	}
	if reqs[0].AssetKey != "audio/story-1/scene_1_narration" {
		t.Fatalf("unit 0 key = %q", reqs[0].AssetKey)
	}
	if reqs[0].VoiceID != "en-US-GuyNeural" {
		t.Fatalf("narration voice = %q, want preset override", reqs[0].VoiceID)
	}
	if reqs[1].AssetKey != "audio/story-1/scene_1_dialogue_0" {
		t.Fatalf("unit 1 key = %q", reqs[1].AssetKey)
	}
	// "Little Timmy" classifies as a child voice; its own emotion survives.
	if reqs[1].VoiceID != "en-US-JennyNeural" {
		t.Fatalf("child voice = %q", reqs[1].VoiceID)
	}
	if reqs[1].Emotion != "excited" {
		t.Fatalf("emotion = %q, want excited kept", reqs[1].Emotion)
	}
	// The empty emotion on Grandma Rose's line takes the requested override.
	if reqs[2].VoiceID != "en-US-DavisNeural" {
		t.Fatalf("elderly voice = %q", reqs[2].VoiceID)
	}
	if reqs[2].Emotion != "cheerful" {
		t.Fatalf("emotion = %q, want requested override", reqs[2].Emotion)
	}

	updated, _ := f.stories.GetByID(context.Background(), story.ID)
	want := []string{
		"audio/story-1/scene_1_narration.mp3",
		"audio/story-1/scene_1_dialogue_0.mp3",
		"audio/story-1/scene_1_dialogue_1.mp3",
		"audio/story-1/scene_2_narration.mp3",
	}
	if !reflect.DeepEqual(updated.AudioURLs, want) {
		t.Fatalf("audio urls = %v, want full replacement %v", updated.AudioURLs, want)
	}

	var res domain.RegenerateAudioResult
	if err := json.Unmarshal(result.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.AssetCount != 4 {
		t.Fatalf("asset count = %d, want 4", res.AssetCount)
	}
	if got, wantProgress := f.jobs.progressHistory("job-1"), []int{10, 20, 40, 80, 100}; !reflect.DeepEqual(got, wantProgress) {
		t.Fatalf("progress = %v, want %v", got, wantProgress)
	}
}

func TestRunRegenerateAudioPartialFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	story := f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusCompleted)
	if err := f.stories.SaveGenerated(context.Background(), story.ID, "The Brave Little Fox", testContent(), domain.StoryStatusCompleted); err != nil {
		t.Fatalf("save content: %v", err)
	}
	f.speech.failAt = map[int]bool{1: true}
	f.seedJob(t, "job-1", domain.JobKindRegenerateAudio, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed despite one bad unit", result.Status)
	}
	updated, _ := f.stories.GetByID(context.Background(), story.ID)
	if len(updated.AudioURLs) != 3 {
		t.Fatalf("audio urls = %v, want the 3 surviving assets", updated.AudioURLs)
	}
	var res domain.RegenerateAudioResult
	if err := json.Unmarshal(result.Result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.AssetCount != 3 {
		t.Fatalf("asset count = %d, want 3", res.AssetCount)
	}
}

func TestRunRegenerateAudioTotalFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	story := f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusCompleted)
	if err := f.stories.SaveGenerated(context.Background(), story.ID, "The Brave Little Fox", testContent(), domain.StoryStatusCompleted); err != nil {
		t.Fatalf("save content: %v", err)
	}
	if err := f.stories.SaveAudio(context.Background(), story.ID, []string{"audio/story-1/old.mp3"}); err != nil {
		t.Fatalf("seed old audio: %v", err)
	}
	f.speech.failAll = true
	f.seedJob(t, "job-1", domain.JobKindRegenerateAudio, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	updated, _ := f.stories.GetByID(context.Background(), story.ID)
	if !reflect.DeepEqual(updated.AudioURLs, []string{"audio/story-1/old.mp3"}) {
		t.Fatalf("audio urls = %v, want previous assets untouched", updated.AudioURLs)
	}
}

func TestRunRegenerateAudioRequiresCompletedStory(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindRegenerateAudio, nil)

	result, err := f.orch.Run(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if len(f.speech.requests()) != 0 {
		t.Fatalf("speech backend called %d times for an incomplete story", len(f.speech.requests()))
	}
	story, _ := f.stories.GetByID(context.Background(), "story-1")
	if story.Status != domain.StoryStatusPending {
		t.Fatalf("story status = %s, want pending untouched", story.Status)
	}
}

func TestRunProgressNeverRegresses(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.seedStory(t, domain.InputTypeScenario, domain.ScenarioInput{Scenario: "a fox befriends two children"}, domain.StoryStatusPending)
	f.seedJob(t, "job-1", domain.JobKindGenerate, nil)
	if err := f.jobs.SetProgress(context.Background(), "job-1", 80); err != nil {
		t.Fatalf("set progress: %v", err)
	}

	if _, err := f.orch.Run(context.Background(), "job-1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	job, _ := f.jobs.GetByID(context.Background(), "job-1")
	if job.Progress != 100 {
		t.Fatalf("progress = %d, want 100", job.Progress)
	}
	history := f.jobs.progressHistory("job-1")
	for i := 1; i < len(history); i++ {
		if history[i] <= history[i-1] {
			t.Fatalf("progress regressed: %v", history)
		}
	}
}

func TestSynthesisPlanOrdering(t *testing.T) {
	story := &domain.Story{ID: "s1", Language: "en", Content: testContent()}
	units := synthesisPlan(story, domain.RegenerateAudioParams{})
	var keys []string
	for _, u := range units {
		keys = append(keys, u.AssetKey)
	}
	want := []string{
		"audio/s1/scene_1_narration",
		"audio/s1/scene_1_dialogue_0",
		"audio/s1/scene_1_dialogue_1",
		"audio/s1/scene_2_narration",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("plan order = %v, want %v", keys, want)
	}
	if units[0].VoiceID != VoiceFor("en", RoleNarrator) {
		t.Fatalf("narration voice = %q without a preset", units[0].VoiceID)
	}
	if units[0].Emotion != "calm" {
		t.Fatalf("narration emotion = %q, want calm", units[0].Emotion)
	}
}
