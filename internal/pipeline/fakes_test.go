package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"taleweaver/internal/domain"
)

// memStoryStore is an in-memory domain.StoryRepository for orchestrator and
// service tests.
type memStoryStore struct {
	mu      sync.Mutex
	stories map[string]*domain.Story
}

func newMemStoryStore() *memStoryStore {
	return &memStoryStore{stories: make(map[string]*domain.Story)}
}

func (s *memStoryStore) Create(_ context.Context, story *domain.Story) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *story
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.stories[story.ID] = &cp
	return nil
}

func (s *memStoryStore) GetByID(_ context.Context, id string) (*domain.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *story
	return &cp, nil
}

func (s *memStoryStore) List(_ context.Context, filter domain.StoryFilter) ([]domain.Story, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Story
	for _, story := range s.stories {
		if filter.Language != "" && story.Language != filter.Language {
			continue
		}
		out = append(out, *story)
	}
	return out, nil
}

func (s *memStoryStore) SetStatus(_ context.Context, id string, status domain.StoryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return domain.ErrNotFound
	}
	story.Status = status
	story.UpdatedAt = time.Now()
	return nil
}

func (s *memStoryStore) SaveGenerated(_ context.Context, id string, title string, content *domain.StoryContent, status domain.StoryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return domain.ErrNotFound
	}
	story.Title = title
	story.Content = content
	story.Status = status
	story.UpdatedAt = time.Now()
	return nil
}

func (s *memStoryStore) SaveAudio(_ context.Context, id string, audioURLs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	story, ok := s.stories[id]
	if !ok {
		return domain.ErrNotFound
	}
	story.AudioURLs = audioURLs
	story.UpdatedAt = time.Now()
	return nil
}

func (s *memStoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stories[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.stories, id)
	return nil
}

// memJobStore is an in-memory domain.JobRepository that records the progress
// checkpoints each job passed through.
type memJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	progress map[string][]int
}

func newMemJobStore() *memJobStore {
	return &memJobStore{
		jobs:     make(map[string]*domain.Job),
		progress: make(map[string][]int),
	}
}

func (s *memJobStore) Create(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memJobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) ListByStory(_ context.Context, storyID string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.StoryID == storyID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (s *memJobStore) ClaimProcessing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, domain.ErrInvalidState)
	}
	for _, other := range s.jobs {
		if other.ID != id && other.StoryID == job.StoryID && other.Status == domain.JobStatusProcessing {
			return domain.ErrContentBusy
		}
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memJobStore) SetProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if progress > job.Progress {
		job.Progress = progress
		job.UpdatedAt = time.Now()
		s.progress[id] = append(s.progress[id], progress)
	}
	return nil
}

func (s *memJobStore) Finish(_ context.Context, id string, status domain.JobStatus, errMsg string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	job.ErrorMessage = errMsg
	if len(result) > 0 {
		job.Result = result
	}
	if status == domain.JobStatusCompleted && job.Progress < 100 {
		job.Progress = 100
		s.progress[id] = append(s.progress[id], 100)
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (s *memJobStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memJobStore) progressHistory(id string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.progress[id]...)
}

// fakeNarrative returns a canned story tree and counts invocations.
type fakeNarrative struct {
	mu      sync.Mutex
	content *domain.StoryContent
	err     error
	calls   int
	lastReq NarrativeRequest
}

func (f *fakeNarrative) Generate(_ context.Context, req NarrativeRequest) (*domain.StoryContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

// fakeVision returns a canned scene description.
type fakeVision struct {
	mu       sync.Mutex
	desc     string
	err      error
	calls    int
	lastURL  string
	lastHint string
}

func (f *fakeVision) Describe(_ context.Context, imageURL, userHint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastURL = imageURL
	f.lastHint = userHint
	if f.err != nil {
		return "", f.err
	}
	return f.desc, nil
}

// fakeSpeech records every synthesis request and can fail selected units by
// their zero-based call index.
type fakeSpeech struct {
	mu      sync.Mutex
	failAt  map[int]bool
	failAll bool
	reqs    []SpeechRequest
}

func (f *fakeSpeech) Synthesize(_ context.Context, req SpeechRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if f.failAll || f.failAt[idx] {
		return "", fmt.Errorf("synthesis refused for unit %d", idx)
	}
	return req.AssetKey + ".mp3", nil
}

func (f *fakeSpeech) requests() []SpeechRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SpeechRequest(nil), f.reqs...)
}
