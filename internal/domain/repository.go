package domain

import (
	"context"
	"encoding/json"
	"time"
)

// StoryFilter narrows story listings.
type StoryFilter struct {
	Language string
	Offset   int
	Limit    int
}

// StoryRepository defines persistence for story entities.
type StoryRepository interface {
	Create(ctx context.Context, story *Story) error
	GetByID(ctx context.Context, id string) (*Story, error)
	List(ctx context.Context, filter StoryFilter) ([]Story, error)
	SetStatus(ctx context.Context, id string, status StoryStatus) error
	// SaveGenerated persists the generated tree, title and terminal status in
	// one update.
	SaveGenerated(ctx context.Context, id string, title string, content *StoryContent, status StoryStatus) error
	// SaveAudio fully replaces the audio asset list.
	SaveAudio(ctx context.Context, id string, audioURLs []string) error
	Delete(ctx context.Context, id string) error
}

// JobRepository defines persistence for job entities.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	ListByStory(ctx context.Context, storyID string) ([]Job, error)
	// ClaimProcessing atomically moves a job into the processing state. The
	// claim succeeds only when the job is queued (or already processing, for
	// crash-recovery re-entry) and no other job for the same story is
	// processing. Returns ErrInvalidState for terminal jobs and
	// ErrContentBusy when a sibling holds the story.
	ClaimProcessing(ctx context.Context, id string) error
	// SetProgress raises the progress checkpoint; it never lowers it.
	SetProgress(ctx context.Context, id string, progress int) error
	// Finish moves the job to a terminal status with its error or result.
	Finish(ctx context.Context, id string, status JobStatus, errMsg string, result json.RawMessage) error
	// DeleteTerminalBefore removes terminal jobs older than the cutoff and
	// reports how many were swept.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
