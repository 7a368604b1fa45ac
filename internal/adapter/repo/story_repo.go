package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taleweaver/internal/domain"
)

// StoryRepositoryPG implements domain.StoryRepository.
type StoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewStoryRepository creates a new story repository backed by PostgreSQL.
func NewStoryRepository(pool *pgxpool.Pool) *StoryRepositoryPG {
	return &StoryRepositoryPG{pool: pool}
}

// Create inserts a new story record.
func (r *StoryRepositoryPG) Create(ctx context.Context, story *domain.Story) error {
	query := `
INSERT INTO stories (id, title, language, input_type, input_payload, tone, target_audience, length, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`
	_, err := r.pool.Exec(ctx, query,
		story.ID,
		story.Title,
		story.Language,
		story.InputType,
		story.InputPayload,
		story.Tone,
		story.TargetAudience,
		story.Length,
		story.Status,
	)
	return err
}

// GetByID fetches a story by its identifier.
func (r *StoryRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	query := `
SELECT id, title, language, input_type, input_payload, tone, target_audience, length,
       story_json, audio_urls, status, created_at, updated_at
FROM stories
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, id)
	return scanStory(row)
}

// List returns stories ordered newest first, with optional language filter.
func (r *StoryRepositoryPG) List(ctx context.Context, filter domain.StoryFilter) ([]domain.Story, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `
SELECT id, title, language, input_type, input_payload, tone, target_audience, length,
       story_json, audio_urls, status, created_at, updated_at
FROM stories
WHERE ($1 = '' OR language = $1)
ORDER BY created_at DESC
OFFSET $2 LIMIT $3;
`
	rows, err := r.pool.Query(ctx, query, filter.Language, filter.Offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []domain.Story
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *story)
	}
	return stories, rows.Err()
}

// SetStatus updates only the lifecycle status.
func (r *StoryRepositoryPG) SetStatus(ctx context.Context, id string, status domain.StoryStatus) error {
	query := `
UPDATE stories
SET status = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status)
	return err
}

// SaveGenerated persists the generated tree, title and terminal status in one
// update.
func (r *StoryRepositoryPG) SaveGenerated(ctx context.Context, id string, title string, content *domain.StoryContent, status domain.StoryStatus) error {
	var contentJSON []byte
	if content != nil {
		b, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("encode story content: %w", err)
		}
		contentJSON = b
	}
	query := `
UPDATE stories
SET title = $2, story_json = $3, status = $4, updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, title, contentJSON, status)
	return err
}

// SaveAudio replaces the audio asset list.
func (r *StoryRepositoryPG) SaveAudio(ctx context.Context, id string, audioURLs []string) error {
	encoded, err := json.Marshal(audioURLs)
	if err != nil {
		return fmt.Errorf("encode audio urls: %w", err)
	}
	query := `
UPDATE stories
SET audio_urls = $2, updated_at = NOW()
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, id, encoded)
	return err
}

// Delete removes a story and, via cascade, its jobs.
func (r *StoryRepositoryPG) Delete(ctx context.Context, id string) error {
	query := `
DELETE FROM stories
WHERE id = $1;
`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanStory(row pgx.Row) (*domain.Story, error) {
	var (
		story       domain.Story
		contentJSON []byte
		audioJSON   []byte
	)
	if err := row.Scan(
		&story.ID,
		&story.Title,
		&story.Language,
		&story.InputType,
		&story.InputPayload,
		&story.Tone,
		&story.TargetAudience,
		&story.Length,
		&contentJSON,
		&audioJSON,
		&story.Status,
		&story.CreatedAt,
		&story.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(contentJSON) > 0 {
		var content domain.StoryContent
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			return nil, fmt.Errorf("decode story content: %w", err)
		}
		story.Content = &content
	}
	if len(audioJSON) > 0 {
		if err := json.Unmarshal(audioJSON, &story.AudioURLs); err != nil {
			return nil, fmt.Errorf("decode audio urls: %w", err)
		}
	}
	return &story, nil
}
