package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taleweaver/internal/domain"
	"taleweaver/internal/pipeline"
	"taleweaver/pkg/zip"
)

type createStoryRequest struct {
	InputType      string          `json:"input_type"`
	InputPayload   json.RawMessage `json:"input_payload"`
	Language       string          `json:"language"`
	Tone           string          `json:"tone"`
	TargetAudience string          `json:"target_audience"`
	Length         int             `json:"length"`
}

type storyResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	Language     string                `json:"language"`
	InputType    domain.StoryInputType `json:"input_type"`
	Status       domain.StoryStatus    `json:"status"`
	StoryContent *domain.StoryContent  `json:"story_content,omitempty"`
	AudioURLs    []string              `json:"audio_urls,omitempty"`
	JobID        string                `json:"job_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

type jobResponse struct {
	ID           string           `json:"id"`
	StoryID      string           `json:"story_id"`
	Kind         domain.JobKind   `json:"kind"`
	Status       domain.JobStatus `json:"status"`
	Progress     int              `json:"progress"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Result       json.RawMessage  `json:"result,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (a *App) storyToResponse(story *domain.Story, includeContent bool) storyResponse {
	resp := storyResponse{
		ID:        story.ID,
		Title:     story.Title,
		Language:  story.Language,
		InputType: story.InputType,
		Status:    story.Status,
		CreatedAt: story.CreatedAt,
		UpdatedAt: story.UpdatedAt,
	}
	if includeContent && story.Status == domain.StoryStatusCompleted {
		resp.StoryContent = story.Content
		resp.AudioURLs = a.assetURLs(story.AudioURLs)
	}
	return resp
}

func jobToResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:           job.ID,
		StoryID:      job.StoryID,
		Kind:         job.Kind,
		Status:       job.Status,
		Progress:     job.Progress,
		ErrorMessage: job.ErrorMessage,
		Result:       job.Result,
		CreatedAt:    job.CreatedAt,
	}
}

// CreateStory accepts a creation request, persists the pending story, queues
// the generation job and returns immediately.
func (a *App) CreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	story, job, err := a.Service.CreateStory(r.Context(), pipeline.CreateStoryRequest{
		InputType:      domain.StoryInputType(req.InputType),
		InputPayload:   req.InputPayload,
		Language:       req.Language,
		Tone:           req.Tone,
		TargetAudience: req.TargetAudience,
		Length:         req.Length,
	})
	if err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: create story rejected")
		a.error(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := a.storyToResponse(story, false)
	resp.JobID = job.ID
	a.json(w, http.StatusAccepted, resp)
}

// GetStory returns a story with its content and audio once completed.
func (a *App) GetStory(w http.ResponseWriter, r *http.Request) {
	story, err := a.Stories.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "story not found")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: get story failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusOK, a.storyToResponse(story, true))
}

// ListStories returns stories with pagination and optional language filter.
func (a *App) ListStories(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	stories, err := a.Stories.List(r.Context(), domain.StoryFilter{
		Language: r.URL.Query().Get("language"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list stories failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]storyResponse, 0, len(stories))
	for i := range stories {
		items = append(items, a.storyToResponse(&stories[i], false))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// DeleteStory removes a story, its jobs and its stored audio.
func (a *App) DeleteStory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Stories.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "story not found")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: delete story failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if a.Store != nil {
		if err := a.Store.RemovePrefix(r.Context(), "audio/"+id); err != nil {
			a.Logger.Warn().Err(err).Str("story_id", id).Msg("handlers: remove audio assets failed")
		}
	}
	a.json(w, http.StatusOK, map[string]string{"message": "story deleted"})
}

type regenerateTTSRequest struct {
	VoicePreset string `json:"voice_preset"`
	Emotion     string `json:"emotion"`
}

// RegenerateTTS queues an audio regeneration job for a story.
func (a *App) RegenerateTTS(w http.ResponseWriter, r *http.Request) {
	var req regenerateTTSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Emotion == "" {
		req.Emotion = "neutral"
	}
	job, err := a.Service.SubmitRegenerateAudio(r.Context(), chi.URLParam(r, "id"), req.VoicePreset, req.Emotion)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "story not found")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: regenerate tts failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.json(w, http.StatusAccepted, jobToResponse(job))
}

// DownloadAudio streams the story's audio clips as a single zip archive.
func (a *App) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	story, err := a.Stories.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "story not found")
			return
		}
		a.Logger.Error().Err(err).Msg("handlers: download audio failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(story.AudioURLs) == 0 {
		a.error(w, http.StatusNotFound, "story has no audio")
		return
	}

	var entries []zip.Entry
	for _, key := range story.AudioURLs {
		if strings.Contains(key, "://") {
			continue
		}
		data, err := a.Store.Read(r.Context(), key)
		if err != nil {
			a.Logger.Warn().Err(err).Str("story_id", id).Str("key", key).Msg("handlers: audio asset unreadable")
			continue
		}
		entries = append(entries, zip.Entry{Name: path.Base(key), Data: data})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "no audio assets available")
		return
	}

	archive, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("story_id", id).Msg("handlers: archive audio failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=story-%s-audio.zip", id))
	_, _ = w.Write(archive)
}

// StoryJobs lists all jobs recorded against a story.
func (a *App) StoryJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Jobs.ListByStory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list story jobs failed")
		a.error(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobToResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
