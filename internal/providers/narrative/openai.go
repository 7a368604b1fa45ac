// Package narrative implements the narrative generation backend over the
// OpenAI chat-completions API.
package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"taleweaver/internal/domain"
	"taleweaver/internal/pipeline"
)

// OpenAIOptions controls how the generator is configured.
type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
}

// OpenAIGenerator implements pipeline.NarrativeGenerator.
type OpenAIGenerator struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
}

const (
	openAIDefaultTimeout = 60 * time.Second
	defaultOpenAIModel   = "gpt-4o-mini"
)

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIGenerator constructs the generator with sane defaults.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultOpenAIModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        model,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
	}, nil
}

// Generate calls the chat-completions endpoint and decodes the structured
// story. Malformed model output is an error, never coerced.
func (g *OpenAIGenerator) Generate(ctx context.Context, req pipeline.NarrativeRequest) (*domain.StoryContent, error) {
	system, user := BuildPrompts(req)
	payload := openAIChatRequest{
		Model:       g.model,
		Temperature: 0.8,
		MaxTokens:   2000,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", g.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	if g.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", g.organization)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d", resp.StatusCode)
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("openai returned empty content")
	}
	content, err := ParseStoryPayload(text, req)
	if err != nil {
		return nil, err
	}
	return content, nil
}

// ParseStoryPayload decodes the model's JSON story and fills the structural
// defaults (scene ids and titles, narrator fallback, neutral emotion).
func ParseStoryPayload(text string, req pipeline.NarrativeRequest) (*domain.StoryContent, error) {
	var raw struct {
		Title  string `json:"title"`
		Scenes []struct {
			ID        int    `json:"id"`
			Title     string `json:"title"`
			Narration string `json:"narration"`
			Dialogue  []struct {
				Character string `json:"character"`
				Line      string `json:"line"`
				Emotion   string `json:"emotion"`
			} `json:"dialogue"`
		} `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse story payload: %w", err)
	}

	content := &domain.StoryContent{
		Title: strings.TrimSpace(raw.Title),
	}
	for _, s := range raw.Scenes {
		scene := domain.Scene{
			ID:        s.ID,
			Title:     strings.TrimSpace(s.Title),
			Narration: s.Narration,
		}
		if scene.ID == 0 {
			scene.ID = len(content.Scenes) + 1
		}
		if scene.Title == "" {
			scene.Title = fmt.Sprintf("Scene %d", len(content.Scenes)+1)
		}
		for _, d := range s.Dialogue {
			line := domain.DialogueLine{
				Character: strings.TrimSpace(d.Character),
				Line:      d.Line,
				Emotion:   strings.TrimSpace(d.Emotion),
			}
			if line.Character == "" {
				line.Character = "Narrator"
			}
			if line.Emotion == "" {
				line.Emotion = "neutral"
			}
			scene.Dialogue = append(scene.Dialogue, line)
		}
		content.Scenes = append(content.Scenes, scene)
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	content.Metadata = map[string]any{
		"tone":            req.Tone,
		"target_audience": req.TargetAudience,
		"language":        req.Language,
		"word_count":      content.WordCount(),
	}
	switch req.InputType {
	case domain.InputTypeImage:
		content.Metadata["image_inspired"] = true
	case domain.InputTypeCharacters:
		names := make([]string, 0, len(req.Characters))
		for _, c := range req.Characters {
			names = append(names, c.Name)
		}
		content.Metadata["character_driven"] = true
		content.Metadata["characters"] = names
	}
	return content, nil
}
