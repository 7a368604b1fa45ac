// Package speech implements the speech synthesis backend over the Azure
// Speech REST API, persisting rendered audio through the asset store.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taleweaver/internal/pipeline"
	"taleweaver/internal/storage"
)

// AzureOptions controls how the synthesizer is configured.
type AzureOptions struct {
	Region     string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Store      *storage.FileStore
}

// AzureSynthesizer implements pipeline.SpeechSynthesizer.
type AzureSynthesizer struct {
	baseURL string
	apiKey  string
	client  *http.Client
	store   *storage.FileStore
}

const (
	azureDefaultTimeout = 30 * time.Second
	outputFormat        = "audio-16khz-128kbitrate-mono-mp3"
	maxAudioBytes       = 16 << 20
)

// NewAzureSynthesizer constructs the synthesizer.
func NewAzureSynthesizer(opts AzureOptions) (*AzureSynthesizer, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("speech api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		if strings.TrimSpace(opts.Region) == "" {
			return nil, errors.New("speech region is required")
		}
		baseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", opts.Region)
	}
	if opts.Store == nil {
		return nil, errors.New("speech asset store is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: azureDefaultTimeout}
	}
	return &AzureSynthesizer{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  client,
		store:   opts.Store,
	}, nil
}

// Synthesize renders one unit of speech and returns the stored asset key.
func (s *AzureSynthesizer) Synthesize(ctx context.Context, req pipeline.SpeechRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", errors.New("speech text is required")
	}
	ssml := BuildSSML(req.Text, req.VoiceID, req.Emotion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, strings.NewReader(ssml))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.apiKey)
	httpReq.Header.Set("X-Microsoft-OutputFormat", outputFormat)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("speech request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("speech status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return "", errors.New("speech returned empty audio")
	}

	key := req.AssetKey
	if !strings.HasSuffix(key, ".mp3") {
		key += ".mp3"
	}
	savedKey, err := s.store.Write(ctx, key, audio)
	if err != nil {
		return "", fmt.Errorf("persist audio: %w", err)
	}
	return savedKey, nil
}
