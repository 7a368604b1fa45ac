// Package vision implements the scene analyzer backend over the Azure
// Computer Vision analyze API.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AzureOptions controls how the analyzer is configured.
type AzureOptions struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// AzureAnalyzer implements pipeline.SceneAnalyzer.
type AzureAnalyzer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

const azureDefaultTimeout = 30 * time.Second

type analyzeRequest struct {
	URL string `json:"url"`
}

type analyzeResponse struct {
	Description struct {
		Captions []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"captions"`
	} `json:"description"`
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
	Objects []struct {
		Object string `json:"object"`
	} `json:"objects"`
	Color struct {
		DominantColors []string `json:"dominantColors"`
		AccentColor    string   `json:"accentColor"`
		IsBWImg        bool     `json:"isBwImg"`
	} `json:"color"`
}

// NewAzureAnalyzer constructs the analyzer.
func NewAzureAnalyzer(opts AzureOptions) (*AzureAnalyzer, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("vision endpoint is required")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("vision api key is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: azureDefaultTimeout}
	}
	return &AzureAnalyzer{
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		apiKey:   strings.TrimSpace(opts.APIKey),
		client:   client,
	}, nil
}

// Describe analyzes the image and composes a narrative context string for the
// story generator.
func (a *AzureAnalyzer) Describe(ctx context.Context, imageURL, userHint string) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(analyzeRequest{URL: imageURL}); err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/vision/v3.2/analyze?visualFeatures=Description,Tags,Objects,Color", a.endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("vision status %d", resp.StatusCode)
	}
	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	context := ComposeContext(out, userHint)
	if context == "" {
		return "", errors.New("vision returned no usable description")
	}
	return context, nil
}

// ComposeContext turns the raw analysis into the scene/elements/atmosphere/
// mood narrative block consumed by the story prompts.
func ComposeContext(analysis analyzeResponse, userHint string) string {
	var parts []string

	description := bestCaption(analysis)
	if description != "" {
		parts = append(parts, fmt.Sprintf("Scene: %s", description))
	}

	objects := make([]string, 0, len(analysis.Objects))
	seen := make(map[string]struct{})
	for _, obj := range analysis.Objects {
		if obj.Object == "" {
			continue
		}
		if _, ok := seen[obj.Object]; ok {
			continue
		}
		seen[obj.Object] = struct{}{}
		objects = append(objects, obj.Object)
		if len(objects) == 5 {
			break
		}
	}
	if len(objects) > 0 {
		parts = append(parts, fmt.Sprintf("Key elements: %s", strings.Join(objects, ", ")))
	}

	var tags []string
	for _, tag := range analysis.Tags {
		if tag.Confidence <= 0.5 {
			continue
		}
		if _, ok := seen[tag.Name]; ok {
			continue
		}
		tags = append(tags, tag.Name)
		if len(tags) == 8 {
			break
		}
	}
	if len(tags) > 0 {
		parts = append(parts, fmt.Sprintf("Atmosphere: %s", strings.Join(tags, ", ")))
	}

	if mood := colorMood(analysis.Color.DominantColors, analysis.Color.IsBWImg); mood != "" {
		parts = append(parts, fmt.Sprintf("Mood: %s", mood))
	}

	if strings.TrimSpace(userHint) != "" {
		parts = append(parts, fmt.Sprintf("User's interpretation: %s", userHint))
	}

	return strings.Join(parts, "\n")
}

func bestCaption(analysis analyzeResponse) string {
	best := ""
	bestConfidence := 0.0
	for _, caption := range analysis.Description.Captions {
		if caption.Confidence > bestConfidence {
			best = caption.Text
			bestConfidence = caption.Confidence
		}
	}
	return best
}

// colorMood interprets dominant colors into an emotional register for the
// prompt.
func colorMood(dominant []string, isBW bool) string {
	if isBW {
		return "nostalgic and timeless"
	}
	warm := map[string]struct{}{"Red": {}, "Orange": {}, "Yellow": {}, "Pink": {}, "Brown": {}}
	cool := map[string]struct{}{"Blue": {}, "Green": {}, "Purple": {}, "Teal": {}}
	warmCount, coolCount := 0, 0
	for _, c := range dominant {
		if _, ok := warm[c]; ok {
			warmCount++
		}
		if _, ok := cool[c]; ok {
			coolCount++
		}
	}
	switch {
	case warmCount == 0 && coolCount == 0:
		return ""
	case warmCount >= coolCount:
		return "warm and energetic"
	default:
		return "calm and serene"
	}
}
