package domain

import (
	"errors"
	"strings"
)

// DialogueLine is one spoken line inside a scene.
type DialogueLine struct {
	Character string `json:"character"`
	Line      string `json:"line"`
	Emotion   string `json:"emotion,omitempty"`
}

// Scene holds narration followed by an ordered list of dialogue lines.
type Scene struct {
	ID        int            `json:"id"`
	Title     string         `json:"title"`
	Narration string         `json:"narration"`
	Dialogue  []DialogueLine `json:"dialogue,omitempty"`
}

// StoryContent is the structured tree produced by the narrative backend.
type StoryContent struct {
	Title    string         `json:"title"`
	Scenes   []Scene        `json:"scenes"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate rejects structurally unusable content so that malformed backend
// output surfaces as an explicit error instead of being coerced downstream.
func (c *StoryContent) Validate() error {
	if c == nil {
		return errors.New("story content is nil")
	}
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("story content has no title")
	}
	if len(c.Scenes) == 0 {
		return errors.New("story content has no scenes")
	}
	for _, scene := range c.Scenes {
		if strings.TrimSpace(scene.Narration) == "" && len(scene.Dialogue) == 0 {
			return errors.New("story content has an empty scene")
		}
	}
	return nil
}

// WordCount estimates the spoken length across narration and dialogue.
func (c *StoryContent) WordCount() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, scene := range c.Scenes {
		total += len(strings.Fields(scene.Narration))
		for _, d := range scene.Dialogue {
			total += len(strings.Fields(d.Line))
		}
	}
	return total
}
