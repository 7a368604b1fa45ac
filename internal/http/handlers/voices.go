package handlers

import (
	"net/http"

	"taleweaver/internal/pipeline"
)

// Voices lists the available voices, optionally filtered by language.
func (a *App) Voices(w http.ResponseWriter, r *http.Request) {
	voices := pipeline.VoiceCatalog(r.URL.Query().Get("language"))
	a.json(w, http.StatusOK, map[string]any{"items": voices})
}

// VoicePresets lists predefined character-type presets.
func (a *App) VoicePresets(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": pipeline.VoicePresets()})
}

// Emotions lists the supported synthesis emotions.
func (a *App) Emotions(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"items": pipeline.Emotions()})
}
