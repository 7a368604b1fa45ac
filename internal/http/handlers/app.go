package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"taleweaver/internal/domain"
	"taleweaver/internal/infra"
	"taleweaver/internal/pipeline"
	"taleweaver/internal/storage"
)

// App bundles the handler dependencies.
type App struct {
	Service        *pipeline.Service
	Stories        domain.StoryRepository
	Jobs           domain.JobRepository
	Store          *storage.FileStore
	StorageBaseURL string
	Logger         infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}

// assetURL joins a storage key onto the public asset base URL.
func (a *App) assetURL(key string) string {
	if key == "" || strings.Contains(key, "://") {
		return key
	}
	return strings.TrimRight(a.StorageBaseURL, "/") + "/" + key
}

func (a *App) assetURLs(keys []string) []string {
	if keys == nil {
		return nil
	}
	urls := make([]string, len(keys))
	for i, key := range keys {
		urls[i] = a.assetURL(key)
	}
	return urls
}
