package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"taleweaver/internal/http/handlers"
	"taleweaver/internal/infra"
	"taleweaver/internal/middleware"
)

// NewRouter assembles the submission API routes.
func NewRouter(app *handlers.App, logger infra.Logger, allowedOrigins []string) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/stories", func(r chi.Router) {
		r.Post("/", app.CreateStory)
		r.Get("/", app.ListStories)
		r.Get("/{id}", app.GetStory)
		r.Delete("/{id}", app.DeleteStory)
		r.Post("/{id}/tts", app.RegenerateTTS)
		r.Get("/{id}/jobs", app.StoryJobs)
		r.Get("/{id}/audio.zip", app.DownloadAudio)
	})

	r.Get("/v1/jobs/{id}", app.GetJob)

	r.Route("/v1/voices", func(r chi.Router) {
		r.Get("/", app.Voices)
		r.Get("/presets", app.VoicePresets)
		r.Get("/emotions", app.Emotions)
	})

	if base := app.Store.BasePath(); base != "" {
		fileServer := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(base)))
		r.Get("/static/*", fileServer.ServeHTTP)
	}

	return r
}
