package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/doctor", doctorHandler(cfg))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", listProjectsHandler(cfg))
			r.Post("/", createProjectHandler(cfg))
			r.Post("/import", importProjectHandler(cfg))

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", getProjectHandler(cfg))
				r.Patch("/", updateProjectHandler(cfg))
				r.Delete("/", deleteProjectHandler(cfg))

				r.Get("/timeline", timelineHandler(cfg))
				r.Get("/timeline/at", clipAtHandler(cfg))
				r.Get("/edl", edlHandler(cfg))
				r.Post("/validate", validateHandler(cfg))
				r.Post("/exports", startExportHandler(cfg))
				r.Get("/exports", listExportsHandler(cfg))

				r.Post("/clips", addClipHandler(cfg))
				r.Put("/clips/order", reorderClipsHandler(cfg))
				r.Patch("/clips/{clipID}/placement", placeClipHandler(cfg))
				r.Patch("/clips/{clipID}/trim", trimClipHandler(cfg))
				r.Delete("/clips/{clipID}", deleteClipHandler(cfg))
				r.With(LoopbackGuard()).Get("/clips/{clipID}/media", clipMediaHandler(cfg))
				r.With(LoopbackGuard()).Head("/clips/{clipID}/media", clipMediaHandler(cfg))

				r.Post("/segments", addSegmentHandler(cfg))
				r.Patch("/segments/{segmentID}", updateSegmentHandler(cfg))
				r.Delete("/segments/{segmentID}", deleteSegmentHandler(cfg))

				r.Post("/music", addMusicHandler(cfg))
				r.Patch("/music/{musicID}", updateMusicHandler(cfg))
				r.Delete("/music/{musicID}", deleteMusicHandler(cfg))
			})
		})

		r.Route("/exports", func(r chi.Router) {
			r.Get("/", listExportsHandler(cfg))
			r.Get("/{jobID}", getExportHandler(cfg))
			r.Post("/{jobID}/cancel", cancelExportHandler(cfg))
			r.Get("/{jobID}/events", exportEventsHandler(cfg))
			r.With(LoopbackGuard()).Get("/{jobID}/output", exportOutputHandler(cfg))
			r.With(LoopbackGuard()).Head("/{jobID}/output", exportOutputHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Projects.ListProjects(ctx)
		jobs, _ := cfg.Exports.List(ctx, "", 10)
		active := cfg.Exports.Active()

		state := "idle"
		lastError := ""
		for _, j := range jobs {
			if j.Status == export.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}
		switch {
		case active > 0:
			state = "exporting"
		case lastError != "" && len(jobs) > 0 && jobs[0].Status == export.JobStatusFailed:
			state = "error"
		}
		if jobs == nil {
			jobs = []*export.Job{}
		}

		resp := StatusResponse{
			State:         state,
			LastError:     lastError,
			ProjectsCount: len(projects),
			ExportsActive: active,
			RecentJobs:    jobs,
		}
		// never probe here; /doctor does that
		if cfg.Doctor != nil {
			if caps := cfg.Doctor.Peek(); caps != nil {
				resp.Toolchain = ToolchainToResponse(caps)
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func doctorHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "toolchain doctor not configured", "UNAVAILABLE")
			return
		}
		get := cfg.Doctor.Get
		if r.URL.Query().Get("refresh") == "1" {
			get = cfg.Doctor.Refresh
		}
		caps, err := get(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, ToolchainToResponse(caps))
	}
}

// writeServiceError maps domain errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound), errors.Is(err, export.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrInvalid):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_EDIT")
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}
