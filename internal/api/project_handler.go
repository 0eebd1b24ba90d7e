package api

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/voxreel/voxreel-agent/internal/playback"
	"github.com/voxreel/voxreel-agent/internal/project"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Projects.ListProjects(r.Context())
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if projects == nil {
			projects = []*project.Summary{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"projects": projects})
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		p, err := cfg.Projects.CreateProject(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

// importProjectHandler stores a complete project document, the same shape
// the CLI reads from project files.
func importProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		p, err := project.Decode(data, ".json")
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		for i := range p.Clips {
			if !filepath.IsAbs(p.Clips[i].Path) {
				WriteError(w, http.StatusBadRequest, "clip paths must be absolute", "BAD_REQUEST")
				return
			}
		}
		if err := cfg.Projects.Import(r.Context(), p); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateProjectRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		p, err := cfg.Projects.UpdateProject(r.Context(), chi.URLParam(r, "projectID"), req.Name, req.Mix)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.DeleteProject(r.Context(), chi.URLParam(r, "projectID")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddClipRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		c, err := cfg.Projects.AddClip(r.Context(), chi.URLParam(r, "projectID"), project.ClipInput{
			Path:          req.Path,
			SourceStart:   req.SourceStart,
			SourceEnd:     req.SourceEnd,
			TimelineStart: req.TimelineStart,
			TimelineEnd:   req.TimelineEnd,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, c)
	}
}

func placeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlaceClipRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		c, err := cfg.Projects.RepositionClip(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID"), project.Placement{
			TimelineStart: req.TimelineStart,
			TimelineEnd:   req.TimelineEnd,
			ClearExplicit: req.Clear,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func trimClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimClipRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		c, err := cfg.Projects.TrimClip(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID"),
			*req.SourceStart, *req.SourceEnd)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func reorderClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReorderClipsRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if err := cfg.Projects.ReorderClips(r.Context(), chi.URLParam(r, "projectID"), req.ClipIDs); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.DeleteClip(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "clipID")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// clipMediaHandler streams a clip's source file for preview.
func clipMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		c := p.ClipByID(chi.URLParam(r, "clipID"))
		if c == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		if err := cfg.Playback.ServeFile(w, r, c.Path, playback.Options{}); err != nil {
			cfg.Logger.Error("playback error", "error", err, "clip_id", c.ID)
		}
	}
}

func addSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SegmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		seg, err := cfg.Projects.AddSegment(r.Context(), chi.URLParam(r, "projectID"), timeline.Segment{
			ClipID: req.ClipID,
			Start:  *req.Start,
			End:    *req.End,
			Text:   req.Text,
			Voice:  req.Voice,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, seg)
	}
}

func updateSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateSegmentRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		seg, err := cfg.Projects.UpdateSegment(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "segmentID"), project.SegmentPatch{
			ClipID: req.ClipID,
			Start:  req.Start,
			End:    req.End,
			Text:   req.Text,
			Voice:  req.Voice,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, seg)
	}
}

func deleteSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.DeleteSegment(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "segmentID")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addMusicHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MusicRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		volume := timeline.DefaultMusicVolume
		if req.Volume != nil {
			volume = *req.Volume
		}
		m, err := cfg.Projects.AddMusic(r.Context(), chi.URLParam(r, "projectID"), timeline.MusicLayer{
			Order:        req.Order,
			Path:         req.Path,
			Start:        *req.Start,
			End:          *req.End,
			SourceOffset: req.SourceOffset,
			Volume:       volume,
			FadeIn:       req.FadeIn,
			FadeOut:      req.FadeOut,
			Loop:         req.Loop,
			Muted:        req.Muted,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusCreated, m)
	}
}

func updateMusicHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateMusicRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		m, err := cfg.Projects.UpdateMusic(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "musicID"), project.MusicPatch{
			Order:        req.Order,
			Path:         req.Path,
			Start:        req.Start,
			End:          req.End,
			SourceOffset: req.SourceOffset,
			Volume:       req.Volume,
			FadeIn:       req.FadeIn,
			FadeOut:      req.FadeOut,
			Loop:         req.Loop,
			Muted:        req.Muted,
		})
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, m)
	}
}

func deleteMusicHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Projects.DeleteMusic(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "musicID")); err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
