package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/playback"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

func timelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, timeline.Resolve(p))
	}
}

func clipAtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
		if err != nil || t < 0 {
			WriteError(w, http.StatusBadRequest, "t must be a non-negative number of seconds", "BAD_REQUEST")
			return
		}
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		id, found := timeline.ClipAt(t, timeline.Resolve(p))
		WriteJSON(w, http.StatusOK, ClipAtResponse{Time: t, ClipID: id, Found: found})
	}
}

func edlHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		fps := timeline.CanonicalFormat(p, timeline.Format{}).FrameRate
		if v := r.URL.Query().Get("fps"); v != "" {
			fps, err = strconv.ParseFloat(v, 64)
			if err != nil || fps <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
		}

		name := export.SanitizeName(p.Name, 120)
		if name == "" {
			name = "timeline"
		}
		edl := export.GenerateEDL(export.EDLEvents(p, timeline.Resolve(p)), name, fps)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".edl"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func validateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		resolved, report := cfg.Exports.Validate(p)
		WriteJSON(w, http.StatusOK, ValidateResponse{Report: report, Resolved: resolved})
	}
}

func startExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartExportRequest
		if r.ContentLength != 0 && !decodeRequest(w, r, &req) {
			return
		}
		p, err := cfg.Projects.GetProject(r.Context(), chi.URLParam(r, "projectID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}

		opts := export.Options{
			Preset:     config.Preset(req.Preset),
			OutputPath: req.OutputPath,
			Captions:   req.Captions,
			BestEffort: req.BestEffort,
		}
		if req.CaptionStyle != nil {
			opts.CaptionStyle = *req.CaptionStyle
		}

		jobID, err := cfg.Exports.StartExport(r.Context(), p, opts)
		var verr *export.ValidationError
		switch {
		case errors.As(err, &verr):
			WriteJSON(w, http.StatusUnprocessableEntity, ValidationFailedResponse{
				ErrorResponse: ErrorResponse{Error: verr.Error(), Code: "VALIDATION_FAILED"},
				JobID:         jobID,
				Issues:        verr.Report.Issues,
			})
			return
		case errors.Is(err, export.ErrInvalidOptions):
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		case err != nil:
			writeServiceError(w, cfg.Logger, err)
			return
		}

		w.Header().Set("Location", "/exports/"+jobID)
		WriteJSON(w, http.StatusAccepted, StartExportResponse{JobID: jobID})
	}
}

func listExportsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, 500)
		}
		jobs, err := cfg.Exports.List(r.Context(), chi.URLParam(r, "projectID"), limit)
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if jobs == nil {
			jobs = []*export.Job{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Status(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func cancelExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if err := cfg.Exports.Cancel(jobID); err != nil {
			if errors.Is(err, export.ErrJobNotFound) {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusConflict, err.Error(), "NOT_CANCELLABLE")
			return
		}
		WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": "cancelling"})
	}
}

// exportEventsHandler streams job events over a websocket until the
// terminal event, then closes normally. Jobs known only from the store
// (finished before a restart) get their final state as a single event.
func exportEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		events, unsubscribe, err := cfg.Exports.Subscribe(jobID)
		if errors.Is(err, export.ErrJobNotFound) {
			job, serr := cfg.Exports.Status(r.Context(), jobID)
			if serr != nil {
				writeServiceError(w, cfg.Logger, serr)
				return
			}
			ch := make(chan export.Event, 1)
			ch <- finalEvent(job)
			close(ch)
			events, unsubscribe, err = ch, func() {}, nil
		}
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		defer unsubscribe()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied
			cfg.Logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
			return
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(eventPingInterval)
		defer ping.Stop()
		for {
			select {
			case e, ok := <-events:
				if !ok {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "export finished")
					conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
					return
				}
				conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
				if err := conn.WriteJSON(e); err != nil {
					cfg.Logger.Debug("event stream closed", "job_id", jobID, "error", err)
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}
}

func finalEvent(j *export.Job) export.Event {
	e := export.Event{
		JobID:   j.ID,
		Stage:   j.Stage,
		Percent: float64(j.Progress),
		Level:   export.LevelInfo,
		Message: string(j.Stage),
		Time:    j.UpdatedAt,
	}
	switch j.Status {
	case export.JobStatusCompleted:
		e.Stage, e.Message, e.OutputPath = export.StageCompleted, "export completed", j.OutputPath
	case export.JobStatusFailed:
		e.Stage, e.Message, e.Level = export.StageFailed, j.Error, export.LevelError
	case export.JobStatusCancelled:
		e.Stage, e.Message, e.Level = export.StageCancelled, "export cancelled", export.LevelWarning
	}
	return e
}

func exportOutputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Exports.Status(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeServiceError(w, cfg.Logger, err)
			return
		}
		if job.Status != export.JobStatusCompleted {
			WriteError(w, http.StatusConflict, "export is "+job.Status, "NOT_READY")
			return
		}
		opts := playback.Options{}
		if r.URL.Query().Get("download") == "1" {
			opts.DownloadName = filepath.Base(job.OutputPath)
		}
		if err := cfg.Playback.ServeFile(w, r, job.OutputPath, opts); err != nil {
			cfg.Logger.Error("playback error", "error", err, "job_id", job.ID)
		}
	}
}
