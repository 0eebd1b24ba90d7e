package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/render"
	"github.com/voxreel/voxreel-agent/internal/timeline"
	vxvalidator "github.com/voxreel/voxreel-agent/internal/validator"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxBodyBytes = 4 << 20

// decodeRequest reads a JSON body into dst and runs its validate tags.
// On failure it writes the response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "BAD_REQUEST")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, http.StatusBadRequest, formatValidationErrors(err), "BAD_REQUEST")
		return false
	}
	return true
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (%s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string           `json:"state"`
	LastError     string           `json:"last_error,omitempty"`
	ProjectsCount int              `json:"projects_count"`
	ExportsActive int              `json:"exports_active"`
	RecentJobs    []*export.Job    `json:"recent_jobs"`
	Toolchain     *ToolchainStatus `json:"toolchain,omitempty"`
}

type ToolchainStatus struct {
	CanExport    bool     `json:"can_export"`
	Missing      []string `json:"missing,omitempty"`
	FFmpeg       string   `json:"ffmpeg_version,omitempty"`
	FFprobe      string   `json:"ffprobe_version,omitempty"`
	HasSubtitles bool     `json:"has_subtitles_filter"`
	LastProbeAt  string   `json:"last_probe_at,omitempty"`
}

func ToolchainToResponse(c *render.Capabilities) *ToolchainStatus {
	s := &ToolchainStatus{
		CanExport:    c.CanExport(),
		Missing:      c.Missing(),
		FFmpeg:       c.FFmpeg.Version,
		FFprobe:      c.FFprobe.Version,
		HasSubtitles: c.HasSubtitles,
	}
	if !c.ProbedAt.IsZero() {
		s.LastProbeAt = c.ProbedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return s
}

type CreateProjectRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type UpdateProjectRequest struct {
	Name *string              `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Mix  *timeline.MixSettings `json:"mix,omitempty"`
}

type AddClipRequest struct {
	Path          string   `json:"path" validate:"required"`
	SourceStart   float64  `json:"source_start" validate:"gte=0"`
	SourceEnd     *float64 `json:"source_end,omitempty" validate:"omitempty,gt=0"`
	TimelineStart *float64 `json:"timeline_start,omitempty" validate:"omitempty,gte=0"`
	TimelineEnd   *float64 `json:"timeline_end,omitempty" validate:"omitempty,gt=0"`
}

type PlaceClipRequest struct {
	TimelineStart *float64 `json:"timeline_start,omitempty" validate:"omitempty,gte=0"`
	TimelineEnd   *float64 `json:"timeline_end,omitempty" validate:"omitempty,gt=0"`
	Clear         bool     `json:"clear,omitempty"`
}

type TrimClipRequest struct {
	SourceStart *float64 `json:"source_start" validate:"required,gte=0"`
	SourceEnd   *float64 `json:"source_end" validate:"required,gtfield=SourceStart"`
}

type ReorderClipsRequest struct {
	ClipIDs []string `json:"clip_ids" validate:"required,min=1,dive,required"`
}

type SegmentRequest struct {
	ClipID string               `json:"clip_id,omitempty"`
	Start  *float64             `json:"start" validate:"required,gte=0"`
	End    *float64             `json:"end" validate:"required,gtfield=Start"`
	Text   string               `json:"text"`
	Voice  timeline.VoiceParams `json:"voice"`
}

type UpdateSegmentRequest struct {
	ClipID *string               `json:"clip_id,omitempty"`
	Start  *float64              `json:"start,omitempty" validate:"omitempty,gte=0"`
	End    *float64              `json:"end,omitempty" validate:"omitempty,gte=0"`
	Text   *string               `json:"text,omitempty"`
	Voice  *timeline.VoiceParams `json:"voice,omitempty"`
}

type MusicRequest struct {
	Path         string   `json:"path" validate:"required"`
	Order        int      `json:"order" validate:"gte=0"`
	Start        *float64 `json:"start" validate:"required,gte=0"`
	End          *float64 `json:"end" validate:"required,gtfield=Start"`
	SourceOffset float64  `json:"source_offset,omitempty" validate:"gte=0"`
	Volume       *float64 `json:"volume,omitempty" validate:"omitempty,gte=0"`
	FadeIn       float64  `json:"fade_in,omitempty" validate:"gte=0"`
	FadeOut      float64  `json:"fade_out,omitempty" validate:"gte=0"`
	Loop         bool     `json:"loop"`
	Muted        bool     `json:"muted,omitempty"`
}

type UpdateMusicRequest struct {
	Order        *int     `json:"order,omitempty" validate:"omitempty,gte=0"`
	Path         *string  `json:"path,omitempty" validate:"omitempty,min=1"`
	Start        *float64 `json:"start,omitempty" validate:"omitempty,gte=0"`
	End          *float64 `json:"end,omitempty" validate:"omitempty,gte=0"`
	SourceOffset *float64 `json:"source_offset,omitempty" validate:"omitempty,gte=0"`
	Volume       *float64 `json:"volume,omitempty" validate:"omitempty,gte=0"`
	FadeIn       *float64 `json:"fade_in,omitempty" validate:"omitempty,gte=0"`
	FadeOut      *float64 `json:"fade_out,omitempty" validate:"omitempty,gte=0"`
	Loop         *bool    `json:"loop,omitempty"`
	Muted        *bool    `json:"muted,omitempty"`
}

type StartExportRequest struct {
	Preset       string              `json:"preset,omitempty" validate:"omitempty,oneof=draft standard high"`
	OutputPath   string              `json:"output_path,omitempty"`
	Captions     bool                `json:"captions,omitempty"`
	CaptionStyle *cloud.CaptionStyle `json:"caption_style,omitempty"`
	BestEffort   *bool               `json:"best_effort,omitempty"`
}

type StartExportResponse struct {
	JobID string `json:"job_id"`
}

type ValidateResponse struct {
	Report   *vxvalidator.Report `json:"report"`
	Resolved *timeline.Resolved  `json:"resolved"`
}

// ValidationFailedResponse is returned when an export is blocked. The
// job id still refers to a (failed) job record.
type ValidationFailedResponse struct {
	ErrorResponse
	JobID  string              `json:"job_id"`
	Issues []vxvalidator.Issue `json:"issues"`
}

type ClipAtResponse struct {
	Time   float64 `json:"t"`
	ClipID string  `json:"clip_id,omitempty"`
	Found  bool    `json:"found"`
}

type JobsResponse struct {
	Jobs []*export.Job `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
