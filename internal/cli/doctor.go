package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/render"
)

func newDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg and ffprobe can run exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			tc := &render.Toolchain{
				FFmpeg:  cfg.FFmpegPath(),
				FFprobe: cfg.FFprobePath(),
				Timeout: config.DefaultDoctorTimeout,
			}
			caps, err := tc.Probe(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("toolchain probe failed: %w", err)
			}
			if !printCapabilities(cmd.OutOrStdout(), caps) {
				cmd.SilenceErrors = true
				return errReported
			}
			return nil
		},
	}
}

// printCapabilities writes one line per requirement and reports whether
// exports can run.
func printCapabilities(w io.Writer, caps *render.Capabilities) bool {
	tool := func(name string, info render.ToolInfo) {
		if info.Available {
			fmt.Fprintf(w, "%s %s: %s %s\n", okStyle.Render("✓"), name, info.Version, dimStyle.Render(info.Path))
			return
		}
		fmt.Fprintf(w, "%s %s: NOT FOUND %s\n", errorStyle.Render("✗"), name, dimStyle.Render(info.Error))
	}
	feature := func(name string, ok, required bool) {
		switch {
		case ok:
			fmt.Fprintf(w, "%s %s: OK\n", okStyle.Render("✓"), name)
		case required:
			fmt.Fprintf(w, "%s %s: MISSING\n", errorStyle.Render("✗"), name)
		default:
			fmt.Fprintf(w, "%s %s: MISSING %s\n", warnStyle.Render("!"), name, dimStyle.Render("(captions disabled)"))
		}
	}

	tool("ffmpeg", caps.FFmpeg)
	tool("ffprobe", caps.FFprobe)
	if caps.FFmpeg.Available {
		feature("libx264", caps.HasX264, true)
		feature("aac", caps.HasAAC, true)
		feature("subtitles filter", caps.HasSubtitles, false)
	}

	fmt.Fprintln(w)
	if caps.CanExport() {
		fmt.Fprintln(w, okStyle.Render("Ready to export."))
		return true
	}
	fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Cannot export, missing:"), strings.Join(caps.Missing(), ", "))
	return false
}
