package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/timeline"
)

func newEDLCommand() *cobra.Command {
	var (
		output string
		fps    float64
		probe  bool
	)
	cmd := &cobra.Command{
		Use:   "edl <project-file>",
		Short: "Write a CMX3600 edit decision list for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps < 0 {
				return fmt.Errorf("--fps must be positive")
			}
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			p, err := loadProject(cmd.Context(), args[0], cfg, probe, nil)
			if err != nil {
				return err
			}

			if fps == 0 {
				fps = timeline.CanonicalFormat(p, timeline.Format{}).FrameRate
			}
			title := export.SanitizeName(p.Name, 120)
			if title == "" {
				title = "timeline"
			}
			edl := export.GenerateEDL(export.EDLEvents(p, timeline.Resolve(p)), title, fps)

			if output == "" || output == "-" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), edl)
				return err
			}
			if err := os.WriteFile(output, []byte(edl), 0644); err != nil {
				return fmt.Errorf("failed to write edl: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s wrote %s\n", okStyle.Render("✓"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().Float64Var(&fps, "fps", 0, "timecode frame rate (default: the project's canonical rate)")
	cmd.Flags().BoolVar(&probe, "probe", false, "probe media to pick the frame rate")
	return cmd
}
