package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/logging"
	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/project"
	"github.com/voxreel/voxreel-agent/internal/timeline"
	"github.com/voxreel/voxreel-agent/internal/validator"
	"github.com/voxreel/voxreel-agent/internal/watcher"
)

func newValidateCommand() *cobra.Command {
	var noProbe, watch bool
	cmd := &cobra.Command{
		Use:   "validate <project-file>",
		Short: "Check a project file for timeline conflicts",
		Long: `Resolve the project's timeline and run every export check against it.
Exits non-zero when an error would block the export. With --watch the
project is checked again each time the file changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if watch {
				return watchProject(cmd, args[0], cfg, !noProbe)
			}

			canExport, err := validateFile(commandContext(cmd), out, args[0], cfg, !noProbe)
			if err != nil {
				return err
			}
			if !canExport {
				cmd.SilenceErrors = true
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noProbe, "no-probe", false, "skip ffprobe and validate timings only")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the file changes")
	return cmd
}

func validateFile(ctx context.Context, out io.Writer, path string, cfg config.Config, probe bool) (bool, error) {
	p, err := loadProject(ctx, path, cfg, probe, nil)
	if err != nil {
		return false, err
	}
	r := timeline.Resolve(p)
	report := validator.Validate(p, r, validator.Options{})
	printTimeline(out, p, r)
	printReport(out, report)
	return report.CanExport, nil
}

func watchProject(cmd *cobra.Command, path string, cfg config.Config, probe bool) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	changes := make(chan watcher.EventType, 1)
	w := watcher.NewPollWatcher(watcher.DefaultInterval, logging.Discard())
	w.OnChange(func(_ string, ev watcher.EventType) {
		select {
		case changes <- ev:
		default:
		}
	})
	if err := w.Watch(ctx, path); err != nil {
		return err
	}
	defer w.Stop()

	check := func() {
		if _, err := validateFile(ctx, out, path, cfg, probe); err != nil {
			fmt.Fprintf(out, "%s %v\n", errorStyle.Render("✗"), err)
		}
		fmt.Fprintln(out, dimStyle.Render("watching for changes, ctrl+c to stop"))
	}
	check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-changes:
			fmt.Fprintln(out)
			if ev == watcher.EventDelete {
				fmt.Fprintf(out, "%s %s was removed\n", warnStyle.Render("!"), path)
				continue
			}
			check()
		}
	}
}

// loadProject reads a project file and attaches media descriptors when
// probe is set.
func loadProject(ctx context.Context, path string, cfg config.Config, probe bool, logger *slog.Logger) (*timeline.Project, error) {
	p, err := project.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if p.ID == "" {
		p.ID = export.SanitizeName(p.Name, 64)
	}
	if probe {
		if ctx == nil {
			ctx = context.Background()
		}
		if logger == nil {
			logger = logging.Discard()
		}
		project.Hydrate(ctx, p, media.NewCache(media.NewFFprobe(cfg.FFprobePath()), nil, logger), logger)
	}
	return p, nil
}

func printTimeline(w io.Writer, p *timeline.Project, r *timeline.Resolved) {
	fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(p.Name), dimStyle.Render(fmt.Sprintf("%s mode, %s total", r.Mode, clock(r.TotalDuration))))
	for _, span := range r.Clips {
		fmt.Fprintf(w, "  %s %s-%s  %s\n", textStyle.Render("clip"), clock(span.Start), clock(span.End), span.ID)
	}
	for _, span := range r.Segments {
		label := span.ID
		if span.Orphan {
			label += dimStyle.Render(" (orphan)")
		}
		fmt.Fprintf(w, "  %s %s-%s  %s\n", textStyle.Render("vo  "), clock(span.Start), clock(span.End), label)
	}
	for _, span := range r.Music {
		fmt.Fprintf(w, "  %s %s-%s  %s\n", textStyle.Render("bgm "), clock(span.Start), clock(span.End), span.ID)
	}
}

func printReport(w io.Writer, report *validator.Report) {
	for _, is := range report.Issues {
		mark := warnStyle.Render("!")
		if is.Severity == validator.SeverityError {
			mark = errorStyle.Render("✗")
		}
		related := ""
		if len(is.RelatedIDs) > 0 {
			related = dimStyle.Render(" [" + strings.Join(is.RelatedIDs, ", ") + "]")
		}
		fmt.Fprintf(w, "%s %-16s %s%s\n", mark, is.Kind, is.Message, related)
	}

	errs, warns := len(report.Errors()), len(report.Warnings())
	if report.CanExport {
		fmt.Fprintf(w, "%s ready to export (%d warning(s))\n", okStyle.Render("✓"), warns)
		return
	}
	fmt.Fprintf(w, "%s export blocked: %d error(s), %d warning(s)\n", errorStyle.Render("✗"), errs, warns)
}

// clock formats seconds as m:ss.s.
func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	m := int(sec) / 60
	return fmt.Sprintf("%d:%04.1f", m, sec-float64(m*60))
}
