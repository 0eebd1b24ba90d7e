package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/logging"
	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/render"
)

type renderOptions struct {
	output   string
	preset   string
	captions bool
	strict   bool
	plain    bool
}

func newRenderCommand() *cobra.Command {
	var opts renderOptions
	cmd := &cobra.Command{
		Use:   "render <project-file>",
		Short: "Export a project file to a video",
		Long: `Validate the project, synthesize narration, mix audio and encode the
final video with ffmpeg. Progress is shown until the export finishes;
ctrl+c cancels it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: project file name with .mp4)")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "quality preset: draft, standard or high")
	cmd.Flags().BoolVar(&opts.captions, "captions", false, "burn narration captions into the video")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when any narration segment cannot be synthesized")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print progress as plain lines")
	return cmd
}

func runRender(cmd *cobra.Command, projectPath string, opts renderOptions) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var preset config.Preset
	if opts.preset != "" {
		if preset, err = config.ParsePreset(opts.preset); err != nil {
			return err
		}
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(projectPath, filepath.Ext(projectPath)) + ".mp4"
	}
	if output, err = filepath.Abs(output); err != nil {
		return err
	}

	logger := logging.Discard()
	if opts.plain {
		logger = logging.NewLoggerTo(cmd.ErrOrStderr(), cfg.LogLevel())
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := loadProject(ctx, projectPath, cfg, true, logger)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "voxreel-render-")
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	mcfg := export.ConfigFrom(cfg)
	mcfg.WorkDir = workDir
	prober := media.NewFFprobe(cfg.FFprobePath())
	manager := export.NewManager(
		mcfg,
		cloud.New(cfg.SpeechURL(), cfg.SpeechToken(), cfg.CaptionsURL(), cfg.CaptionsToken(), prober, logger),
		render.NewFFmpeg(cfg.FFmpegPath(), logger),
		nil,
		nil,
		logger,
	)

	exportOpts := export.Options{Preset: preset, OutputPath: output, Captions: opts.captions}
	if opts.strict {
		bestEffort := false
		exportOpts.BestEffort = &bestEffort
	}

	out := cmd.OutOrStdout()
	jobID, err := manager.StartExport(ctx, p, exportOpts)
	var verr *export.ValidationError
	if errors.As(err, &verr) {
		printReport(out, verr.Report)
		cmd.SilenceErrors = true
		return errReported
	}
	if err != nil {
		return err
	}

	events, unsubscribe, err := manager.Subscribe(jobID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	cancel := func() error { return manager.Cancel(jobID) }
	go func() {
		<-ctx.Done()
		cancel()
	}()

	if opts.plain {
		streamPlain(out, events)
	} else {
		model := newProgressModel(fmt.Sprintf("Exporting %s", p.Name), events, cancel)
		if _, err := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("progress display: %w", err)
		}
	}

	manager.Wait()
	job, err := manager.Status(context.Background(), jobID)
	if err != nil {
		return err
	}
	return reportJob(cmd, out, job)
}

func reportJob(cmd *cobra.Command, w io.Writer, job *export.Job) error {
	switch job.Status {
	case export.JobStatusCompleted:
		fmt.Fprintf(w, "%s exported %s\n", okStyle.Render("✓"), job.OutputPath)
		for _, warning := range job.Warnings {
			fmt.Fprintf(w, "%s %s\n", warnStyle.Render("!"), warning)
		}
		return nil
	case export.JobStatusCancelled:
		fmt.Fprintf(w, "%s export cancelled\n", warnStyle.Render("!"))
	default:
		fmt.Fprintf(w, "%s export failed (%s): %s\n", errorStyle.Render("✗"), job.Reason, job.Error)
	}
	cmd.SilenceErrors = true
	return errReported
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
