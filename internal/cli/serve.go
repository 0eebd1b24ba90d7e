package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxreel/voxreel-agent/internal/api"
	"github.com/voxreel/voxreel-agent/internal/cloud"
	"github.com/voxreel/voxreel-agent/internal/config"
	"github.com/voxreel/voxreel-agent/internal/db"
	"github.com/voxreel/voxreel-agent/internal/export"
	"github.com/voxreel/voxreel-agent/internal/logging"
	"github.com/voxreel/voxreel-agent/internal/media"
	"github.com/voxreel/voxreel-agent/internal/playback"
	"github.com/voxreel/voxreel-agent/internal/project"
	"github.com/voxreel/voxreel-agent/internal/render"
	"github.com/voxreel/voxreel-agent/internal/ui"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	headless bool
}

func newServeCommand(version string) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), version, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run without the system tray")
	return cmd
}

func runServe(ctx context.Context, version string, opts serveOptions) error {
	startTime := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, dir := range []string{cfg.DataDir(), cfg.ArtifactsDir(), cfg.WorkDir(), cfg.ExportsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting voxreel agent", "version", version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())
	authToken, err := ensureAuthToken(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	printBanner(os.Stdout, version, cfg.Port(), authToken)

	prober := media.NewCache(media.NewFFprobe(cfg.FFprobePath()), media.NewSQLiteStore(database.Conn()), logger)
	projects := project.NewService(repo, prober, logger)
	client := cloud.New(cfg.SpeechURL(), cfg.SpeechToken(), cfg.CaptionsURL(), cfg.CaptionsToken(), prober, logger)

	doctor := render.NewCachedDoctor(&render.Toolchain{
		FFmpeg:  cfg.FFmpegPath(),
		FFprobe: cfg.FFprobePath(),
		Timeout: config.DefaultDoctorTimeout,
	}, logger)
	if caps, err := doctor.Refresh(ctx); err != nil {
		logger.Warn("initial toolchain probe failed", "error", err)
	} else if !caps.CanExport() {
		logger.Warn("exports unavailable until the toolchain is fixed", "missing", caps.Missing())
	} else {
		logger.Info("toolchain ready", "ffmpeg", caps.FFmpeg.Version, "subtitles", caps.HasSubtitles)
	}

	exports := export.NewManager(
		export.ConfigFrom(cfg),
		client,
		render.NewFFmpeg(cfg.FFmpegPath(), logger),
		export.NewJobStore(database.Conn()),
		projects,
		logger,
	)

	apiServer := api.NewServer(api.ServerConfig{
		Port:      cfg.Port(),
		Projects:  projects,
		Exports:   exports,
		Playback:  playback.NewServer(logger),
		Tokens:    repo,
		Doctor:    doctor,
		Logger:    logger,
		StartTime: startTime,
		Version:   version,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
		case err := <-serverErr:
			logger.Error("server stopped unexpectedly", "error", err)
		case <-ctx.Done():
		case <-quitCh:
			return
		}
		quit()
	}()

	if opts.headless || cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Exports: exports,
			Logger:  logger,
			APIURL:  fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			OnQuit:  quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := exports.Shutdown(shutdownCtx); err != nil {
		logger.Error("exports did not stop in time", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

type configStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

func ensureAuthToken(ctx context.Context, store configStore) (string, error) {
	existing, err := store.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := store.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}
	return token, nil
}

func printBanner(w io.Writer, version string, port int, token string) {
	body := fmt.Sprintf("%s\n\n%s http://127.0.0.1:%d\n%s %s",
		titleStyle.Render("VOXREEL AGENT v"+version),
		dimStyle.Render("API URL:   "), port,
		dimStyle.Render("Auth Token:"), token,
	)
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(body))
	fmt.Fprintln(w)
}
