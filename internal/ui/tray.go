package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

//go:embed icon.png
var iconBytes []byte

const refreshInterval = 2 * time.Second

// Exports is the part of the export manager the tray drives.
type Exports interface {
	Active() int
	CancelAll() int
}

type Tray struct {
	exports Exports
	logger  *slog.Logger
	apiURL  string

	statusItem *systray.MenuItem
	cancelItem *systray.MenuItem

	mu     sync.Mutex
	active int

	onQuit func()
	stop   chan struct{}
}

type TrayConfig struct {
	Exports Exports
	Logger  *slog.Logger
	APIURL  string
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		exports: cfg.Exports,
		logger:  cfg.Logger,
		apiURL:  cfg.APIURL,
		onQuit:  cfg.OnQuit,
		active:  -1,
		stop:    make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("VoxReel")
	systray.SetTooltip("VoxReel Agent")

	t.statusItem = systray.AddMenuItem(statusTitle(0), "Current export activity")
	t.statusItem.Disable()

	if t.apiURL != "" {
		apiItem := systray.AddMenuItem("API: "+t.apiURL, "Local API address")
		apiItem.Disable()
	}

	systray.AddSeparator()

	t.cancelItem = systray.AddMenuItem("Cancel All Exports", "Cancel every running export")
	t.cancelItem.Disable()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit VoxReel Agent")

	go t.poll()
	go func() {
		for {
			select {
			case <-t.cancelItem.ClickedCh:
				t.handleCancelAll()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	close(t.stop)
	t.logger.Info("system tray exiting")
}

func (t *Tray) poll() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		t.UpdateActive(t.exports.Active())
		select {
		case <-ticker.C:
		case <-t.stop:
			return
		}
	}
}

func (t *Tray) handleCancelAll() {
	n := t.exports.CancelAll()
	t.logger.Info("cancel all requested from tray", "cancelled", n)
	t.UpdateActive(t.exports.Active())
}

// UpdateActive refreshes the menu for n running exports.
func (t *Tray) UpdateActive(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == t.active {
		return
	}
	t.active = n
	t.statusItem.SetTitle(statusTitle(n))
	if n > 0 {
		t.cancelItem.Enable()
	} else {
		t.cancelItem.Disable()
	}
}

func statusTitle(active int) string {
	switch active {
	case 0:
		return "Status: Idle"
	case 1:
		return "Status: Exporting 1 video"
	default:
		return fmt.Sprintf("Status: Exporting %d videos", active)
	}
}

func (t *Tray) Quit() {
	systray.Quit()
}
