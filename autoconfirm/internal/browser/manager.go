// CLAUDE:SUMMARY Chrome lifecycle for the daemon: local launch or remote attach, optional Xvfb display, heap/uptime recycling with a reattach hook.
// Package browser owns the Chrome instance the daemon drives and the tabs
// it opens, and exposes each tab as a scannable page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by a Manager after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how a locally launched Chrome runs.
type Mode string

const (
	ModeHeadless Mode = "headless"
	// ModeHeadful runs a visible Chrome on an Xvfb display.
	ModeHeadful Mode = "headful"
)

// Config configures the Manager.
type Config struct {
	// RemoteURL attaches to an existing Chrome over its DevTools websocket.
	// Empty launches a local Chrome.
	RemoteURL string
	// Bin overrides the Chrome binary for local launches.
	Bin  string
	Mode Mode
	// XvfbDisplay is the display used in headful mode. Default: ":99".
	XvfbDisplay string

	// MemoryLimit recycles Chrome once the JS heap of the first tab exceeds
	// it. Default: 1 GiB.
	MemoryLimit int64
	// RecycleInterval recycles Chrome after this uptime. Default: 4h.
	RecycleInterval time.Duration
	// CheckInterval is how often the limits are checked. Default: 30s.
	CheckInterval time.Duration

	// ResourceBlocking lists request types never loaded: images, fonts,
	// media, stylesheets, or raw CDP resource types.
	ResourceBlocking []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModeHeadless
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager starts Chrome, watches its health and replaces it when it grows
// too old or too large. Tabs are not carried over a recycle; the
// OnRecycle hook reopens them.
type Manager struct {
	cfg Config

	mu        sync.RWMutex
	browser   *rod.Browser
	launcher  *launcher.Launcher
	xvfb      *exec.Cmd
	startedAt time.Time
	closed    bool
	onRecycle func(ctx context.Context, b *rod.Browser)
}

// NewManager creates a Manager. Start launches Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnRecycle registers fn to run after Chrome has been replaced.
func (m *Manager) OnRecycle(fn func(ctx context.Context, b *rod.Browser)) {
	m.mu.Lock()
	m.onRecycle = fn
	m.mu.Unlock()
}

// Start brings Chrome up and runs the health monitor until ctx ends.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	b, err := m.connect()
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startedAt = time.Now()
	go m.monitor(ctx)
	return b, nil
}

// Browser returns the live browser, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Recycle replaces Chrome and runs the OnRecycle hook.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.cfg.Logger.Info("browser: recycling", "uptime", time.Since(m.startedAt).Round(time.Second))
	m.teardown()
	b, err := m.connect()
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startedAt = time.Now()
	hook := m.onRecycle
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, b)
	}
	return nil
}

// Close stops Chrome and Xvfb. The Manager cannot be restarted.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.teardown()
	return nil
}

func (m *Manager) connect() (*rod.Browser, error) {
	log := m.cfg.Logger
	controlURL := m.cfg.RemoteURL

	if controlURL == "" {
		if m.cfg.Mode == ModeHeadful {
			if err := m.startXvfb(); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
		}
		l := launcher.New().
			Headless(m.cfg.Mode != ModeHeadful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == ModeHeadful {
			l = l.Env(append(os.Environ(), "DISPLAY="+m.cfg.XvfbDisplay)...)
		}
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		m.launcher = l
		controlURL = u
		log.Info("browser: chrome launched", "mode", m.cfg.Mode)
	} else {
		log.Info("browser: attaching to remote chrome", "url", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) teardown() {
	if m.browser != nil {
		if m.cfg.RemoteURL == "" {
			m.browser.Close()
		}
		m.browser = nil
	}
	if m.launcher != nil {
		m.launcher.Cleanup()
		m.launcher = nil
	}
	m.stopXvfb()
}

func (m *Manager) monitor(ctx context.Context) {
	log := m.cfg.Logger
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		b, closed, age := m.browser, m.closed, time.Since(m.startedAt)
		m.mu.RUnlock()
		if closed {
			return
		}
		if b == nil {
			continue
		}

		reason := ""
		if age > m.cfg.RecycleInterval {
			reason = "uptime"
		} else if used, err := heapUsed(b); err != nil {
			log.Debug("browser: heap check failed", "error", err)
		} else if used > m.cfg.MemoryLimit {
			reason = "memory"
			log.Info("browser: heap over limit", "used", used, "limit", m.cfg.MemoryLimit)
		}
		if reason == "" {
			continue
		}
		if err := m.Recycle(ctx); err != nil {
			log.Error("browser: recycle failed", "reason", reason, "error", err)
		}
	}
}

func heapUsed(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		return 0, errors.New("no open pages")
	}
	res, err := pages[0].Eval(`() => (performance.memory ? performance.memory.usedJSHeapSize : 0)`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
