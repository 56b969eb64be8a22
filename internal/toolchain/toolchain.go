// Package toolchain locates the external binaries the engine runs: yt-dlp, ffmpeg and ffprobe.
// The bundled bins directory is searched before PATH. Missing binaries can optionally be
// downloaded into the bins directory on start.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"spiderfetch/internal/config"
	"spiderfetch/internal/errs"
)

// Binary names an external tool.
type Binary string

// Known binaries.
const (
	BinaryYTdlp   Binary = "yt-dlp"
	BinaryFFmpeg  Binary = "ffmpeg"
	BinaryFFprobe Binary = "ffprobe"
)

const (
	platformLinux   = "linux"
	platformWindows = "windows"
	archARM64       = "arm64"
	archAMD64       = "amd64"

	filePermExecutable = 0o755
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

// String returns the platform as "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager resolves and optionally installs binaries.
type Manager struct {
	log      *slog.Logger
	cfg      config.Toolchain
	platform Platform
	client   *http.Client
	lookPath func(file string) (string, error)

	mu    sync.RWMutex
	paths map[Binary]string // binary : resolved path
}

// New creates a manager for the current platform.
func New(log *slog.Logger, cfg config.Toolchain) *Manager {
	return &Manager{
		log:      log.With(slog.String("package", "toolchain")),
		cfg:      cfg,
		platform: Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
		client:   &http.Client{Timeout: cfg.DownloadTimeout},
		lookPath: exec.LookPath,
		paths:    make(map[Binary]string),
	}
}

// Start installs missing binaries when auto install is on, then locates all of them.
// A failed install is logged and discovery continues with whatever is present.
// It returns the warnings a front end should show for binaries that were not found.
func (m *Manager) Start(ctx context.Context) []string {
	log := m.log.With(slog.String("func", "Start"))

	if m.cfg.AutoInstall {
		if err := m.Install(ctx); err != nil {
			log.WarnContext(ctx, "auto install failed", slog.Any("error", err))
		}
	}

	m.Locate()

	var warnings []string

	for _, bin := range m.Missing() {
		msg := fmt.Sprintf("Warning: %s not found. Some features may not work.", bin)
		warnings = append(warnings, msg)

		log.WarnContext(ctx, "binary not found", slog.String("binary", string(bin)),
			slog.String("bins_dir", m.cfg.BinsDir), slog.Bool("use_system", m.cfg.UseSystemBinaries))
	}

	m.mu.RLock()
	log.InfoContext(ctx, "toolchain located", slog.Any("binaries", m.paths))
	m.mu.RUnlock()

	return warnings
}

// Locate resolves every binary: the bins directory first, then PATH when system binaries are allowed.
func (m *Manager) Locate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, bin := range []Binary{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe} {
		m.paths[bin] = m.resolve(bin)
	}
}

func (m *Manager) resolve(bin Binary) string {
	if bundled := m.BinaryPath(bin); isExecutableFile(bundled) {
		return bundled
	}

	if !m.cfg.UseSystemBinaries {
		return ""
	}

	path, err := m.lookPath(m.filename(bin))
	if err != nil {
		return ""
	}

	return path
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// BinaryPath returns where bin lives inside the bins directory.
//   - /app/bins + ffmpeg => /app/bins/ffmpeg (ffmpeg.exe on windows)
func (m *Manager) BinaryPath(bin Binary) string {
	return filepath.Join(m.cfg.BinsDir, m.filename(bin))
}

func (m *Manager) filename(bin Binary) string {
	if m.platform.OS == platformWindows {
		return string(bin) + ".exe"
	}

	return string(bin)
}

// Path returns the resolved path of bin, or "" when it was not found.
func (m *Manager) Path(bin Binary) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.paths[bin]
}

// FFmpegPath returns the resolved ffmpeg path, or "".
func (m *Manager) FFmpegPath() string { return m.Path(BinaryFFmpeg) }

// FFprobePath returns the resolved ffprobe path, or "".
func (m *Manager) FFprobePath() string { return m.Path(BinaryFFprobe) }

// YTdlpPath returns the resolved yt-dlp path, or "".
func (m *Manager) YTdlpPath() string { return m.Path(BinaryYTdlp) }

// RequireYTdlp returns the yt-dlp path or errs.ErrBinaryNotFound.
func (m *Manager) RequireYTdlp() (string, error) {
	path := m.YTdlpPath()
	if path == "" {
		return "", fmt.Errorf("%w: %s", errs.ErrBinaryNotFound, BinaryYTdlp)
	}

	return path, nil
}

// Missing lists the binaries Locate could not resolve.
func (m *Manager) Missing() []Binary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var missing []Binary

	for _, bin := range []Binary{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe} {
		if m.paths[bin] == "" {
			missing = append(missing, bin)
		}
	}

	return missing
}

// Install downloads yt-dlp and the ffmpeg build into the bins directory unless already present.
// ffprobe comes from the ffmpeg archive.
func (m *Manager) Install(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.BinsDir, filePermExecutable); err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	var errList []error

	for _, bin := range []Binary{BinaryYTdlp, BinaryFFmpeg} {
		targets := m.targets(bin)

		if !slices.ContainsFunc(targets, func(name string) bool {
			return !isExecutableFile(filepath.Join(m.cfg.BinsDir, name))
		}) {
			m.log.DebugContext(ctx, "binary already installed", slog.String("binary", string(bin)))

			continue
		}

		if err := m.install(ctx, bin, targets); err != nil {
			errList = append(errList, fmt.Errorf("install %s: %w", bin, err))
		}
	}

	return errors.Join(errList...)
}

// targets returns the file names bin provides once installed.
func (m *Manager) targets(bin Binary) []string {
	if bin == BinaryFFmpeg {
		return []string{m.filename(BinaryFFmpeg), m.filename(BinaryFFprobe)}
	}

	return []string{m.filename(bin)}
}

func (m *Manager) install(ctx context.Context, bin Binary, targets []string) error {
	url := m.downloadURL(bin)
	if url == "" {
		return fmt.Errorf("%w: %s on %s", errs.ErrUnsupportedPlatform, bin, m.platform)
	}

	log := m.log.With(slog.String("binary", string(bin)), slog.String("url", url))
	log.InfoContext(ctx, "downloading binary")

	installed, err := m.download(ctx, url, targets)
	if err != nil {
		return err
	}

	for _, path := range installed {
		if err := os.Chmod(path, filePermExecutable); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}

	log.InfoContext(ctx, "binary installed", slog.Any("paths", installed))

	return nil
}

func (m *Manager) downloadURL(bin Binary) string {
	switch bin {
	case BinaryYTdlp:
		return m.selectURL(m.cfg.YTdlpLinuxARM64, m.cfg.YTdlpLinuxAMD64, m.cfg.YTdlpWindowsAMD64)
	case BinaryFFmpeg, BinaryFFprobe:
		return m.selectURL(m.cfg.FFmpegLinuxARM64, m.cfg.FFmpegLinuxAMD64, m.cfg.FFmpegWindowsAMD64)
	default:
		return ""
	}
}

func (m *Manager) selectURL(linuxARM64, linuxAMD64, windowsAMD64 string) string {
	switch m.platform {
	case Platform{OS: platformLinux, Arch: archARM64}:
		return linuxARM64
	case Platform{OS: platformLinux, Arch: archAMD64}:
		return linuxAMD64
	case Platform{OS: platformWindows, Arch: archAMD64}:
		return windowsAMD64
	default:
		return ""
	}
}
