// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	App       App
	Queue     Queue
	Engine    Engine
	Dir       Dir
	Toolchain Toolchain
	HTTP      HTTP
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"SPIDERFETCH_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"SPIDERFETCH_APP_LOG_FORMAT" envDefault:"json"`
	AddSource bool   `env:"SPIDERFETCH_APP_LOG_SOURCE" envDefault:"true"`
	// Format is the format choice used for tasks added from the command line.
	Format string `env:"SPIDERFETCH_APP_FORMAT" envDefault:"Best Video (MP4)"`
}

// Queue holds download queue configuration.
type Queue struct {
	PollInterval    time.Duration `env:"SPIDERFETCH_QUEUE_POLL_INTERVAL"    envDefault:"500ms"`
	ShutdownTimeout time.Duration `env:"SPIDERFETCH_QUEUE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	EventBuffer     int           `env:"SPIDERFETCH_QUEUE_EVENT_BUFFER"     envDefault:"256"`
	// FinishedTTL is how long finished tasks stay in the registry. Zero keeps them until pruned.
	FinishedTTL     time.Duration `env:"SPIDERFETCH_QUEUE_FINISHED_TTL"     envDefault:"0s"`
	CleanupInterval time.Duration `env:"SPIDERFETCH_QUEUE_CLEANUP_INTERVAL" envDefault:"1m"`
}

// Engine holds extraction engine configuration.
type Engine struct {
	Retries             int           `env:"SPIDERFETCH_ENGINE_RETRIES"              envDefault:"5"`
	FragmentRetries     int           `env:"SPIDERFETCH_ENGINE_FRAGMENT_RETRIES"     envDefault:"5"`
	ConcurrentFragments int           `env:"SPIDERFETCH_ENGINE_CONCURRENT_FRAGMENTS" envDefault:"4"`
	InfoPlaylistLimit   int           `env:"SPIDERFETCH_ENGINE_INFO_PLAYLIST_LIMIT"  envDefault:"500"`
	ProgressFreq        time.Duration `env:"SPIDERFETCH_ENGINE_PROGRESS_FREQ"        envDefault:"200ms"`
	NoCheckCertificates bool          `env:"SPIDERFETCH_ENGINE_NO_CHECK_CERTIFICATES" envDefault:"true"`
	Proxy               string        `env:"SPIDERFETCH_ENGINE_PROXY"                envDefault:""`
	// Mock replaces the real engine with a simulated one.
	Mock bool `env:"SPIDERFETCH_ENGINE_MOCK" envDefault:"false"`

	// must point to a cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"SPIDERFETCH_ENGINE_COOKIE_FILE" envDefault:""`
}

// Dir holds directory paths for downloads, staging and cache.
type Dir struct {
	Downloads string `env:"SPIDERFETCH_DIR_DOWNLOADS" envDefault:"./data/downloads"` // default destination
	Staging   string `env:"SPIDERFETCH_DIR_STAGING"   envDefault:"./data/staging"`   // engine writes here first
	Cache     string `env:"SPIDERFETCH_DIR_CACHE"     envDefault:"./data/cache"`     // yt-dlp cache (meta, sigs)

	// see: https://github.com/yt-dlp/yt-dlp/blob/2025.09.05/README.md#output-template
	OutputTemplate string `env:"SPIDERFETCH_DIR_OUTPUT_TEMPLATE" envDefault:"%(title)s.%(ext)s"`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (d *Dir) SetAbsPaths() error {
	var err error
	if d.Downloads, err = filepath.Abs(d.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if d.Staging, err = filepath.Abs(d.Staging); err != nil {
		return fmt.Errorf("staging: %w", err)
	}

	if d.Cache, err = filepath.Abs(d.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	return nil
}

// StagingTemplate returns the engine output template rooted at the staging directory.
func (d *Dir) StagingTemplate() string {
	return filepath.Join(d.Staging, d.OutputTemplate)
}

// Toolchain holds external binary discovery and installation configuration.
type Toolchain struct {
	// BinsDir is the bundled binaries directory, checked before PATH.
	BinsDir string `env:"SPIDERFETCH_TOOLCHAIN_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries allows falling back to binaries found in PATH.
	UseSystemBinaries bool `env:"SPIDERFETCH_TOOLCHAIN_USE_SYSTEM_BINARIES" envDefault:"true"`
	// AutoInstall downloads missing binaries into BinsDir on start.
	AutoInstall     bool          `env:"SPIDERFETCH_TOOLCHAIN_AUTO_INSTALL"     envDefault:"false"`
	DownloadTimeout time.Duration `env:"SPIDERFETCH_TOOLCHAIN_DOWNLOAD_TIMEOUT" envDefault:"10m"`

	// ffmpeg archive URLs per platform.
	FFmpegLinuxARM64   string `env:"SPIDERFETCH_TOOLCHAIN_FFMPEG_LINUX_ARM64"   envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64   string `env:"SPIDERFETCH_TOOLCHAIN_FFMPEG_LINUX_AMD64"   envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll
	FFmpegWindowsAMD64 string `env:"SPIDERFETCH_TOOLCHAIN_FFMPEG_WINDOWS_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-win64-gpl.zip"`      //nolint:lll

	// yt-dlp binary URLs per platform.
	YTdlpLinuxARM64   string `env:"SPIDERFETCH_TOOLCHAIN_YTDLP_LINUX_ARM64"   envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64   string `env:"SPIDERFETCH_TOOLCHAIN_YTDLP_LINUX_AMD64"   envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll
	YTdlpWindowsAMD64 string `env:"SPIDERFETCH_TOOLCHAIN_YTDLP_WINDOWS_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp.exe"`           //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (t *Toolchain) SetAbsPaths() error {
	var err error
	if t.BinsDir, err = filepath.Abs(t.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// HTTP holds the optional control API configuration.
type HTTP struct {
	// Addr enables the control API and /metrics when not empty, e.g. ":8080".
	Addr            string        `env:"SPIDERFETCH_HTTP_ADDR"             envDefault:""`
	ShutdownTimeout time.Duration `env:"SPIDERFETCH_HTTP_SHUTDOWN_TIMEOUT" envDefault:"3s"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.Toolchain.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set toolchain absolute paths: %w", err)
	}

	return cfg, nil
}
