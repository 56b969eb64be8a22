package config_test

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spiderfetch/internal/config"
)

//go:embed testdata/.env.custom
var envCustom []byte

func parseEnv(r io.Reader) (map[string]string, error) {
	env := make(map[string]string)
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid line %d: %q", lineNo, line)
		}

		env[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan env: %w", err)
	}

	return env, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		env  []byte
		want func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "defaults",
			env:  nil,
			want: func(t *testing.T, cfg *config.Config) {
				t.Helper()

				if cfg.Queue.PollInterval != 500*time.Millisecond {
					t.Errorf("PollInterval = %v, want 500ms", cfg.Queue.PollInterval)
				}

				if cfg.Queue.ShutdownTimeout != 5*time.Second {
					t.Errorf("ShutdownTimeout = %v, want 5s", cfg.Queue.ShutdownTimeout)
				}

				if cfg.Engine.Retries != 5 || cfg.Engine.FragmentRetries != 5 || cfg.Engine.ConcurrentFragments != 4 {
					t.Errorf("unexpected engine retries: %+v", cfg.Engine)
				}

				if cfg.Engine.InfoPlaylistLimit != 500 {
					t.Errorf("InfoPlaylistLimit = %d, want 500", cfg.Engine.InfoPlaylistLimit)
				}

				if cfg.Engine.Mock {
					t.Error("mock engine must be off by default")
				}

				if cfg.HTTP.Addr != "" || cfg.HTTP.ShutdownTimeout != 3*time.Second {
					t.Errorf("control API must be off by default: %+v", cfg.HTTP)
				}
			},
		},
		{
			name: "custom env file",
			env:  envCustom,
			want: func(t *testing.T, cfg *config.Config) {
				t.Helper()

				if cfg.App.LogLevel != "debug" || cfg.App.LogFormat != "text" {
					t.Errorf("unexpected app config: %+v", cfg.App)
				}

				if cfg.Queue.PollInterval != 250*time.Millisecond {
					t.Errorf("PollInterval = %v, want 250ms", cfg.Queue.PollInterval)
				}

				if cfg.Queue.FinishedTTL != time.Hour {
					t.Errorf("FinishedTTL = %v, want 1h", cfg.Queue.FinishedTTL)
				}

				if cfg.Engine.Retries != 3 || cfg.Engine.ConcurrentFragments != 8 || !cfg.Engine.Mock {
					t.Errorf("unexpected engine config: %+v", cfg.Engine)
				}

				if cfg.HTTP.Addr != ":8089" {
					t.Errorf("HTTP.Addr = %q, want :8089", cfg.HTTP.Addr)
				}

				if !strings.HasSuffix(cfg.Dir.Downloads, filepath.Join("data", "custom", "downloads")) {
					t.Errorf("unexpected downloads dir %q", cfg.Dir.Downloads)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := parseEnv(bytes.NewReader(tt.env))
			if err != nil {
				t.Fatalf("parseEnv() failed: %v", err)
			}

			for key, value := range env {
				t.Setenv(key, value)
			}

			got, err := config.New()
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}

			for _, dir := range []string{got.Dir.Downloads, got.Dir.Staging, got.Dir.Cache, got.Toolchain.BinsDir} {
				if !filepath.IsAbs(dir) {
					t.Errorf("expected absolute path, got %s", dir)
				}
			}

			if !strings.HasPrefix(got.Dir.StagingTemplate(), got.Dir.Staging) {
				t.Errorf("staging template %q is not rooted at %q", got.Dir.StagingTemplate(), got.Dir.Staging)
			}

			tt.want(t, got)
		})
	}
}
