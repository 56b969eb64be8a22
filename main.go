// entry point of the application
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"spiderfetch/internal/config"
	"spiderfetch/internal/console"
	"spiderfetch/internal/downloader"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	httprouter "spiderfetch/internal/infrastructure/delivery/http"
	"spiderfetch/internal/infrastructure/delivery/http/request"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/observability"
	"spiderfetch/internal/service"
	"spiderfetch/internal/storage"
	"spiderfetch/internal/toolchain"
	httpserver "spiderfetch/pkg/http/server"
	"spiderfetch/pkg/logger"
)

const droppedEventsInterval = 5 * time.Second

type cliFlags struct {
	dest     string
	format   string
	playlist bool
	items    string
	info     bool
	links    bool
}

func parseFlags(cfg *config.Config) cliFlags {
	var f cliFlags

	flag.StringVar(&f.dest, "dest", cfg.Dir.Downloads, "destination directory")
	flag.StringVar(&f.format, "format", cfg.App.Format, `format choice, e.g. "Best Video (MP4)", "720p" or "Download Audio Only (MP3)"`)
	flag.BoolVar(&f.playlist, "playlist", false, "download the URLs as playlists")
	flag.StringVar(&f.items, "items", "", `playlist items to download, e.g. "1,3,5-7"`)
	flag.BoolVar(&f.info, "info", false, "fetch metadata of the first URL instead of downloading")
	flag.BoolVar(&f.links, "links", false, "print direct media links of the first URL instead of downloading")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] URL...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	return f
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := run(ctx)

	stop()
	os.Exit(code)
}

func run(ctx context.Context) int {
	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))

		return 1
	}

	flags := parseFlags(cfg)

	log, err := logger.New(&logger.Options{
		AddSource: cfg.App.AddSource,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	if flag.NArg() == 0 && cfg.HTTP.Addr == "" {
		flag.Usage()

		return 2
	}

	metrics := observability.New(nil)

	tools := toolchain.New(log, cfg.Toolchain)
	warnings := tools.Start(ctx)

	eng, err := newEngine(log, cfg, tools)
	if err != nil {
		log.ErrorContext(ctx, "engine unavailable", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "yt-dlp was not found; set SPIDERFETCH_TOOLCHAIN_AUTO_INSTALL=true or install it")

		return 1
	}

	exec := downloader.New(log, eng, metrics, downloader.Options{
		StagingTemplate:     cfg.Dir.StagingTemplate(),
		FFmpegPath:          tools.FFmpegPath(),
		Retries:             cfg.Engine.Retries,
		FragmentRetries:     cfg.Engine.FragmentRetries,
		ConcurrentFragments: cfg.Engine.ConcurrentFragments,
		NoCheckCertificates: cfg.Engine.NoCheckCertificates,
	})

	// the dispatcher outlives ctx so the final events of a shutdown are still rendered
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatcher := notify.NewDispatcher(log, cfg.Queue.EventBuffer)

	var bg sync.WaitGroup

	bg.Go(func() { dispatcher.Run(dispatchCtx) })
	bg.Go(func() { reportDropped(dispatchCtx, dispatcher, metrics) })

	queue := service.New(log, service.Options{
		PollInterval:      cfg.Queue.PollInterval,
		ShutdownTimeout:   cfg.Queue.ShutdownTimeout,
		InfoPlaylistLimit: cfg.Engine.InfoPlaylistLimit,
		FinishedTTL:       cfg.Queue.FinishedTTL,
		CleanupInterval:   cfg.Queue.CleanupInterval,
	}, storage.New(log), exec, eng, dispatcher, metrics)

	renderer := console.New(log, os.Stdout, queue.Task)
	dispatcher.Subscribe(renderer.Handle)

	for _, w := range warnings {
		fmt.Fprintln(os.Stdout, "[!] "+w)
	}

	var srv *httpserver.Server

	if cfg.HTTP.Addr != "" {
		router := httprouter.New(log, queue, dispatcher, metrics.Handler(), request.Defaults{
			Destination: cfg.Dir.Downloads,
			Format:      cfg.App.Format,
		})
		srv = httpserver.New(router, httpserver.Options{Addr: cfg.HTTP.Addr, ShutdownTimeout: cfg.HTTP.ShutdownTimeout})

		log.InfoContext(ctx, "control API listening", slog.String("addr", cfg.HTTP.Addr))
	}

	queue.Start(ctx)

	waiter := newWaiter()
	dispatcher.Subscribe(waiter.observe)

	failed := submit(ctx, log, queue, waiter, flags, flag.Args())

	log.InfoContext(ctx, "spiderfetch started", slog.Int("urls", flag.NArg()), slog.Bool("http", srv != nil))

	code := wait(ctx, log, waiter, srv)
	if failed {
		code = 1
	}

	if err := queue.Shutdown(); err != nil {
		log.WarnContext(ctx, "queue shutdown", slog.Any("error", err))
	}

	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			log.ErrorContext(ctx, "http shutdown", slog.Any("error", err))
		}
	}

	stopDispatch()
	bg.Wait()

	if code == 0 && waiter.failures() > 0 {
		code = 1
	}

	log.InfoContext(ctx, "spiderfetch shut down gracefully", slog.Int("exit_code", code))

	return code
}

func newEngine(log *slog.Logger, cfg *config.Config, tools *toolchain.Manager) (engine.Engine, error) {
	if cfg.Engine.Mock {
		return engine.NewMock(log, engine.MockOptions{}), nil
	}

	path, err := tools.RequireYTdlp()
	if err != nil {
		return nil, fmt.Errorf("locate yt-dlp: %w", err)
	}

	return engine.NewYTdlp(log, engine.Options{
		Executable:   path,
		CacheDir:     cfg.Dir.Cache,
		Proxy:        cfg.Engine.Proxy,
		ProgressFreq: cfg.Engine.ProgressFreq,
		CookieFile:   cfg.Engine.CookieFile,
	}), nil
}

// submit enqueues the command line URLs, or starts the requested fetch.
// It reports whether anything was rejected.
func submit(ctx context.Context, log *slog.Logger, queue service.Queue, w *waiter, f cliFlags, urls []string) bool {
	if len(urls) == 0 {
		return false
	}

	switch {
	case f.info:
		w.expectFetch(notify.SourceInfo)

		if err := queue.StartInfoFetch(ctx, urls[0]); err != nil {
			w.fetchDone(notify.SourceInfo)

			return true
		}

		return false
	case f.links:
		w.expectFetch(notify.SourceLinks)

		if err := queue.StartLinkFetch(ctx, urls[0], f.format); err != nil {
			w.fetchDone(notify.SourceLinks)

			return true
		}

		return false
	}

	failed := false

	for _, url := range urls {
		id, err := queue.AddTask(entity.TaskRequest{
			URL:           url,
			Destination:   f.dest,
			Format:        f.format,
			IsPlaylist:    f.playlist,
			PlaylistItems: f.items,
		})
		if err != nil {
			log.ErrorContext(ctx, "add task", slog.String("url", url), slog.Any("error", err))

			failed = true

			continue
		}

		w.expectTask(id)
	}

	return failed
}

// wait blocks until the submitted work is done, or until a signal when the control API is served.
func wait(ctx context.Context, log *slog.Logger, w *waiter, srv *httpserver.Server) int {
	drained := w.drained()
	if srv != nil {
		drained = nil
	}

	var serverErr <-chan error
	if srv != nil {
		serverErr = srv.Notify()
	}

	select {
	case <-ctx.Done():
		log.InfoContext(ctx, "shutdown signal received")

		return 130
	case <-drained:
		return 0
	case err := <-serverErr:
		log.ErrorContext(ctx, "http server failed", slog.Any("error", err))

		return 1
	}
}

func reportDropped(ctx context.Context, d *notify.Dispatcher, m *observability.Metrics) {
	ticker := time.NewTicker(droppedEventsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.SetEventsDropped(d.Dropped())

			return
		case <-ticker.C:
			m.SetEventsDropped(d.Dropped())
		}
	}
}
