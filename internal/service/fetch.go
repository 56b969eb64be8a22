package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"spiderfetch/internal/cancel"
	"spiderfetch/internal/consts"
	"spiderfetch/internal/downloader"
	"spiderfetch/internal/engine"
	"spiderfetch/internal/entity"
	"spiderfetch/internal/errs"
	"spiderfetch/internal/notify"
	"spiderfetch/internal/observability"
	"spiderfetch/pkg/urls"
)

// fetchSlot admits at most one fetch at a time. Each admitted fetch gets a fresh token.
type fetchSlot struct {
	mu    sync.Mutex
	token *cancel.Token
}

func (s *fetchSlot) acquire() (*cancel.Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		return nil, false
	}

	s.token = cancel.New()

	return s.token, true
}

func (s *fetchSlot) release(t *cancel.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == t {
		s.token = nil
	}
}

func (s *fetchSlot) cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == nil {
		return false
	}

	s.token.Cancel()

	return true
}

// fetchOutcome is what a fetch flow reports in its finished event.
type fetchOutcome struct {
	info     *entity.MediaInfo
	links    []string
	degraded bool
	err      error
}

// fetchFlow runs one single-flight fetch in the background.
type fetchFlow struct {
	source notify.Source
	flow   string
	slot   *fetchSlot
	busy   string
	run    func(ctx context.Context, token *cancel.Token) fetchOutcome
}

func (q *queue) startFetch(ctx context.Context, f fetchFlow) error {
	if q.closed.Load() {
		return errs.ErrServiceClosed
	}

	token, ok := f.slot.acquire()
	if !ok {
		q.emit(notify.Event{Kind: notify.KindStatus, Source: f.source, Tag: notify.TagWarning, Message: f.busy, Err: errs.ErrFetchInProgress})

		return errs.ErrFetchInProgress
	}

	q.fetches.Go(func() { q.runFetch(ctx, f, token) })

	return nil
}

// runFetch always emits exactly one finished event for the flow.
func (q *queue) runFetch(ctx context.Context, f fetchFlow, token *cancel.Token) {
	var out fetchOutcome

	defer func() {
		if r := recover(); r != nil {
			q.log.ErrorContext(ctx, "fetch panicked", slog.String("flow", f.flow), slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))

			out = fetchOutcome{err: fmt.Errorf("%w: %v", errPanic, r)}
			q.fetchStatus(f.source, notify.TagError, fmt.Sprintf(consts.MsgFetchUnexpected, out.err), out.err)
		}

		f.slot.release(token)
		q.metrics.RecordFetch(f.flow, fetchResult(out))
		q.emit(notify.Event{Kind: notify.KindFinished, Source: f.source, Info: out.info, Links: out.links, Err: out.err})
	}()

	out = f.run(ctx, token)
}

func fetchResult(out fetchOutcome) string {
	switch {
	case out.err == nil && out.degraded:
		return observability.ResultDegraded
	case out.err == nil:
		return observability.ResultSuccess
	case errors.Is(out.err, errs.ErrCancelled):
		return observability.ResultCancelled
	default:
		return observability.ResultError
	}
}

func (q *queue) fetchStatus(source notify.Source, tag notify.Tag, msg string, err error) {
	q.emit(notify.Event{Kind: notify.KindStatus, Source: source, Tag: tag, Message: msg, Err: err})
}

func (q *queue) fetchProgress(source notify.Source, fraction float64) {
	q.emit(notify.Event{Kind: notify.KindProgress, Source: source, Progress: fraction})
}

// StartInfoFetch fetches metadata for url in the background. A second call while
// one is running is rejected with errs.ErrFetchInProgress.
func (q *queue) StartInfoFetch(ctx context.Context, url string) error {
	url = urls.Normalize(url)
	if url == "" {
		q.fetchStatus(notify.SourceInfo, notify.TagError, consts.MsgFetchURLRequired, errs.ErrEmptyURL)

		return errs.ErrEmptyURL
	}

	return q.startFetch(ctx, fetchFlow{
		source: notify.SourceInfo,
		flow:   observability.FlowInfo,
		slot:   &q.info,
		busy:   consts.MsgFetchBusy,
		run: func(ctx context.Context, token *cancel.Token) fetchOutcome {
			return q.fetchInfo(ctx, url, token)
		},
	})
}

// CancelFetchInfo cancels the running info fetch and reports whether there was one.
func (q *queue) CancelFetchInfo() bool {
	return q.info.cancel()
}

func (q *queue) fetchInfo(ctx context.Context, url string, token *cancel.Token) fetchOutcome {
	log := q.log.With(slog.String("func", "fetchInfo"), slog.String("url", url))

	q.fetchStatus(notify.SourceInfo, notify.TagInfo, consts.MsgFetching, nil)
	q.fetchProgress(notify.SourceInfo, 0)

	if err := token.Check("before info fetch"); err != nil {
		return q.fetchCancelled(notify.SourceInfo, consts.MsgFetchCancelled, err)
	}

	runCtx, stop := token.Bind(ctx)
	defer stop()

	info, err := q.engine.Extract(runCtx, url, engine.ExtractOptions{PlaylistLimit: q.opts.InfoPlaylistLimit})

	if cerr := token.Check("after info fetch"); cerr != nil {
		return q.fetchCancelled(notify.SourceInfo, consts.MsgFetchCancelled, cerr)
	}

	var engErr *engine.Error

	degraded := false

	if errors.As(err, &engErr) && engErr.Partial != nil {
		log.WarnContext(ctx, "engine error with partial info", slog.String("error", engErr.Msg))

		info, err, degraded = engErr.Partial, nil, true
	}

	switch {
	case errors.As(err, &engErr):
		msg := fmt.Sprintf(consts.MsgFetchFailed, engErr.Msg)
		q.fetchStatus(notify.SourceInfo, notify.TagError, msg, err)

		return fetchOutcome{err: err}
	case errors.Is(err, errs.ErrNoInfo), err == nil && info == nil:
		q.fetchStatus(notify.SourceInfo, notify.TagError, consts.MsgInvalidInfo, errs.ErrNoInfo)

		return fetchOutcome{err: errs.ErrNoInfo}
	case err != nil:
		log.ErrorContext(ctx, "info fetch failed", slog.Any("error", err))
		q.fetchStatus(notify.SourceInfo, notify.TagError, fmt.Sprintf(consts.MsgFetchUnexpected, err), err)

		return fetchOutcome{err: err}
	}

	filterEntries(info)

	if !degraded && info.Entries != nil && len(info.Entries) == 0 && info.ExtractorKey == consts.ExtractorYTTab {
		q.fetchStatus(notify.SourceInfo, notify.TagError, consts.MsgEmptyPlaylist, errs.ErrEmptyPlaylist)

		return fetchOutcome{err: errs.ErrEmptyPlaylist}
	}

	if !degraded {
		q.fetchStatus(notify.SourceInfo, notify.TagSuccess, consts.MsgFetched, nil)
		q.fetchProgress(notify.SourceInfo, 1)
	}

	log.InfoContext(ctx, "info fetched", slog.Any("info", info), slog.Bool("degraded", degraded))

	return fetchOutcome{info: info, degraded: degraded}
}

// filterEntries drops playlist entries the engine could not resolve.
func filterEntries(info *entity.MediaInfo) {
	if info.Entries == nil {
		return
	}

	valid := make([]*entity.MediaEntry, 0, len(info.Entries))

	for _, e := range info.Entries {
		if e != nil && (e.ID != "" || e.URL != "") {
			valid = append(valid, e)
		}
	}

	info.Entries = valid
}

func (q *queue) fetchCancelled(source notify.Source, msg string, err error) fetchOutcome {
	q.fetchStatus(source, notify.TagCancelled, msg, err)

	return fetchOutcome{err: err}
}

// StartLinkFetch resolves direct media links of url for format in the background.
func (q *queue) StartLinkFetch(ctx context.Context, url, format string) error {
	url = urls.Normalize(url)
	if url == "" {
		q.fetchStatus(notify.SourceLinks, notify.TagError, consts.MsgFetchURLRequired, errs.ErrEmptyURL)

		return errs.ErrEmptyURL
	}

	return q.startFetch(ctx, fetchFlow{
		source: notify.SourceLinks,
		flow:   observability.FlowLinks,
		slot:   &q.links,
		busy:   consts.MsgLinksBusy,
		run: func(ctx context.Context, token *cancel.Token) fetchOutcome {
			return q.fetchLinks(ctx, url, format, token)
		},
	})
}

// CancelLinkFetch cancels the running link fetch and reports whether there was one.
func (q *queue) CancelLinkFetch() bool {
	return q.links.cancel()
}

func (q *queue) fetchLinks(ctx context.Context, url, format string, token *cancel.Token) fetchOutcome {
	log := q.log.With(slog.String("func", "fetchLinks"), slog.String("url", url))

	q.fetchStatus(notify.SourceLinks, notify.TagInfo, consts.MsgLinksPreparing, nil)

	if err := token.Check("before link fetch"); err != nil {
		return q.fetchCancelled(notify.SourceLinks, consts.MsgLinksCancelled, err)
	}

	selector := ""
	if format != "" {
		selector = downloader.BuildFormat(format, true).Selector
		q.fetchStatus(notify.SourceLinks, notify.TagInfo, fmt.Sprintf(consts.MsgLinksFetching, format), nil)
	}

	runCtx, stop := token.Bind(ctx)
	defer stop()

	links, err := q.engine.Links(runCtx, url, selector)

	if cerr := token.Check("after link fetch"); cerr != nil {
		return q.fetchCancelled(notify.SourceLinks, consts.MsgLinksCancelled, cerr)
	}

	var engErr *engine.Error

	switch {
	case errors.Is(err, errs.ErrBinaryNotFound):
		q.fetchStatus(notify.SourceLinks, notify.TagError, consts.MsgLinksBinaryAbsent, err)

		return fetchOutcome{err: err}
	case errors.Is(err, errs.ErrNoLinks):
		q.fetchStatus(notify.SourceLinks, notify.TagError, consts.MsgLinksEmpty, err)

		return fetchOutcome{err: err}
	case errors.As(err, &engErr):
		q.fetchStatus(notify.SourceLinks, notify.TagError, fmt.Sprintf(consts.MsgLinksFailed, engErr.Msg), err)

		return fetchOutcome{err: err}
	case err != nil:
		log.ErrorContext(ctx, "link fetch failed", slog.Any("error", err))
		q.fetchStatus(notify.SourceLinks, notify.TagError, fmt.Sprintf(consts.MsgFetchUnexpected, err), err)

		return fetchOutcome{err: err}
	}

	q.fetchStatus(notify.SourceLinks, notify.TagSuccess, fmt.Sprintf(consts.MsgLinksFetched, len(links)), nil)
	log.InfoContext(ctx, "links fetched", slog.Int("count", len(links)))

	return fetchOutcome{links: links}
}
