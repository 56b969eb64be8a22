package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/entity"
)

const (
	defaultMockSteps    = 10
	defaultMockItemSize = 10 << 20
)

// MockOptions scripts the simulated engine.
type MockOptions struct {
	// Items is the playlist size used when a playlist request names no items.
	Items    int
	Steps    int
	ItemTime time.Duration
	ItemSize int64
	// FailItems maps a playlist index to the engine message it fails with.
	FailItems map[int]string

	Info     *entity.MediaInfo
	InfoErr  error
	Links    []string
	LinksErr error
}

var _ Engine = (*Mock)(nil)

// Mock simulates downloads by emitting hook events on a timer and writing small files to staging.
type Mock struct {
	log  *slog.Logger
	opts MockOptions

	mu   sync.Mutex
	urls []string
}

// NewMock creates a simulated engine.
func NewMock(log *slog.Logger, opts MockOptions) *Mock {
	if opts.Items < 1 {
		opts.Items = 1
	}

	if opts.Steps < 1 {
		opts.Steps = defaultMockSteps
	}

	if opts.ItemTime <= 0 {
		opts.ItemTime = consts.DefaultSimulateTime
	}

	if opts.ItemSize <= 0 {
		opts.ItemSize = defaultMockItemSize
	}

	return &Mock{
		log:  log.With(slog.String("package", "engine"), slog.String("engine", consts.EngineMock)),
		opts: opts,
	}
}

// Downloads returns the URLs Download was called with, in call order.
func (m *Mock) Downloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.urls...)
}

// Download simulates a download of every requested item.
func (m *Mock) Download(ctx context.Context, req Request, hooks Hooks) error {
	m.mu.Lock()
	m.urls = append(m.urls, req.URL)
	m.mu.Unlock()

	log := m.log.With(slog.String("func", "Download"), slog.String("url", req.URL))

	staging := filepath.Dir(req.OutputTemplate)
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	items := m.items(req)
	aggregate := int64(len(items)) * m.opts.ItemSize

	var failures []string

	for n, idx := range items {
		sim := itemSim{mock: m, req: req, hooks: hooks, staging: staging, index: idx, done: int64(n) * m.opts.ItemSize, aggregate: aggregate}

		msg, err := sim.run(ctx)
		if err != nil {
			return err
		}

		if msg != "" {
			log.InfoContext(ctx, "simulated item failure", slog.Int("playlist_index", idx), slog.String("error", msg))
			failures = append(failures, msg)
		}
	}

	if len(failures) > 0 {
		return &Error{Msg: CleanError(consts.EngineErrPrefix + " " + failures[0])}
	}

	return nil
}

type itemSim struct {
	mock      *Mock
	req       Request
	hooks     Hooks
	staging   string
	index     int
	done      int64
	aggregate int64
}

// run returns a non-empty message when the item fails the way a real extraction would.
func (s itemSim) run(ctx context.Context) (string, error) {
	opts := s.mock.opts
	title := "Mock Video"

	if s.index > 0 {
		title = fmt.Sprintf("Mock Video %d", s.index)
	}

	partial := filepath.Join(s.staging, title+".f137.mp4")
	stepDelay := opts.ItemTime / time.Duration(opts.Steps)
	start := time.Now()

	failMsg, fails := opts.FailItems[s.index]

	for step := 1; step <= opts.Steps; step++ {
		if err := sleep(ctx, stepDelay); err != nil {
			return "", err
		}

		if fails && step > opts.Steps/2 {
			return failMsg, nil
		}

		downloaded := opts.ItemSize * int64(step) / int64(opts.Steps)
		elapsed := time.Since(start).Seconds()

		ev := ProgressEvent{
			Status:              StatusDownloading,
			Title:               title,
			PlaylistIndex:       s.index,
			Filepath:            partial,
			Downloaded:          downloaded,
			Total:               opts.ItemSize,
			AggregateDownloaded: s.done + downloaded,
			AggregateTotal:      s.aggregate,
			ETA:                 -1,
		}

		if elapsed > 0 {
			ev.Speed = float64(downloaded) / elapsed
			ev.ETA = int64(float64(opts.ItemSize-downloaded) / ev.Speed)
		}

		if err := s.hooks.OnProgress(ev); err != nil {
			return "", err
		}
	}

	if err := s.hooks.OnProgress(ProgressEvent{
		Status: StatusFinished, Title: title, PlaylistIndex: s.index, Filepath: partial,
		Downloaded: opts.ItemSize, Total: opts.ItemSize,
		AggregateDownloaded: s.done + opts.ItemSize, AggregateTotal: s.aggregate,
	}); err != nil {
		return "", err
	}

	return "", s.postprocess(title)
}

func (s itemSim) postprocess(title string) error {
	pp, ext, codec := consts.PPMerger, s.req.MergeOutputFormat, ""
	if s.req.ExtractAudio != nil {
		pp, ext, codec = consts.PPExtractAudio, s.req.ExtractAudio.Codec, s.req.ExtractAudio.Codec
	}

	if ext == "" {
		ext = consts.DefaultMergeFormat
	}

	final := filepath.Join(s.staging, title+"."+ext)
	ev := PostprocessEvent{Postprocessor: pp, Title: title, PlaylistIndex: s.index, Filepath: final, Codec: codec}

	ev.Status = PPStatusStarted
	if err := s.hooks.OnPostprocess(ev); err != nil {
		return err
	}

	if err := os.WriteFile(final, []byte("mock media "+title), 0o644); err != nil {
		return fmt.Errorf("write staged file: %w", err)
	}

	ev.Status = PPStatusFinished
	if err := s.hooks.OnPostprocess(ev); err != nil {
		return err
	}

	ev.Postprocessor = consts.PPMoveFiles

	return s.hooks.OnPostprocess(ev)
}

// items resolves the playlist indices to simulate. Zero means a single non-playlist item.
func (m *Mock) items(req Request) []int {
	if !req.IsPlaylist {
		return []int{0}
	}

	if req.PlaylistItems != "" {
		if items := parseItems(req.PlaylistItems); len(items) > 0 {
			return items
		}
	}

	items := make([]int, 0, m.opts.Items)
	for i := 1; i <= m.opts.Items; i++ {
		items = append(items, i)
	}

	return items
}

// parseItems understands "1,3,5-7" and "2:4".
func parseItems(spec string) []int {
	var items []int

	for part := range strings.SplitSeq(spec, ",") {
		part = strings.TrimSpace(part)

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			lo, hi, isRange = strings.Cut(part, ":")
		}

		from, err := strconv.Atoi(lo)
		if err != nil {
			continue
		}

		to := from
		if isRange {
			if to, err = strconv.Atoi(hi); err != nil {
				continue
			}
		}

		for i := from; i <= to; i++ {
			items = append(items, i)
		}
	}

	return items
}

// Extract returns the scripted info, or a single-video info derived from url.
func (m *Mock) Extract(ctx context.Context, url string, _ ExtractOptions) (*entity.MediaInfo, error) {
	if err := sleep(ctx, m.opts.ItemTime/time.Duration(m.opts.Steps)); err != nil {
		return nil, err
	}

	if m.opts.InfoErr != nil {
		return nil, m.opts.InfoErr
	}

	if m.opts.Info != nil {
		info := *m.opts.Info

		return &info, nil
	}

	return &entity.MediaInfo{ID: "mock", Type: "video", Title: "Mock Video", Extractor: consts.EngineMock, WebpageURL: url}, nil
}

// Links returns the scripted links, or one fake direct URL.
func (m *Mock) Links(ctx context.Context, url, _ string) ([]string, error) {
	if err := sleep(ctx, m.opts.ItemTime/time.Duration(m.opts.Steps)); err != nil {
		return nil, err
	}

	if m.opts.LinksErr != nil {
		return nil, m.opts.LinksErr
	}

	if m.opts.Links != nil {
		return append([]string(nil), m.opts.Links...), nil
	}

	return []string{url + "#direct"}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
