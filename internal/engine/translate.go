package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"spiderfetch/internal/consts"
)

// go-ytdlp progress statuses.
const (
	ytStarting       = "starting"
	ytDownloading    = "downloading"
	ytPostProcessing = "post_processing"
	ytError          = "error"
	ytFinished       = "finished"
)

// reFormatFile matches intermediate per-format files such as "clip.f137.mp4".
var reFormatFile = regexp.MustCompile(`(?i)\.f[0-9]+\.[a-z0-9]{1,6}$`)

type update struct {
	Status        string
	Filename      string
	Downloaded    int64
	Total         int64
	Started       time.Time
	ETA           time.Duration
	Title         string
	PlaylistIndex int
	PlaylistCount int
}

func fromYTdlp(u ytdlp.ProgressUpdate) update {
	up := update{
		Status:     fmt.Sprint(u.Status),
		Filename:   u.Filename,
		Downloaded: int64(u.DownloadedBytes),
		Total:      int64(u.TotalBytes),
		Started:    u.Started,
		ETA:        u.ETA(),
	}

	if u.Info == nil {
		return up
	}

	if u.Info.Title != nil {
		up.Title = *u.Info.Title
	}

	var meta struct {
		PlaylistIndex *float64 `json:"playlist_index"`
		NEntries      *float64 `json:"n_entries"`
	}

	raw, err := json.Marshal(u.Info)
	if err != nil || json.Unmarshal(raw, &meta) != nil {
		return up
	}

	if meta.PlaylistIndex != nil {
		up.PlaylistIndex = int(*meta.PlaylistIndex)
	}

	if meta.NEntries != nil {
		up.PlaylistCount = int(*meta.NEntries)
	}

	return up
}

// translator turns go-ytdlp progress updates into hook calls.
// The library reports postprocessing only as a status, so stage names are inferred from the request.
type translator struct {
	hooks Hooks
	audio *AudioExtraction
	now   func() time.Time
	last  map[string]string // filename : last status
}

func newTranslator(req Request, hooks Hooks) *translator {
	return &translator{
		hooks: hooks,
		audio: req.ExtractAudio,
		now:   time.Now,
		last:  make(map[string]string),
	}
}

func (t *translator) handle(u update) error {
	prev := t.last[u.Filename]
	t.last[u.Filename] = u.Status

	switch u.Status {
	case ytStarting, ytDownloading:
		return t.hooks.OnProgress(t.progress(u, StatusDownloading))
	case ytFinished:
		if prev == ytFinished {
			return nil
		}

		return t.hooks.OnProgress(t.progress(u, StatusFinished))
	case ytError:
		return t.hooks.OnProgress(t.progress(u, StatusError))
	case ytPostProcessing:
		if prev == ytPostProcessing {
			return nil
		}

		ev := PostprocessEvent{
			Status:        PPStatusStarted,
			Postprocessor: t.stageName(u.Filename),
			Title:         u.Title,
			PlaylistIndex: u.PlaylistIndex,
			Filepath:      u.Filename,
		}
		if t.audio != nil {
			ev.Codec = t.audio.Codec
		}

		return t.hooks.OnPostprocess(ev)
	default:
		return nil
	}
}

// finalize reports an item the engine finished moving into place.
func (t *translator) finalize(item ResultJSON) error {
	return t.hooks.OnPostprocess(PostprocessEvent{
		Status:        PPStatusFinished,
		Postprocessor: consts.PPMoveFiles,
		Title:         item.Title,
		PlaylistIndex: item.PlaylistIndex,
		Filepath:      item.Filepath,
	})
}

func (t *translator) stageName(filename string) string {
	switch {
	case t.audio != nil:
		return consts.PPExtractAudio
	case reFormatFile.MatchString(filename):
		return consts.PPMerger
	default:
		return ""
	}
}

func (t *translator) progress(u update, status string) ProgressEvent {
	ev := ProgressEvent{
		Status:        status,
		Title:         u.Title,
		PlaylistIndex: u.PlaylistIndex,
		PlaylistCount: u.PlaylistCount,
		Filepath:      u.Filename,
		Downloaded:    u.Downloaded,
		Total:         u.Total,
		ETA:           -1,
	}

	if u.ETA > 0 {
		ev.ETA = int64(u.ETA.Seconds())
	}

	if !u.Started.IsZero() {
		if elapsed := t.now().Sub(u.Started).Seconds(); elapsed > 0 {
			ev.Speed = float64(u.Downloaded) / elapsed
		}
	}

	return ev
}
