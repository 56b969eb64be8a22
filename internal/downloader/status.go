package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/engine"
)

// downloadStatus renders the multi-line status shown while bytes are transferred.
func downloadStatus(ev engine.ProgressEvent, fraction float64, pl playlistState) string {
	lines := make([]string, 0, 4)

	if pl.enabled {
		lines = append(lines, videoLine(pl.index, pl.total), pl.selectedLine())
	} else {
		lines = append(lines, consts.MsgDownloadingVideo)
	}

	total := consts.MsgUnknownSize
	if t := max(ev.Total, ev.TotalEstimate); t > 0 {
		total = humanize.IBytes(uint64(t))
	}

	lines = append(lines,
		fmt.Sprintf("Progress: %.1f%% (%s / %s)", fraction*100, humanize.IBytes(uint64(max(ev.Downloaded, 0))), total),
		"Speed: "+speedText(ev.Speed)+" | ETA: "+etaText(ev.ETA),
	)

	return strings.Join(lines, "\n")
}

func videoLine(index, total int) string {
	if total > 0 {
		return fmt.Sprintf("Video %d out of %d total", index, total)
	}

	return fmt.Sprintf("Video %d", index)
}

func speedText(speed float64) string {
	if speed <= 0 {
		return consts.MsgCalculating
	}

	return humanize.IBytes(uint64(speed)) + "/s"
}

func etaText(eta int64) string {
	if eta < 0 {
		return consts.MsgCalculating
	}

	return fmt.Sprintf("%d seconds remaining", eta)
}

// stageMessage names a postprocessing stage for the status line.
func stageMessage(name, codec string) string {
	switch name {
	case consts.PPMerger:
		return consts.MsgMerging
	case consts.PPExtractAudio:
		if codec == "" || codec == consts.AudioCodecMP3 {
			return consts.MsgConvertingMP3
		}

		return fmt.Sprintf(consts.MsgExtractingAudio, codec)
	case consts.PPVideoConvert:
		return consts.MsgConvertingVideo
	case consts.PPMoveFiles:
		return consts.MsgOrganizingFiles
	case "":
		return consts.MsgFinalProcessing
	default:
		return fmt.Sprintf(consts.MsgProcessingWithPP, name)
	}
}

// processingMessage is shown when the engine finishes writing one file.
func processingMessage(path string) string {
	if path == "" {
		return consts.MsgProcessingFile
	}

	return consts.MsgProcessingPrefix + filepath.Base(path) + "..."
}
