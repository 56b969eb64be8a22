package downloader

import (
	"fmt"
	"regexp"
	"strings"

	"spiderfetch/internal/consts"
	"spiderfetch/internal/engine"
)

var reHeight = regexp.MustCompile(`\b(\d{3,4})p\b`)

// Format is the engine selection derived from a user format choice.
type Format struct {
	Selector          string
	MergeOutputFormat string
	ExtractAudio      *engine.AudioExtraction
	// Ext is the expected final extension, empty when the engine decides.
	Ext string
	// NeedsFFmpeg is set when the selection only works with a transcoder.
	NeedsFFmpeg bool
}

// BuildFormat maps a format choice such as "Best Video (MP4)", "1080p" or
// "Download Audio Only (MP3)" to an engine selector.
func BuildFormat(choice string, ffmpegAvailable bool) Format {
	if choice == consts.FormatAudioMP3 {
		f := Format{
			Selector:    "bestaudio[ext=opus]/bestaudio[ext=m4a]/ba/best",
			NeedsFFmpeg: true,
		}

		if ffmpegAvailable {
			f.Ext = consts.AudioCodecMP3
			f.ExtractAudio = &engine.AudioExtraction{Codec: consts.AudioCodecMP3, Quality: consts.AudioQualityMP3}
		}

		return f
	}

	var parts []string

	if m := reHeight.FindStringSubmatch(choice); m != nil {
		h := fmt.Sprintf("[height<=%s]", m[1])
		parts = []string{
			"bv" + h + "[ext=mp4]+ba[ext=m4a]/b" + h + "[ext=mp4]",
			"bv" + h + "[ext=webm]+ba[ext=opus]/b" + h + "[ext=webm]",
			"bv" + h + "+ba/b" + h,
			"b" + h + "[ext=mp4]",
			"b" + h + "[ext=webm]",
			"b" + h,
		}
	} else {
		parts = []string{
			"bv[ext=mp4]+ba[ext=m4a]/b[ext=mp4]",
			"bv[ext=webm]+ba[ext=opus]/b[ext=webm]",
			"bv+ba/b",
			"b[ext=mp4]",
			"b[ext=webm]",
			"b",
		}
	}

	return Format{
		Selector:          strings.Join(parts, "/"),
		MergeOutputFormat: consts.DefaultMergeFormat,
		Ext:               consts.DefaultMergeFormat,
		NeedsFFmpeg:       true,
	}
}
