package engine

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	maxJSONSize = 10 * 1024 * 1024                                       // 10 MiB scanner buffer
	bufSize     = 4096                                                   // 4 KiB buffer size
	reFilepath  = regexp.MustCompile(`(?i)^[^\{\[\n].*\.[a-z0-9]{1,6}$`) // file path

	// changing this may break ParseStdout().
	printAfterMove = "after_move:filepath"
)

// ResultJSON is the subset of the engine's per-item JSON the finalizer needs.
type ResultJSON struct {
	Type          string `json:"_type"`
	ID            string `json:"id"`
	Title         string `json:"title"`
	Ext           string `json:"ext"`
	PlaylistIndex int    `json:"playlist_index"`
	NEntries      int    `json:"n_entries"`
	Extractor     string `json:"extractor"`
	WebpageURL    string `json:"webpage_url"`
	// Filepath is the final path printed after the engine moved the item.
	Filepath string `json:"-"`
}

// ParseStdout reads JSON item lines followed by their after-move file paths.
// A path line is attached to the last JSON item seen; stray lines are skipped.
func ParseStdout(stdout string) []ResultJSON {
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	scanner.Buffer(make([]byte, bufSize), maxJSONSize)

	var res []ResultJSON

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "{") {
			var r ResultJSON
			if err := json.Unmarshal([]byte(line), &r); err == nil {
				res = append(res, r)

				continue
			}
		}

		if reFilepath.MatchString(line) && len(res) > 0 {
			res[len(res)-1].Filepath = line
		}
	}

	return res
}
