package downloader

import (
	"regexp"
	"strings"
	"unicode"

	"spiderfetch/internal/consts"
)

var (
	reForbidden  = regexp.MustCompile(`[\\/*?"<>|\x00-\x1f]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Sanitize turns a title into a file name that is valid on every supported OS.
// It is idempotent and never returns an empty string.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, ":", " - ")
	name = reForbidden.ReplaceAllString(name, "")
	name = reWhitespace.ReplaceAllString(name, " ")
	name = strings.TrimLeftFunc(name, unicode.IsSpace)
	name = strings.TrimRightFunc(name, func(r rune) bool { return r == '.' || unicode.IsSpace(r) })

	if name == "" {
		return consts.DefaultFilename
	}

	return name
}
