// Package shellquote renders command lines that can be pasted into bash or zsh.
package shellquote

import (
	"strings"
)

// bare lists the characters an argument may consist of to stay unquoted.
const bare = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

// inside double quotes \ " $ ` keep their meaning; control characters are spelled out.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Quote returns s unchanged when it is made of bare characters only,
// otherwise double-quoted and escaped. The empty string becomes "".
func Quote(s string) string {
	if s == "" {
		return `""`
	}

	if !strings.ContainsFunc(s, func(r rune) bool { return !strings.ContainsRune(bare, r) }) {
		return s
	}

	return `"` + escaper.Replace(s) + `"`
}

// Join quotes bin and args and joins them with single spaces.
func Join(bin string, args []string) string {
	parts := make([]string, 0, 1+len(args))
	parts = append(parts, Quote(bin))

	for _, arg := range args {
		parts = append(parts, Quote(arg))
	}

	return strings.Join(parts, " ")
}
