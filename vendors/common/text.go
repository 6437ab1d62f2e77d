package common

import (
	"regexp"
	"strings"
)

// ansiRegex matches ANSI escape sequences (colors, cursor movement, etc.)
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// StripANSI removes ANSI escape codes from a string.
// OLT CLIs emit them for paging and colored status columns.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// NormalizeNewlines converts CRLF line endings to LF and drops stray CRs
// left by Telnet line discipline
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "")
}

// CleanTerminalText normalizes newlines and strips escape codes
func CleanTerminalText(s string) string {
	return StripANSI(NormalizeNewlines(s))
}
