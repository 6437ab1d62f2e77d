package nokia

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CLI commands understood by the 7360 ISAM FX family
const (
	// VersionCommand is harmless and used to verify connectivity
	VersionCommand = "show version"

	opticsCommandPrefix = "show equipment ont optics ont-id"
)

// OpticsCommand returns the command reading optics for an ONT path
func OpticsCommand(ontPath string) string {
	return fmt.Sprintf("%s %s", opticsCommandPrefix, ontPath)
}

var (
	lineBreak  = regexp.MustCompile(`\r?\n`)
	dbmPattern = regexp.MustCompile(`(?i)([-+]?\d+(?:\.\d+)?)\s*dBm`)
)

// ParseRxDBm extracts the received optical power from CLI output.
// The first line mentioning both RX and dBm wins; otherwise the first dBm
// value anywhere in the text. Returns nil when no value is present.
func ParseRxDBm(raw string) *float64 {
	if raw == "" {
		return nil
	}

	for _, line := range lineBreak.Split(raw, -1) {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "rx") || !strings.Contains(lower, "dbm") {
			continue
		}
		if v, ok := firstDBm(line); ok {
			return &v
		}
	}

	if v, ok := firstDBm(raw); ok {
		return &v
	}
	return nil
}

func firstDBm(s string) (float64, bool) {
	m := dbmPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
