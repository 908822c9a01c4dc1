package main

import (
	"regexp"
	"strings"
)

var extraWhitespace = regexp.MustCompile("[[:space:]]+")

// NormalizeLine
// Collapses runs of whitespace to single spaces and strips leading and
// trailing whitespace, so the example builder only ever sees clean
// space-delimited lines. Lines that were only whitespace collapse to the
// empty string, i.e. a document boundary.
func NormalizeLine(line string) string {
	return strings.TrimSpace(extraWhitespace.ReplaceAllString(line, " "))
}
