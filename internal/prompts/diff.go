package prompts

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffContext is the number of unchanged lines shown around each hunk.
const diffContext = 3

// Diff returns a unified line diff from one version to another, with
// "--- Version a" and "+++ Version b" headers. Identical content yields "".
func Diff(from, to *Version) (string, error) {
	return DiffText(from.Content, to.Content, from.VersionNumber, to.VersionNumber)
}

// DiffText diffs two bodies of text labelled with version numbers. A missing
// newline at the end of the text is not a change: "a" and "a\n" compare
// equal, while a real trailing blank line shows up as an added line.
func DiffText(a, b string, fromNumber, toNumber int) (string, error) {
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(a),
		B:        splitLines(b),
		FromFile: fmt.Sprintf("Version %d", fromNumber),
		ToFile:   fmt.Sprintf("Version %d", toNumber),
		Context:  diffContext,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compute diff: %w", err)
	}
	return out, nil
}

// splitLines splits after each newline. An unterminated last line gets one so
// every diff line ends in "\n".
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}
