// Package render formats prompts and diffs for a terminal.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"
)

// DefaultWidth is the word-wrap width for rendered markdown.
const DefaultWidth = 80

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// Markdown renders content as terminal markdown wrapped at width.
func Markdown(content string, width int) (string, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(content)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// Diff colours a unified diff line by line.
func Diff(diff string) string {
	if diff == "" {
		return ""
	}
	lines := strings.SplitAfter(diff, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		nl := len(text) != len(line)

		switch {
		case strings.HasPrefix(text, "---"), strings.HasPrefix(text, "+++"):
			text = headerStyle.Render(text)
		case strings.HasPrefix(text, "@@"):
			text = hunkStyle.Render(text)
		case strings.HasPrefix(text, "+"):
			text = addedStyle.Render(text)
		case strings.HasPrefix(text, "-"):
			text = removedStyle.Render(text)
		}
		b.WriteString(text)
		if nl {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Suggest returns up to limit names that fuzzily match target, best first.
func Suggest(target string, names []string, limit int) []string {
	if target == "" || len(names) == 0 {
		return nil
	}
	matches := fuzzy.Find(target, names)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}
