package bundle

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/jackzampolin/prompta/internal/prompts"
)

// IgnoreFileName holds extra ignore patterns for imports, in .gitignore
// syntax.
const IgnoreFileName = ".promptaignore"

// DefaultIgnorePatterns are skipped on every import.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"vendor",
	".DS_Store",
	IgnoreFileName,
}

// DefaultExtensions are the file types collected for import.
var DefaultExtensions = []string{".md", ".mdc", ".txt", ".prompt"}

// Item is one prompt to import.
type Item struct {
	Name        string
	Description string
	Location    string
	Content     string
	Tags        []string
	IsPublic    bool
}

// Collect walks root and returns an Item for every file with one of exts,
// skipping paths matched by DefaultIgnorePatterns, root/.gitignore and
// root/.promptaignore. Locations are slash-separated and relative to root.
func Collect(root string, exts []string) ([]Item, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}

	patterns := append([]string{}, DefaultIgnorePatterns...)
	for _, name := range []string{".gitignore", IgnoreFileName} {
		lines, err := readIgnoreLines(filepath.Join(root, name))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		patterns = append(patterns, lines...)
	}
	matcher := gitignore.CompileIgnoreLines(patterns...)

	var items []Item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		location := filepath.ToSlash(rel)
		items = append(items, Item{
			Name:     NameFromLocation(location),
			Location: location,
			Content:  string(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FromBundle turns a downloaded bundle back into import items. Prompts
// without content are skipped.
func FromBundle(b *prompts.Bundle) []Item {
	items := make([]Item, 0, len(b.Prompts))
	for _, p := range b.Prompts {
		if p.CurrentVersion == nil || p.CurrentVersion.Content == prompts.ExcludedContent {
			continue
		}
		items = append(items, Item{
			Name:        p.Name,
			Description: p.Description,
			Location:    p.Location,
			Content:     p.CurrentVersion.Content,
			Tags:        p.Tags,
			IsPublic:    p.IsPublic,
		})
	}
	return items
}

// NameFromLocation derives a prompt name from a location by dropping the
// extension: "rules/style.md" becomes "rules/style".
func NameFromLocation(location string) string {
	return strings.TrimSuffix(location, filepath.Ext(location))
}

func readIgnoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
