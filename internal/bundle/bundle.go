// Package bundle moves prompts between a prompta server and the local
// filesystem: it validates downloaded bundles, writes them out as files,
// and collects files for import.
package bundle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/prompta/internal/prompts"
)

//go:embed schema.json
var schemaJSON []byte

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// ErrNoContent is returned when writing a bundle downloaded without content.
var ErrNoContent = errors.New("bundle was downloaded without content")

func bundleSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("bundle.json", bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("failed to load bundle schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("bundle.json")
	})
	return compiled, compileErr
}

// Parse validates data against the bundle schema and decodes it.
func Parse(data []byte) (*prompts.Bundle, error) {
	sch, err := bundleSchema()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("bundle does not match schema: %w", err)
	}

	var b prompts.Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return &b, nil
}

// ReadFile parses the bundle stored at path.
func ReadFile(path string) (*prompts.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return Parse(data)
}

// NormalizeLocation turns a stored location into a relative file path.
// A leading "~/" or "./" is dropped; leading dots of hidden directories
// such as ".cursor/rules" are kept.
func NormalizeLocation(location string) string {
	loc := strings.TrimSpace(location)
	if strings.HasPrefix(loc, "~") {
		loc = strings.TrimLeft(loc[1:], "/")
	}
	loc = strings.TrimPrefix(loc, "./")
	return strings.TrimLeft(loc, "/")
}

// WriteFiles writes each prompt's current content to dest/<location> and
// returns the paths written. Locations that would escape dest are rejected.
func WriteFiles(dest string, b *prompts.Bundle) ([]string, error) {
	var written []string
	for _, p := range b.Prompts {
		if p.CurrentVersion == nil {
			continue
		}
		if p.CurrentVersion.Content == prompts.ExcludedContent {
			return written, ErrNoContent
		}

		rel := filepath.Clean(filepath.FromSlash(NormalizeLocation(p.Location)))
		if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return written, fmt.Errorf("prompt %q: location %q escapes the destination", p.Name, p.Location)
		}
		path := filepath.Join(dest, rel)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(path, []byte(p.CurrentVersion.Content), 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", rel, err)
		}
		written = append(written, path)
	}
	return written, nil
}
