// Package seed reads the YAML file of resources registered at startup.
package seed

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/manager"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Loader handles loading and parsing of a seed file
type Loader struct {
	filePath string
}

// NewLoader creates a new seed loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the seed file and returns its entries with uris normalized
// and statuses defaulted.
func (l *Loader) Load() ([]Entry, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	data = stripTemplateVariables(data)

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed yaml: %w", err)
	}

	entries := make([]Entry, 0, len(file.Resources))
	for _, e := range file.Resources {
		reduce := e.Reduce == nil || *e.Reduce
		e.URI = domain.NormalizeURI(e.URI, reduce)
		if e.Status == 0 {
			e.Status = domain.StatusFound.Code()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Request turns e into a trusted registration.
func (e Entry) Request() manager.RegisterRequest {
	req := manager.RegisterRequest{
		URI:    e.URI,
		Status: e.Status,
		Tags:   e.Tags,
		Pairs:  e.Pairs,
	}
	if e.Location != "" {
		loc := e.Location
		req.Location = &loc
	}
	return req
}

// stripTemplateVariables blanks {{VAR}} placeholders.
// Example: uri: {{SEED_HOST}} -> uri: ""
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
