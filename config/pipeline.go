package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAdMarkers mark advertisement posts that are never translated.
var DefaultAdMarkers = []string{"#реклама", "Реклама.", "#промо"}

// SourcePipeline holds per-source processing settings.
type SourcePipeline struct {
	Transforms []string `yaml:"transforms"`
}

// Pipeline is the optional pipeline.yaml document.
type Pipeline struct {
	AdMarkers []string                  `yaml:"ad_markers"`
	Sources   map[string]SourcePipeline `yaml:"sources"`
}

// LoadPipeline reads pipeline settings from a YAML file. A missing file yields the defaults.
func LoadPipeline(path string) (*Pipeline, error) {
	p := &Pipeline{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if p.AdMarkers == nil {
		p.AdMarkers = append([]string(nil), DefaultAdMarkers...)
	}
	sources := make(map[string]SourcePipeline, len(p.Sources))
	for name, sp := range p.Sources {
		sources[NormalizeSource(name)] = sp
	}
	p.Sources = sources
	return p, nil
}

// TransformsFor returns the transform names configured for source.
func (p *Pipeline) TransformsFor(source string) []string {
	return p.Sources[NormalizeSource(source)].Transforms
}

// ContainsAdMarker reports whether text contains any configured advertisement marker.
func (p *Pipeline) ContainsAdMarker(text string) bool {
	for _, marker := range p.AdMarkers {
		if marker != "" && strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
