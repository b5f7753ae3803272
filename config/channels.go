package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrTemplateWritten is returned when the mapping file was missing and an example was created
// in its place. The process should exit so the operator can fill it in.
var ErrTemplateWritten = errors.New("channel mapping file not found, template written")

// ChannelMappings maps a source channel (username without '@', or numeric chat id) to its
// destination channel.
type ChannelMappings map[string]string

var templateMappings = ChannelMappings{"source_channel_username": "destination_channel_username"}

// LoadChannelMappings reads the source to destination mapping from a JSON object file.
func LoadChannelMappings(path string) (ChannelMappings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := WriteChannelTemplate(path); werr != nil {
			return nil, fmt.Errorf("%s not found and template could not be written: %w", path, werr)
		}
		return nil, fmt.Errorf("%s: %w", path, ErrTemplateWritten)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("could not parse %s, check for syntax errors (e.g. missing commas): %w", path, err)
	}

	mappings := make(ChannelMappings, len(raw))
	for src, dst := range raw {
		src = NormalizeSource(src)
		dst = strings.TrimSpace(dst)
		if src == "" || dst == "" {
			return nil, fmt.Errorf("%s: empty source or destination in mapping %q -> %q", path, src, dst)
		}
		if _, dup := mappings[src]; dup {
			return nil, fmt.Errorf("%s: source %q is mapped more than once", path, src)
		}
		mappings[src] = dst
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%s contains no channel mappings", path)
	}
	return mappings, nil
}

// WriteChannelTemplate writes an example mapping file.
func WriteChannelTemplate(path string) error {
	data, err := json.MarshalIndent(templateMappings, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// NormalizeSource canonicalizes a source reference: trimmed, without '@', lower-cased.
// Telegram usernames are case-insensitive.
func NormalizeSource(src string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(src), "@"))
}

// Destination returns the destination mapped to source.
func (m ChannelMappings) Destination(source string) (string, bool) {
	dst, ok := m[NormalizeSource(source)]
	return dst, ok
}
