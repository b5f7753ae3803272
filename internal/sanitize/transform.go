package sanitize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Transform rewrites a post body before it is filtered and translated.
type Transform func(string) string

// StripLinkAnnotationsName is the registry name of StripLinkAnnotations.
const StripLinkAnnotationsName = "strip_link_annotations"

var linkAnnotationPattern = regexp.MustCompile(`\s*\([^)]*https?://[^)]+\)`)

var registry = map[string]Transform{
	StripLinkAnnotationsName: StripLinkAnnotations,
	"trim":                   strings.TrimSpace,
}

// StripLinkAnnotations drops parenthesised link annotations such as "(source: https://...)".
func StripLinkAnnotations(text string) string {
	return strings.TrimSpace(linkAnnotationPattern.ReplaceAllString(text, ""))
}

// Lookup returns the transform registered under name.
func Lookup(name string) (Transform, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown text transform %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists registered transform names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain resolves names into a single transform applied left to right.
// An empty list yields nil.
func Chain(names []string) (Transform, error) {
	if len(names) == 0 {
		return nil, nil
	}
	steps := make([]Transform, 0, len(names))
	for _, name := range names {
		t, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, t)
	}
	return func(text string) string {
		for _, step := range steps {
			text = step(text)
		}
		return text
	}, nil
}
