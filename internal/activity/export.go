package activity

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects the text encoding used by Export.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Document is the portable export of an activity log.
type Document struct {
	ExportedAt time.Time `json:"exportedAt" yaml:"exportedAt"`
	Count      int       `json:"count" yaml:"count"`
	Events     []Event   `json:"events" yaml:"events"`
}

// Export writes events as a single document. It has no effect on any
// log; callers pass a copy obtained from Log.All.
func Export(w io.Writer, events []Event, format Format, at time.Time) error {
	if events == nil {
		events = []Event{}
	}
	doc := Document{ExportedAt: at.UTC(), Count: len(events), Events: events}

	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode json export: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml export: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("flush yaml export: %w", err)
		}
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
	return nil
}
