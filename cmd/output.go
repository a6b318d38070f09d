package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"column-indexer/internal/outline"

	"gopkg.in/yaml.v3"
)

// render writes v as json or yaml, or calls text for the default format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return text(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// writeTree prints one heading per line, indented by depth, marking active.
func writeTree(w io.Writer, f outline.Forest, active string) error {
	var err error
	f.Walk(func(n *outline.Node, depth int) bool {
		if err != nil {
			return false
		}
		marker := "-"
		if n.ID == active {
			marker = ">"
		}
		_, err = fmt.Fprintf(w, "%s%s %s (#%s)\n", strings.Repeat("  ", depth), marker, n.Title, n.ID)
		return true
	})
	return err
}
