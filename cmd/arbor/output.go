package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Output formats shared by the commands that print a map.
const (
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatOutline = "outline"
	formatMindmap = "mindmap"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTree prints root in the requested format.
func writeTree(w io.Writer, root *domain.Node, format string) error {
	switch format {
	case formatJSON, "":
		if root == nil {
			return writeJSON(w, emptyMap())
		}
		return writeJSON(w, root)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(root)
	case formatOutline:
		return tui.Print(w, tui.Outline(root), w == os.Stdout && tui.IsTerminal(os.Stdout))
	case formatMindmap:
		_, err := io.WriteString(w, graph.GenerateMindmap(root))
		return err
	default:
		return fmt.Errorf("unknown format %q (want json, yaml, outline or mindmap)", format)
	}
}

// emptyMap is the shape clients expect for a map with no content.
func emptyMap() map[string]any {
	return map[string]any{
		"name":       "",
		"attributes": map[string]string{domain.AttrNote: ""},
		"children":   []any{},
	}
}
