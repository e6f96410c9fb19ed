package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Overlay marks nodes to highlight on the diagram.
type Overlay struct {
	Changed []string
	Current string
}

// GenerateMermaid produces a Mermaid flowchart from a laid-out snapshot.
// Nodes keep the snapshot order so the output is stable. Shapes:
// - Root (no incoming tree edge): ((Circle))
// - Node with a note: (Rounded)
// - Default: [Rectangle]
// Tree edges are solid and user-drawn links are dotted.
func GenerateMermaid(snap domain.Snapshot, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	hasParent := make(map[string]bool, len(snap.Edges))
	for _, e := range snap.Edges {
		if e.Kind != domain.EdgeLink {
			hasParent[e.Target] = true
		}
	}

	for _, node := range snap.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch {
		case !hasParent[node.ID]:
			opener, closer = "((", "))"
		case node.Note != nil && *node.Note != "":
			opener, closer = "(", ")"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeLabel(node.Label), closer))
	}

	for _, e := range snap.Edges {
		arrow := "-->"
		if e.Kind == domain.EdgeLink {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast on light fills in either theme.
		sb.WriteString("    classDef changed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Changed {
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] && safeID != "" {
				seen[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s changed;\n", safeID))
			}
		}
		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

// GenerateMindmap produces Mermaid mindmap syntax, where nesting is expressed
// by indentation.
func GenerateMindmap(root *domain.Node) string {
	var sb strings.Builder
	sb.WriteString("mindmap\n")
	if root == nil {
		return sb.String()
	}

	type frame struct {
		node  *domain.Node
		depth int
	}
	stack := []frame{{root, 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		indent := strings.Repeat("  ", f.depth)
		if f.depth == 1 {
			sb.WriteString(fmt.Sprintf("%sroot((%s))\n", indent, mindmapText(f.node.Name)))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s\n", indent, mindmapText(f.node.Name)))
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			if c := f.node.Children[i]; c != nil {
				stack = append(stack, frame{c, f.depth + 1})
			}
		}
	}
	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}

// mindmapText drops the characters mindmap syntax reads as shape delimiters.
func mindmapText(s string) string {
	r := strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "{", "", "}", "", "\n", " ")
	return strings.TrimSpace(r.Replace(s))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ">", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
