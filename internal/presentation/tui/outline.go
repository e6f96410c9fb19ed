package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Outline renders a tree as a markdown outline: the root as a heading with its
// note quoted, then one nested bullet per descendant.
func Outline(root *domain.Node) string {
	if root == nil {
		return "_empty map_\n"
	}

	var sb strings.Builder
	sb.WriteString("# " + root.Name + "\n")
	if note, ok := root.Note(); ok && note != "" {
		sb.WriteString("\n> " + strings.ReplaceAll(note, "\n", " ") + "\n")
	}
	if len(root.Children) == 0 {
		return sb.String()
	}
	sb.WriteString("\n")

	type frame struct {
		node  *domain.Node
		depth int
	}
	var stack []frame
	for i := len(root.Children) - 1; i >= 0; i-- {
		stack = append(stack, frame{root.Children[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node == nil {
			continue
		}

		line := fmt.Sprintf("%s- **%s**", strings.Repeat("  ", f.depth), f.node.Name)
		if note, ok := f.node.Note(); ok && note != "" {
			line += " _" + strings.ReplaceAll(note, "\n", " ") + "_"
		}
		sb.WriteString(line + "\n")

		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
	return sb.String()
}

// DiffSummary renders the patches that turn one tree into another as a
// markdown list.
func DiffSummary(patches []domain.Patch) string {
	if len(patches) == 0 {
		return "_no changes_\n"
	}
	var sb strings.Builder
	for _, p := range patches {
		sb.WriteString("- `" + p.String() + "`\n")
	}
	return sb.String()
}
