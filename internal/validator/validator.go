package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Limits bounds the shape of a map. Zero disables a check.
type Limits struct {
	MaxDepth  int
	MaxFanOut int
	MaxNodes  int
}

// DefaultLimits are loose enough for any map a person would draw.
var DefaultLimits = Limits{MaxDepth: 64, MaxFanOut: 256, MaxNodes: 10000}

type frame struct {
	node  *domain.Node
	path  string
	depth int
}

// ValidateMap walks the tree and reports every problem found, rather than
// stopping at the first one like domain.Validate.
func ValidateMap(root *domain.Node, limits Limits) error {
	if root == nil {
		return nil
	}

	var errors []string
	ids := make(map[string]string)
	visited := make(map[*domain.Node]bool)
	count := 0

	queue := []frame{{node: root, path: label(root), depth: 1}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if visited[cur.node] {
			errors = append(errors, fmt.Sprintf("Node reachable twice: '%s'", cur.path))
			continue
		}
		visited[cur.node] = true
		count++

		if strings.TrimSpace(cur.node.Name) == "" {
			errors = append(errors, fmt.Sprintf("Empty name: '%s'", cur.path))
		}
		if id := cur.node.ID; id != "" {
			if first, dup := ids[id]; dup {
				errors = append(errors, fmt.Sprintf("Duplicate id '%s': '%s' and '%s'", id, first, cur.path))
			} else {
				ids[id] = cur.path
			}
		}
		if limits.MaxDepth > 0 && cur.depth == limits.MaxDepth+1 {
			errors = append(errors, fmt.Sprintf("Deeper than %d levels: '%s'", limits.MaxDepth, cur.path))
		}
		if limits.MaxFanOut > 0 && len(cur.node.Children) > limits.MaxFanOut {
			errors = append(errors, fmt.Sprintf("More than %d children (%d): '%s'", limits.MaxFanOut, len(cur.node.Children), cur.path))
		}

		for i, child := range cur.node.Children {
			if child == nil {
				errors = append(errors, fmt.Sprintf("Nil child #%d: '%s'", i, cur.path))
				continue
			}
			queue = append(queue, frame{node: child, path: cur.path + " > " + label(child), depth: cur.depth + 1})
		}
	}

	if limits.MaxNodes > 0 && count > limits.MaxNodes {
		errors = append(errors, fmt.Sprintf("More than %d nodes (%d)", limits.MaxNodes, count))
	}

	if len(errors) > 0 {
		return fmt.Errorf("%w: found %d errors:\n- %s", domain.ErrInvalidTree, len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

func label(n *domain.Node) string {
	if n.ID != "" {
		return n.Name + "#" + n.ID
	}
	return n.Name
}
