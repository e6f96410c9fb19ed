package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Mask replaces redacted text.
const Mask = "***"

// DefaultPIIPatterns match e-mail addresses and phone numbers.
var DefaultPIIPatterns = []string{
	`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	`\+?\d[\d\s().-]{7,}\d`,
}

type piiMiddleware struct {
	next     ports.MapStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks text matching any pattern
// in node names and attribute values before they are stored. The caller's
// tree is never modified.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.MapStore) ports.MapStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, mapID string, root *domain.Node) error {
	if root == nil {
		return m.next.Save(ctx, mapID, nil)
	}
	cloned := root.Clone()
	m.maskTree(cloned)
	return m.next.Save(ctx, mapID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	return m.next.Load(ctx, mapID)
}

func (m *piiMiddleware) Delete(ctx context.Context, mapID string) error {
	return m.next.Delete(ctx, mapID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) maskTree(root *domain.Node) {
	stack := []*domain.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n.Name = m.mask(n.Name)
		for k, v := range n.Attributes {
			n.Attributes[k] = m.mask(v)
		}
		for _, c := range n.Children {
			if c != nil {
				stack = append(stack, c)
			}
		}
	}
}

func (m *piiMiddleware) mask(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}
