package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var nodeType = reflect.TypeOf(Node{})

// DecodeTree converts loosely typed data (decoded JSON or YAML) into a tree.
//
// It accepts the legacy "attribute" key as an alias of "attributes" and
// stringifies scalar attribute values such as a numeric importance. A root
// with an empty name and no children is treated as an empty map.
func DecodeTree(raw any) (*Node, error) {
	if raw == nil {
		return nil, nil
	}

	var root Node
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       legacyAttributesHook,
		WeaklyTypedInput: true,
		Result:           &root,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tree decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}

	if strings.TrimSpace(root.Name) == "" && len(root.Children) == 0 {
		return nil, nil
	}
	return &root, nil
}

func legacyAttributesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != nodeType && to != reflect.PointerTo(nodeType) {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	legacy, hasLegacy := m["attribute"]
	if _, hasCurrent := m["attributes"]; !hasLegacy || hasCurrent {
		return data, nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != "attribute" {
			out[k] = v
		}
	}
	out["attributes"] = legacy
	return out, nil
}
