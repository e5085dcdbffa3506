package harvest

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Sternrassler/cadseq/pkg/logging"
	"github.com/Sternrassler/cadseq/pkg/onshape"
	"gopkg.in/yaml.v3"
)

// LoadMapping reads an id -> locator YAML mapping, keeping document order.
func LoadMapping(path string) ([]WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	items, err := ParseMapping(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// ParseMapping decodes mapping YAML. An empty document is an empty mapping.
// A repeated id keeps its first position and takes the last locator.
func ParseMapping(data []byte) ([]WorkItem, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []WorkItem{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse mapping: line %d: expected a mapping of id to locator", root.Line)
	}

	items := make([]WorkItem, 0, len(root.Content)/2)
	seen := make(map[string]int, len(root.Content)/2)
	logger := logging.NewLogger(logging.ComponentHarvest)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("parse mapping: line %d: id and locator must be scalars", key.Line)
		}
		if idx, dup := seen[key.Value]; dup {
			logger.Warn().
				Str("id", key.Value).
				Int("line", key.Line).
				Str("replaced", items[idx].Locator).
				Msg("Duplicate mapping id - last locator wins")
			items[idx].Locator = value.Value
			continue
		}
		seen[key.Value] = len(items)
		items = append(items, WorkItem{ID: key.Value, Locator: value.Value})
	}
	return items, nil
}

// WriteMapping writes items as an ordered YAML mapping.
func WriteMapping(path string, items []WorkItem) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, item := range items {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item.ID},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item.Locator},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write mapping: %w", err)
	}
	return nil
}

// ItemsFromRefs builds work items for element references. Ids are
// "{document}_{element}" so repeated discovery yields the same ids; an
// element listed in several workspaces keeps its first occurrence.
func ItemsFromRefs(refs []onshape.ElementRef, linkBase string) []WorkItem {
	items := make([]WorkItem, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		id := ref.DocumentID + "_" + ref.ElementID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, WorkItem{ID: id, Locator: ref.Link(linkBase)})
	}
	return items
}
