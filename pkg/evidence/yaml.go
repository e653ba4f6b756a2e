package evidence

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLSource iterates over a multi-document YAML evidence stream.
type YAMLSource struct {
	dec *yaml.Decoder
	doc int
}

// NewYAMLSource reads documents from r lazily.
func NewYAMLSource(r io.Reader) *YAMLSource {
	return &YAMLSource{dec: yaml.NewDecoder(r)}
}

// Next returns the next evidence map, or io.EOF when the stream is exhausted.
// Empty documents are skipped. Scalar values of any type are kept in their YAML text form.
func (s *YAMLSource) Next() (map[string]string, error) {
	for {
		var node yaml.Node
		if err := s.dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("evidence: decode document %d: %w", s.doc+1, err)
		}
		s.doc++

		if node.Kind == yaml.DocumentNode {
			if len(node.Content) == 0 {
				continue
			}
			node = *node.Content[0]
		}
		if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
			continue
		}
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: document %d", ErrInvalidDocument, s.doc)
		}

		ev := make(map[string]string, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Kind != yaml.ScalarNode || value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: document %d, key %q", ErrInvalidDocument, s.doc, key.Value)
			}
			ev[key.Value] = value.Value
		}
		return ev, nil
	}
}
