package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// KlineSpec is one entry of the klines mapping.
type KlineSpec struct {
	Symbol string
	// Seconds is the bar duration.
	Seconds int
	Length  int
}

// Duration returns the bar duration.
func (k KlineSpec) Duration() time.Duration {
	return time.Duration(k.Seconds) * time.Second
}

// KlineSpecs is the klines mapping `{SYMBOL: [seconds, length]}`. Mapping
// order is kept: the first entry owns a merged subscription.
type KlineSpecs []KlineSpec

// UnmarshalYAML decodes the mapping in document order.
func (k *KlineSpecs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: klines must be a mapping of symbol to [seconds, length]", node.Line)
	}

	specs := make(KlineSpecs, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var pair []int
		if err := value.Decode(&pair); err != nil || len(pair) != 2 {
			return fmt.Errorf("line %d: klines of %s must be [seconds, length]", value.Line, key.Value)
		}

		specs = append(specs, KlineSpec{Symbol: key.Value, Seconds: pair[0], Length: pair[1]})
	}

	*k = specs

	return nil
}

// MarshalYAML encodes the specs back into an ordered mapping.
func (k KlineSpecs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, spec := range k {
		value := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		value.Content = []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: strconv.Itoa(spec.Seconds)},
			{Kind: yaml.ScalarNode, Value: strconv.Itoa(spec.Length)},
		}

		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: spec.Symbol}, value)
	}

	return node, nil
}

// JSONSchema describes the mapping.
func (KlineSpecs) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: "Bar series per symbol as [duration seconds, length]",
		AdditionalProperties: &jsonschema.Schema{
			Type:  "array",
			Items: &jsonschema.Schema{Type: "integer"},
		},
	}
}

// TickSpec is one entry of the ticks mapping.
type TickSpec struct {
	Symbol string
	Length int
}

// TickSpecs is the ticks mapping `{SYMBOL: length}` in document order.
type TickSpecs []TickSpec

// UnmarshalYAML decodes the mapping in document order.
func (t *TickSpecs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: ticks must be a mapping of symbol to length", node.Line)
	}

	specs := make(TickSpecs, 0, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var length int
		if err := value.Decode(&length); err != nil {
			return fmt.Errorf("line %d: ticks of %s must be a length", value.Line, key.Value)
		}

		specs = append(specs, TickSpec{Symbol: key.Value, Length: length})
	}

	*t = specs

	return nil
}

// MarshalYAML encodes the specs back into an ordered mapping.
func (t TickSpecs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	for _, spec := range t {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: spec.Symbol},
			&yaml.Node{Kind: yaml.ScalarNode, Value: strconv.Itoa(spec.Length)},
		)
	}

	return node, nil
}

// JSONSchema describes the mapping.
func (TickSpecs) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Description:          "Tick series length per symbol",
		AdditionalProperties: &jsonschema.Schema{Type: "integer"},
	}
}
