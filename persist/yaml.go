package persist

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// EncodeYAML writes doc as YAML.
func EncodeYAML(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// DecodeYAML reads a YAML session.
func DecodeYAML(r io.Reader) (*Document, error) {
	doc := &Document{}
	if err := yaml.NewDecoder(r).Decode(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalYAML encodes the element as {element: Name, attrs: {...}} with
// attributes in their original order.
func (e Element) MarshalYAML() (interface{}, error) {
	attrs := &yaml.Node{Kind: yaml.MappingNode}
	for _, a := range e.Attrs {
		attrs.Content = append(attrs.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: a.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: a.Value},
		)
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "element"},
			{Kind: yaml.ScalarNode, Value: e.Name},
			{Kind: yaml.ScalarNode, Value: "attrs"},
			attrs,
		},
	}, nil
}

// UnmarshalYAML decodes the form written by MarshalYAML.
func (e *Element) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("persist: line %d: element must be a mapping", value.Line)
	}

	e.Name = ""
	e.Attrs = e.Attrs[:0]
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		switch key.Value {
		case "element":
			e.Name = val.Value
		case "attrs":
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("persist: line %d: attrs must be a mapping", val.Line)
			}
			for j := 0; j+1 < len(val.Content); j += 2 {
				e.Attrs = append(e.Attrs, Attr{Name: val.Content[j].Value, Value: val.Content[j+1].Value})
			}
		}
	}

	if e.Name == "" {
		return fmt.Errorf("persist: line %d: element name missing", value.Line)
	}
	return nil
}
