package action

// Schema is a JSON Schema node, shaped the way OpenAI-compatible function
// calling expects it (the same fields as `tool.Property` in the example
// pack this was grounded on, trimmed to what Parameter can express).
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// JSONSchema projects an Action's parameters into the JSON Schema object
// shape accepted by OpenAI's `functions[].parameters` field.
func (a *Action) JSONSchema() *Schema {
	root := &Schema{Type: "object", Properties: map[string]*Schema{}}
	for _, p := range a.Parameters {
		root.Properties[p.Name] = p.toSchema()
		if p.Required {
			root.Required = append(root.Required, p.Name)
		}
	}
	return root
}

func (p *Parameter) toSchema() *Schema {
	s := &Schema{
		Type:        string(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
	}
	if p.Items != nil {
		s.Items = p.Items.toSchema()
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*Schema, len(p.Properties))
		for _, prop := range p.Properties {
			s.Properties[prop.Name] = prop.toSchema()
			if prop.Required {
				s.Required = append(s.Required, prop.Name)
			}
		}
	}
	return s
}
