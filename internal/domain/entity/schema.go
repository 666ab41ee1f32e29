package entity

// SchemaType mirrors the JSON schema primitive types understood by providers.
type SchemaType string

const (
	SchemaObject  SchemaType = "object"
	SchemaArray   SchemaType = "array"
	SchemaString  SchemaType = "string"
	SchemaInteger SchemaType = "integer"
)

// Schema is a provider-neutral description of the expected response structure.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	MinItems    *int64             `json:"min_items,omitempty"`
	MaxItems    *int64             `json:"max_items,omitempty"`
}

const (
	MinSectionItems = 3
	MaxSectionItems = 5
)

// ExplanationSchema describes the seven-section document the prompt asks for.
func ExplanationSchema() *Schema {
	minItems, maxItems := int64(MinSectionItems), int64(MaxSectionItems)
	str := func(desc string) *Schema { return &Schema{Type: SchemaString, Description: desc} }

	props := make(map[string]*Schema, len(RequiredSections))
	for _, key := range RequiredSections {
		section := &Schema{
			Type: SchemaObject,
			Properties: map[string]*Schema{
				"title":   str("Section title"),
				"content": str("Section body in markdown"),
			},
			Required: []string{"title"},
		}
		if field, ok := SectionArrayFields[key]; ok {
			section.Properties[field] = &Schema{
				Type: SchemaArray,
				Items: &Schema{
					Type: SchemaObject,
					Properties: map[string]*Schema{
						"name":        str("Short label"),
						"description": str("Explanation"),
						"code":        str("Related code excerpt"),
					},
				},
				MinItems: &minItems,
				MaxItems: &maxItems,
			}
			section.Required = append(section.Required, field)
		}
		props[key] = section
	}

	return &Schema{
		Type:       SchemaObject,
		Properties: props,
		Required:   append([]string(nil), RequiredSections...),
	}
}
