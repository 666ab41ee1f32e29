package validator

import (
	"fmt"

	"docgen/internal/domain/entity"
)

// ContentValidator checks that a parsed document carries every required section.
// It never coerces or defaults: a document either passes unchanged or is rejected.
type ContentValidator struct {
	strict   bool
	minItems int
	maxItems int
}

type Option func(*ContentValidator)

// WithStrictCounts additionally enforces item-count bounds on the array sections.
func WithStrictCounts(minItems, maxItems int) Option {
	return func(v *ContentValidator) {
		v.strict = true
		v.minItems = minItems
		v.maxItems = maxItems
	}
}

func NewContentValidator(opts ...Option) *ContentValidator {
	v := &ContentValidator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *ContentValidator) Validate(content entity.Content) (entity.Content, error) {
	if _, ok := content[entity.PlaceholderKey]; ok {
		return nil, &entity.StructuralError{Section: entity.PlaceholderKey, Reason: "reserved key must not be generated"}
	}

	var missing []string
	for _, key := range entity.RequiredSections {
		if _, ok := content[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &entity.StructuralError{Missing: missing}
	}

	for _, key := range entity.RequiredSections {
		section, ok := content[key].(map[string]any)
		if !ok {
			return nil, &entity.StructuralError{Section: key, Reason: "section must be an object"}
		}
		if _, ok := section["title"]; !ok {
			return nil, &entity.StructuralError{Section: key, Missing: []string{"title"}}
		}

		field, ok := entity.SectionArrayFields[key]
		if !ok {
			continue
		}
		raw, ok := section[field]
		if !ok {
			return nil, &entity.StructuralError{Section: key, Missing: []string{field}}
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, &entity.StructuralError{Section: key, Reason: fmt.Sprintf("field %s must be an array", field)}
		}
		if v.strict && (len(items) < v.minItems || len(items) > v.maxItems) {
			return nil, &entity.StructuralError{
				Section: key,
				Reason:  fmt.Sprintf("field %s has %d items, want %d-%d", field, len(items), v.minItems, v.maxItems),
			}
		}
	}

	return content, nil
}
