package entity

// Content is the structured explanation document as decoded from JSON.
type Content map[string]any

const (
	SectionOverview     = "chapter1"
	SectionConcepts     = "chapter2"
	SectionStructure    = "chapter3"
	SectionExplanations = "chapter4"
	SectionFlow         = "chapter5"
	SectionPractice     = "chapter6"
	SectionMistakes     = "chapter7"

	// PlaceholderKey marks not-yet-generated content. Generated documents must not carry it.
	PlaceholderKey = "_placeholder"
)

// RequiredSections lists the seven top-level keys of a generated document, in order.
var RequiredSections = []string{
	SectionOverview,
	SectionConcepts,
	SectionStructure,
	SectionExplanations,
	SectionFlow,
	SectionPractice,
	SectionMistakes,
}

// SectionArrayFields maps sections to the array field each one must carry.
var SectionArrayFields = map[string]string{
	SectionConcepts:     "concepts",
	SectionExplanations: "explanations",
	SectionMistakes:     "mistakes",
}

// SectionTitles are the display titles used for placeholders and in the prompt.
var SectionTitles = map[string]string{
	SectionOverview:     "Overview",
	SectionConcepts:     "Key Concepts",
	SectionStructure:    "Code Structure",
	SectionExplanations: "Line-by-Line Explanation",
	SectionFlow:         "Execution Flow",
	SectionPractice:     "Practice Exercises",
	SectionMistakes:     "Common Mistakes",
}

// NewPlaceholderContent builds a fresh "not yet generated" document.
// Every call returns new maps; callers may mutate the result freely.
func NewPlaceholderContent() Content {
	c := Content{PlaceholderKey: true}
	for _, key := range RequiredSections {
		section := map[string]any{
			"title":   SectionTitles[key],
			"content": "",
		}
		if field, ok := SectionArrayFields[key]; ok {
			section[field] = []any{}
		}
		c[key] = section
	}
	return c
}

func (c Content) IsPlaceholder() bool {
	v, ok := c[PlaceholderKey].(bool)
	return ok && v
}

func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	return cloneValue(map[string]any(c)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Content:
		return Content(cloneValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
