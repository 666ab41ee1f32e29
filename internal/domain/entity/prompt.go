package entity

// Prompt is an assembled (system instruction, user prompt) pair.
type Prompt struct {
	ID     string
	System string
	User   string
}

// ContentKind tells the provider how to format its answer.
type ContentKind string

const (
	ContentKindJSON ContentKind = "json"
	ContentKindText ContentKind = "text"
)

const explainerSystemInstruction = "You are CodeTutor, a patient programming teacher. You explain source code to learners who are new to the language. " +
	"Be accurate, concrete and friendly. Always answer with a single JSON object and nothing else: no prose, no markdown outside JSON string values."

var ExplainerPrompt = Prompt{
	ID:     "explainer",
	System: explainerSystemInstruction,
}
