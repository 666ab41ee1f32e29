package entity

// GenerationRequest carries the uploaded code for a single Generate call.
type GenerationRequest struct {
	Code              string            `json:"code" validate:"nonblank"`
	Language          string            `json:"language" validate:"nonblank,max=64"`
	Filename          string            `json:"filename,omitempty"`
	AdditionalContext string            `json:"additional_context,omitempty"`
	FileStructure     map[string]string `json:"file_structure,omitempty"` // path -> description
	ExternalJobID     string            `json:"-"`
}
