package usecase

import (
	"fmt"
	"sort"
	"strings"

	"docgen/internal/domain/entity"
)

// PromptAssembler turns a generation request into the prompt sent to the provider.
type PromptAssembler interface {
	Assemble(req entity.GenerationRequest) entity.Prompt
}

// ExplainerPromptAssembler asks for the seven-chapter explanation document.
type ExplainerPromptAssembler struct {
	base entity.Prompt
}

func NewExplainerPromptAssembler() *ExplainerPromptAssembler {
	return &ExplainerPromptAssembler{base: entity.ExplainerPrompt}
}

var _ PromptAssembler = (*ExplainerPromptAssembler)(nil)

func (a *ExplainerPromptAssembler) Assemble(req entity.GenerationRequest) entity.Prompt {
	var b strings.Builder

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "unknown"
	}
	fmt.Fprintf(&b, "Explain the following %s code for a beginner.\n", language)
	if name := strings.TrimSpace(req.Filename); name != "" {
		fmt.Fprintf(&b, "File name: %s\n", name)
	}
	if extra := strings.TrimSpace(req.AdditionalContext); extra != "" {
		fmt.Fprintf(&b, "Additional context from the learner: %s\n", extra)
	}

	if len(req.FileStructure) > 0 {
		paths := make([]string, 0, len(req.FileStructure))
		for p := range req.FileStructure {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		b.WriteString("\nProject files:\n")
		for _, p := range paths {
			if desc := strings.TrimSpace(req.FileStructure[p]); desc != "" {
				fmt.Fprintf(&b, "- %s: %s\n", p, desc)
			} else {
				fmt.Fprintf(&b, "- %s\n", p)
			}
		}
	}

	fmt.Fprintf(&b, "\nCode:\n```%s\n%s\n```\n", strings.ToLower(language), req.Code)

	b.WriteString("\nReturn a single JSON object with exactly these keys:\n")
	for _, key := range entity.RequiredSections {
		fmt.Fprintf(&b, "- %q: object with \"title\" (%q) and \"content\" (markdown)", key, entity.SectionTitles[key])
		if field, ok := entity.SectionArrayFields[key]; ok {
			fmt.Fprintf(&b, ", plus %q: array of %d-%d objects with \"name\", \"description\" and \"code\"",
				field, entity.MinSectionItems, entity.MaxSectionItems)
		}
		b.WriteString("\n")
	}
	b.WriteString("Do not wrap the JSON in markdown and do not add any text before or after it.\n")

	return entity.Prompt{
		ID:     a.base.ID,
		System: a.base.System,
		User:   b.String(),
	}
}
