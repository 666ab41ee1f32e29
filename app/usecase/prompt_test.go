package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docgen/internal/domain/entity"
)

func TestExplainerPromptMentionsEverySection(t *testing.T) {
	p := NewExplainerPromptAssembler().Assemble(entity.GenerationRequest{
		Code:              "print('hi')",
		Language:          "Python",
		Filename:          "hello.py",
		AdditionalContext: "first week of class",
		FileStructure:     map[string]string{"src/b.py": "helpers", "src/a.py": ""},
	})

	assert.Equal(t, entity.ExplainerPrompt.System, p.System)
	for _, key := range entity.RequiredSections {
		assert.Contains(t, p.User, `"`+key+`"`)
	}
	for _, field := range []string{"concepts", "explanations", "mistakes"} {
		assert.Contains(t, p.User, `"`+field+`"`)
	}
	assert.Contains(t, p.User, "hello.py")
	assert.Contains(t, p.User, "first week of class")
	assert.Contains(t, p.User, "```python\nprint('hi')\n```")
	assert.Less(t, strings.Index(p.User, "src/a.py"), strings.Index(p.User, "src/b.py: helpers"))
}

func TestExplainerPromptWithoutOptionalFields(t *testing.T) {
	p := NewExplainerPromptAssembler().Assemble(entity.GenerationRequest{Code: "x"})

	assert.Contains(t, p.User, "unknown code")
	assert.NotContains(t, p.User, "File name:")
	assert.NotContains(t, p.User, "Project files:")
}
