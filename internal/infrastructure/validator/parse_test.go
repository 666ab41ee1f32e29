package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgen/internal/domain/entity"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `  {"a":1}  `, want: `{"a":1}`},
		{name: "json tag", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "no tag", in: "```\n{\"a\":1}\n```\n", want: `{"a":1}`},
		{name: "no closing fence", in: "```json\n{\"a\":1}", want: `{"a":1}`},
		{name: "crlf", in: "```json\r\n{\"a\":1}\r\n```", want: `{"a":1}`},
		{name: "fence only", in: "```", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}

func TestParseResponseFencedAndRawAreEqual(t *testing.T) {
	raw, err := ParseResponse(validDocument)
	require.NoError(t, err)

	fenced, err := ParseResponse("```json\n" + validDocument + "\n```")
	require.NoError(t, err)

	assert.Equal(t, raw, fenced)

	v := NewContentValidator()
	a, err := v.Validate(raw)
	require.NoError(t, err)
	b, err := v.Validate(fenced)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseResponseErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "not json", "[1,2,3]", "null", "```json\n{\"broken\": \n```"} {
		_, err := ParseResponse(in)
		var perr *entity.ParseError
		assert.ErrorAs(t, err, &perr, "input %q", in)
	}
}
