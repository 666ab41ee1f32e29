package validator

import (
	"encoding/json"
	"errors"
	"strings"

	"docgen/internal/domain/entity"
)

const fence = "```"

// StripCodeFence removes a surrounding markdown code fence, with or without a language tag.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, fence) {
		return text
	}

	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = ""
	}

	text = strings.TrimRight(text, " \t\r\n")
	text = strings.TrimSuffix(text, fence)
	return strings.TrimSpace(text)
}

// ParseResponse turns raw provider text into a JSON object.
// Failures are *entity.ParseError so callers can treat them as retryable.
func ParseResponse(text string) (entity.Content, error) {
	body := StripCodeFence(text)
	if body == "" {
		return nil, &entity.ParseError{Err: errors.New("empty response")}
	}

	var content map[string]any
	if err := json.Unmarshal([]byte(body), &content); err != nil {
		return nil, &entity.ParseError{Err: err}
	}
	if content == nil {
		return nil, &entity.ParseError{Err: errors.New("response is not a JSON object")}
	}
	return content, nil
}
