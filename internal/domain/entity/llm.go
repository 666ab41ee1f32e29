package entity

import "time"

// LLMResponse is what the generation client hands back after a successful call.
type LLMResponse struct {
	Text         string
	JSON         map[string]any // set when the kind was JSON and the text decoded cleanly
	Usage        TokenUsage
	Model        string
	FinishReason string
	Latency      time.Duration
}
