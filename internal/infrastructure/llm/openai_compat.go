package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"docgen/internal/domain/entity"
	"docgen/internal/infrastructure/metrics"
)

// OpenAICompatBackend calls any OpenAI-compatible /chat/completions endpoint.
// Timeouts are driven by the caller's context, not by the http.Client.
type OpenAICompatBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewOpenAICompatBackend(apiKey, baseURL string, logger *slog.Logger) *OpenAICompatBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAICompatBackend{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{},
		logger:  logger.With("component", "llm_backend", "backend", "openai_compat"),
	}
}

func (g *OpenAICompatBackend) Name() string { return "openai_compat" }

func (g *OpenAICompatBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(req.SystemInstruction) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	request := map[string]interface{}{
		"model":       req.Model,
		"messages":    messages,
		"temperature": req.Params.Temperature,
		"top_p":       req.Params.TopP,
	}
	if req.Params.MaxOutputTokens > 0 {
		request["max_tokens"] = req.Params.MaxOutputTokens
	}
	if req.Kind == entity.ContentKindJSON {
		request["response_format"] = map[string]string{"type": "json_object"}
	}

	response, err := g.makeRequest(ctx, request)
	if err != nil {
		return BackendResponse{}, err
	}
	return g.parseResponse(response, req.Model)
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func (g *OpenAICompatBackend) makeRequest(ctx context.Context, request map[string]interface{}) (*chatCompletionResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return nil, entity.NewClientError(entity.ClientErrorInvalidRequest, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return nil, entity.NewClientError(entity.ClientErrorInvalidRequest, "create request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("make request: %w", err)
	}
	defer func() {
		err := resp.Body.Close()
		if err != nil {
			g.logger.Warn("close response body", "err", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))

		var errResp chatErrorResponse
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			message = errResp.Error.Message
			if errResp.Error.Type != "" {
				message = errResp.Error.Type + ": " + message
			}
		}
		return nil, classifyStatus("openai-compat", resp.StatusCode, "", message, nil)
	}

	var response chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		metrics.IncError("llm", "decode_response")
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &response, nil
}

func (g *OpenAICompatBackend) parseResponse(response *chatCompletionResponse, model string) (BackendResponse, error) {
	if len(response.Choices) == 0 {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorOther, "invalid response format: no choices", nil)
	}

	choice := response.Choices[0]
	if choice.FinishReason == "content_filter" {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorContentFiltered, "response blocked by content filter", nil)
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorOther, "invalid response format: no content", nil)
	}

	out := BackendResponse{
		Text:         content,
		FinishReason: choice.FinishReason,
		Model:        model,
		Usage: entity.TokenUsage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
	}
	if response.Model != "" {
		out.Model = response.Model
	}
	return out, nil
}
