package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"docgen/internal/domain/entity"
)

// GeminiBackend calls the Gemini API through the official genai SDK.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, buildGenerateConfig(req))
	if err != nil {
		return BackendResponse{}, classifyGeminiError(err)
	}
	return fromGeminiResponse(resp, req.Model)
}

func buildGenerateConfig(req BackendRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Params.Temperature),
		TopP:        genai.Ptr(req.Params.TopP),
	}
	if req.Params.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(req.Params.TopK))
	}
	if req.Params.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Params.MaxOutputTokens)
	}
	if strings.TrimSpace(req.SystemInstruction) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Kind == entity.ContentKindJSON {
		cfg.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			cfg.ResponseSchema = toGeminiSchema(req.Schema)
		}
	}
	return cfg
}

func toGeminiSchema(s *entity.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Items:       toGeminiSchema(s.Items),
		MinItems:    s.MinItems,
		MaxItems:    s.MaxItems,
	}
	switch s.Type {
	case entity.SchemaObject:
		out.Type = genai.TypeObject
	case entity.SchemaArray:
		out.Type = genai.TypeArray
	case entity.SchemaInteger:
		out.Type = genai.TypeInteger
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGeminiSchema(prop)
		}
	}
	return out
}

var blockedFinishReasons = map[string]bool{
	"SAFETY":             true,
	"PROHIBITED_CONTENT": true,
	"BLOCKLIST":          true,
	"SPII":               true,
}

func fromGeminiResponse(resp *genai.GenerateContentResponse, model string) (BackendResponse, error) {
	if resp == nil {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorOther, "empty response from gemini", nil)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorContentFiltered,
			fmt.Sprintf("prompt blocked: %s %s", fb.BlockReason, fb.BlockReasonMessage), nil)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorOther, "no candidates in gemini response", nil)
	}

	cand := resp.Candidates[0]
	finish := string(cand.FinishReason)
	if blockedFinishReasons[finish] {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorContentFiltered,
			"response blocked with finish reason "+finish, nil)
	}

	var text strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return BackendResponse{}, entity.NewClientError(entity.ClientErrorOther,
			"empty text in gemini response, finish reason "+finish, nil)
	}

	out := BackendResponse{
		Text:         text.String(),
		FinishReason: finish,
		Model:        model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = entity.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("gemini", apiErr.Code, apiErr.Status, apiErr.Message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return entity.NewClientError(entity.ClientErrorOther, "gemini request failed", err)
}
