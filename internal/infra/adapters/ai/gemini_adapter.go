package ai

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	"avatar-therapy-chat/internal/domain/ports/adapter"
	"avatar-therapy-chat/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter implements adapter.AIServiceAdapter via the Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

func NewGeminiAdapter(ctx context.Context, apiKey, model string) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key empty")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: client, model: model}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{g.model}, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if model == "" {
		model = g.model
	}
	contents, _ := toGeminiContents(messages)
	resp, err := g.client.Models.CountTokens(ctx, model, contents, nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := g.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if model == "" {
		model = g.model
	}
	contents, system := toGeminiContents(messages)
	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		}
	}
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := int(time.Since(start) / time.Millisecond)
	if err != nil {
		metrics.ObserveChatUsage("gemini", model, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}
	var usage adapter.Usage
	if resp.UsageMetadata != nil {
		usage = adapter.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	text := resp.Text()
	metrics.ObserveChatUsage("gemini", model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, latency, text != "")
	if text == "" {
		return "", usage, errors.New("no candidate content")
	}
	return text, usage, nil
}

// toGeminiContents maps port messages onto Gemini's user/model turns and
// pulls the system framing out into its own instruction.
func toGeminiContents(messages []adapter.Message) ([]*genai.Content, string) {
	var system string
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			out = append(out, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return out, system
}
