package invoke

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/provider-hub/internal/model"
)

// OpenAIInvoker calls any OpenAI-compatible chat completion endpoint. A
// BaseURL in the provider configuration points it at self-hosted or
// third-party compatible backends.
type OpenAIInvoker struct{}

func NewOpenAIInvoker() *OpenAIInvoker {
	return &OpenAIInvoker{}
}

func (o *OpenAIInvoker) Invoke(ctx context.Context, cfg model.ResolvedConfig, req Request) (*Response, error) {
	if cfg.Config.AI == nil {
		return nil, eris.Errorf("invoke: provider %q has no AI configuration", cfg.ProviderName)
	}

	clientCfg := openai.DefaultConfig(cfg.Config.APIKey)
	if base := cfg.Config.BaseURL; base != "" {
		if !strings.HasSuffix(base, "/v1") {
			base = strings.TrimSuffix(base, "/") + "/v1"
		}
		clientCfg.BaseURL = base
	}
	client := openai.NewClientWithConfig(clientCfg)

	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.Config.AI.Model,
		MaxTokens:   cfg.Config.AI.MaxTokens,
		Temperature: float32(cfg.Config.AI.TemperatureOrDefault()),
		Messages:    messages,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "invoke: openai call via %s", cfg.ProviderName)
	}

	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("invoke: provider %q returned no choices", cfg.ProviderName)
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}
