package invoke

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-hub/internal/model"
)

// AnthropicInvoker calls the Anthropic Messages API via the official SDK.
type AnthropicInvoker struct{}

// NewAnthropicInvoker returns a stateless Anthropic invoker. The SDK client
// is built per call because credentials come from the resolved configuration,
// not from process environment.
func NewAnthropicInvoker() *AnthropicInvoker {
	return &AnthropicInvoker{}
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, cfg model.ResolvedConfig, req Request) (*Response, error) {
	if cfg.Config.AI == nil {
		return nil, eris.Errorf("invoke: provider %q has no AI configuration", cfg.ProviderName)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.Config.APIKey)}
	if cfg.Config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Config.BaseURL))
	}
	client := sdk.NewClient(opts...)

	params := sdk.MessageNewParams{
		Model:     sdk.Model(cfg.Config.AI.Model),
		MaxTokens: int64(cfg.Config.AI.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt)),
		},
		Temperature: sdk.Float(cfg.Config.AI.TemperatureOrDefault()),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "invoke: anthropic call via %s", cfg.ProviderName)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &Response{
		Text:         sb.String(),
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
