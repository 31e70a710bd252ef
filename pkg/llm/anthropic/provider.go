package anthropic

import (
	"context"
	"errors"
	"strings"

	"ai-docqa-be/pkg/apperr"
	"ai-docqa-be/pkg/llm"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

type AnthropicProvider struct {
	client    sdk.Client
	ModelName string
}

var _ llm.LLMProvider = &AnthropicProvider{}

func NewAnthropicProvider(apiKey, modelName string, opts ...option.RequestOption) *AnthropicProvider {
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client:    sdk.NewClient(reqOpts...),
		ModelName: modelName,
	}
}

// params splits system messages out of history; the Messages API takes them separately.
func (p *AnthropicProvider) params(history []llm.Message, opts []llm.Option) sdk.MessageNewParams {
	options := llm.Apply(opts...)

	model := p.ModelName
	if options.Model != "" {
		model = options.Model
	}
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var system []string
	messages := make([]sdk.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant", "model":
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if options.Temperature > 0 {
		params.Temperature = sdk.Float(options.Temperature)
	}
	if len(system) > 0 {
		params.System = []sdk.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}

func classify(err error, interrupted bool) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return llm.StatusError("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	if interrupted {
		return llm.InterruptedError("anthropic", err)
	}
	return llm.TransportError("anthropic", err)
}

func (p *AnthropicProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	resp, err := p.client.Messages.New(ctx, p.params(history, opts))
	if err != nil {
		return "", classify(err, false)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", &apperr.Error{Kind: apperr.KindGeneration, Reason: apperr.ReasonProviderUnavailable, Message: "no text in anthropic response"}
	}
	return response.String(), nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *AnthropicProvider) Stream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.Chunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(history, opts))
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		defer stream.Close()

		started := false
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(sdk.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			started = true
			select {
			case out <- llm.Chunk{Text: text.Text}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- llm.Chunk{Err: classify(err, started)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}
