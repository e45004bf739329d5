package oracle

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Oracle on top of the Anthropic Claude
// Messages API, grounded on the goa-ai anthropic model adapter's
// request/response translation: one user turn plus a system prompt in,
// concatenated text blocks plus usage counters out.
type AnthropicClient struct {
	messages  anthropicMessages
	model     string
	maxTokens int64
}

// anthropicMessages captures the subset of *sdk.MessageService this client
// needs, mirroring goa-ai's MessagesClient seam so tests can substitute a
// fake without a live API key.
type anthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// NewAnthropicClient builds a client from an explicit API key and model
// identifier (e.g. string(sdk.ModelClaudeSonnet4_5_20250929)).
func NewAnthropicClient(apiKey, model string, maxTokens int64) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("oracle: anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("oracle: anthropic model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{messages: &ac.Messages, model: model, maxTokens: maxTokens}, nil
}

// NewAnthropicClientFromEnv resolves ANTHROPIC_API_KEY and
// ANTHROPIC_MODEL, falling back to Claude Sonnet if the model is unset.
func NewAnthropicClientFromEnv() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = string(sdk.ModelClaudeSonnet4_5_20250929)
	}
	return NewAnthropicClient(apiKey, model, 4096)
}

// Complete implements Oracle by issuing one Messages.New request with a
// single user turn and the given system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	params := sdk.MessageNewParams{
		MaxTokens: c.maxTokens,
		Model:     sdk.Model(c.model),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}

	start := time.Now()
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("oracle: anthropic messages.new: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			text.WriteString(block.Text)
		}
	}

	log.Printf("[oracle] anthropic reply in %s (input_tokens=%d output_tokens=%d stop_reason=%s)",
		time.Since(start), msg.Usage.InputTokens, msg.Usage.OutputTokens, msg.StopReason)

	if text.Len() == 0 {
		return "", fmt.Errorf("oracle: anthropic response contained no text content")
	}
	return text.String(), nil
}
