// Package anthropic adapts the official Anthropic SDK to model.ChatModel.
package anthropic

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/odevai/tutorflow/model"
)

const defaultMaxTokens = 4096

// ChatModel implements model.ChatModel over the Anthropic Messages API.
type ChatModel struct {
	client *anthropic.Client
	model  string
}

// New creates an Anthropic chat model. An empty model name defaults to
// claude-3-5-haiku-latest.
func New(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{client: &client, model: modelName}, nil
}

// Chat sends the conversation to the Anthropic API and returns the
// concatenated text blocks of the reply.
//
// System messages are folded into user turns; the Messages API accepts
// alternating user/assistant turns and treats leading instructions in the
// user turn equivalently for this workload.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
			continue
		}
		params = append(params, anthropic.NewUserMessage(block))
	}

	message, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: defaultMaxTokens,
		Messages:  params,
	})
	if err != nil {
		return model.ChatOut{}, model.MapProviderError("anthropic", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return model.ChatOut{
		Text:       text,
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}
