// Package google adapts the Google Gemini SDK to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/odevai/tutorflow/model"
)

// ChatModel implements model.ChatModel over the Gemini API.
//
// The Gemini SDK ties client lifetime to a context, so a client is created
// per call and closed before returning. This matches how short synthesis
// calls are made from workflow stages.
type ChatModel struct {
	apiKey    string
	modelName string
}

// New creates a Gemini chat model. An empty model name defaults to
// gemini-2.0-flash.
func New(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &ChatModel{apiKey: apiKey, modelName: modelName}, nil
}

// Chat sends the conversation to the Gemini API and returns the text parts of
// the first candidate.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(m.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("create google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(m.modelName)

	// Gemini takes content parts rather than role-tagged turns; the
	// conversation is flattened into text parts in order.
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := genModel.GenerateContent(ctx, parts...)
	if err != nil {
		return model.ChatOut{}, model.MapProviderError("google", err)
	}

	return model.ChatOut{Text: extractText(resp)}, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}
