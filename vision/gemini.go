package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const extractPrompt = `You are analyzing a photo of a student's homework question.
Extract the question content and respond with a single JSON object:
{
  "text": "the full question text, transcribed",
  "topics": ["topic keywords, in the question's language"],
  "math_expressions": ["any mathematical expressions, as plain text"],
  "question_type": "one of: multiple_choice, open_ended, problem, proof, other",
  "grade_estimate": 7,
  "grade_confidence": 0.8
}
grade_estimate is the school grade level (1-12) the question most likely
belongs to, or null if unclear. Respond ONLY with the JSON object.`

// Gemini implements Model using the Gemini multimodal API.
type Gemini struct {
	apiKey    string
	modelName string
}

// NewGemini creates a Gemini-backed vision model. An empty model name
// defaults to gemini-2.0-flash.
func NewGemini(apiKey, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &Gemini{apiKey: apiKey, modelName: modelName}, nil
}

// Extract sends the image and the extraction prompt to Gemini and parses the
// JSON reply.
func (g *Gemini) Extract(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, errors.New("empty image")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return Result{}, fmt.Errorf("create google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(g.modelName)
	resp, err := genModel.GenerateContent(ctx,
		genai.ImageData(imageFormat(image), image),
		genai.Text(extractPrompt),
	)
	if err != nil {
		return Result{}, fmt.Errorf("gemini vision call: %w", err)
	}

	return parseResult(responseText(resp))
}

// imageFormat sniffs the image subtype ("png", "jpeg", ...) that the Gemini
// API expects alongside raw bytes.
func imageFormat(image []byte) string {
	contentType := http.DetectContentType(image)
	if sub, ok := strings.CutPrefix(contentType, "image/"); ok {
		return sub
	}
	return "jpeg"
}

func responseText(resp *genai.GenerateContentResponse) string {
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

func parseResult(text string) (Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return Result{}, fmt.Errorf("parse vision response: %w", err)
	}
	return res, nil
}
