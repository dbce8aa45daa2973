package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odevai/tutorflow/model"
	"github.com/odevai/tutorflow/retrieval"
)

// Reranker reorders retrieved passages by relevance to the question.
type Reranker interface {
	Rerank(ctx context.Context, question string, chunks []retrieval.Chunk) ([]retrieval.Chunk, error)
}

// ExplainRequest carries everything the synthesis call needs to produce a
// pedagogical explanation.
type ExplainRequest struct {
	Question           string
	Objectives         []retrieval.Objective
	Chunks             []retrieval.Chunk
	Images             []retrieval.ImageRef
	Grade              *int
	Subject            string
	GapSummary         string
	CrossObjectiveNote string
}

// GapRequest carries the inputs of the prerequisite-gap analysis.
type GapRequest struct {
	Question   string
	Objectives []retrieval.Objective
	Grade      *int
}

// Synthesizer is the language-model collaborator behind explanation
// generation, the optional enhancements, and the chat terminal. All calls
// are fallible and slow; the pipeline always invokes them under stage
// timeouts.
type Synthesizer interface {
	Explain(ctx context.Context, req ExplainRequest) (string, error)
	AnalyzeGaps(ctx context.Context, req GapRequest) (string, error)
	LinkObjectives(ctx context.Context, objectives []retrieval.Objective) (string, error)
	ChatReply(ctx context.Context, message string) (string, error)
}

// ChatReranker implements Reranker over a chat model: the candidates are
// numbered in the prompt and the model returns the preferred order as a JSON
// array of indexes.
type ChatReranker struct {
	Model model.ChatModel
}

// Rerank asks the model for a relevance ordering. Indexes the model invents
// are dropped; candidates it omits keep their original relative order at the
// tail, so the result always contains exactly the input chunks.
func (r *ChatReranker) Rerank(ctx context.Context, question string, chunks []retrieval.Chunk) ([]retrieval.Chunk, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}

	var sb strings.Builder
	sb.WriteString("Bir öğrencinin sorusu için en alakalı ders kitabı pasajlarını sırala.\n\n")
	sb.WriteString("Soru: ")
	sb.WriteString(question)
	sb.WriteString("\n\nPasajlar:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] %s\n", i, snippet(chunk.Text, 400))
	}
	sb.WriteString("\nEn alakalıdan en alakasıza doğru pasaj numaralarını JSON dizisi olarak döndür.\n")
	sb.WriteString(`Örnek: [2,0,1]` + "\nSadece JSON dizisini döndür.")

	out, err := r.Model.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: sb.String()}})
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}

	order, err := parseIndexOrder(out.Text)
	if err != nil {
		return nil, fmt.Errorf("rerank response: %w", err)
	}

	ranked := make([]retrieval.Chunk, 0, len(chunks))
	used := make(map[int]bool, len(chunks))
	for _, idx := range order {
		if idx < 0 || idx >= len(chunks) || used[idx] {
			continue
		}
		used[idx] = true
		ranked = append(ranked, chunks[idx])
	}
	for i, chunk := range chunks {
		if !used[i] {
			ranked = append(ranked, chunk)
		}
	}
	return ranked, nil
}

func parseIndexOrder(text string) ([]int, error) {
	text = stripCodeFences(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("no JSON array found")
	}
	var order []int
	if err := json.Unmarshal([]byte(text[start:end+1]), &order); err != nil {
		return nil, fmt.Errorf("parse index array: %w", err)
	}
	return order, nil
}

// ChatSynthesizer implements Synthesizer over a chat model with pedagogical
// prompts. Responses are plain text in the student's language.
type ChatSynthesizer struct {
	Model model.ChatModel
}

const tutorSystemPrompt = `Sen deneyimli ve sabırlı bir öğretmensin. Öğrencinin
seviyesine uygun, adım adım ve teşvik edici açıklamalar yaparsın. Cevabı
doğrudan vermek yerine kavramayı hedeflersin.`

// Explain produces the main pedagogical explanation from the question, the
// matched objectives and the retrieved passages.
func (s *ChatSynthesizer) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	var sb strings.Builder
	sb.WriteString("Öğrencinin sorusu: ")
	sb.WriteString(req.Question)
	sb.WriteString("\n")
	if req.Grade != nil {
		fmt.Fprintf(&sb, "Öğrencinin sınıf seviyesi: %d\n", *req.Grade)
	}
	if req.Subject != "" {
		fmt.Fprintf(&sb, "Ders: %s\n", req.Subject)
	}

	if len(req.Objectives) > 0 {
		sb.WriteString("\nİlgili kazanımlar:\n")
		for _, obj := range req.Objectives {
			fmt.Fprintf(&sb, "- %s: %s\n", obj.Code, obj.Description)
		}
	}
	if len(req.Chunks) > 0 {
		sb.WriteString("\nDers kitabı pasajları:\n")
		for _, chunk := range req.Chunks {
			fmt.Fprintf(&sb, "- %s\n", snippet(chunk.Text, 600))
		}
	}
	if len(req.Images) > 0 {
		sb.WriteString("\nİlgili görseller (açıklamada numarasıyla atıf yapabilirsin):\n")
		for i, img := range req.Images {
			fmt.Fprintf(&sb, "- Görsel %d: %s\n", i+1, img.Caption)
		}
	}
	if req.GapSummary != "" {
		sb.WriteString("\nÖn bilgi eksikleri özeti:\n")
		sb.WriteString(req.GapSummary)
		sb.WriteString("\n")
	}
	if req.CrossObjectiveNote != "" {
		sb.WriteString("\nKazanımlar arası bağlantı notu:\n")
		sb.WriteString(req.CrossObjectiveNote)
		sb.WriteString("\n")
	}
	sb.WriteString("\nBu bilgilerle öğrenciye seviyesine uygun, pedagojik bir açıklama yaz.")

	return s.chat(ctx, sb.String())
}

// AnalyzeGaps summarizes likely prerequisite gaps for the matched
// objectives.
func (s *ChatSynthesizer) AnalyzeGaps(ctx context.Context, req GapRequest) (string, error) {
	var sb strings.Builder
	sb.WriteString("Aşağıdaki kazanımlar üzerinden öğrencinin olası ön bilgi eksiklerini 2-3 cümleyle özetle.\n")
	if req.Grade != nil {
		fmt.Fprintf(&sb, "Sınıf seviyesi: %d\n", *req.Grade)
	}
	fmt.Fprintf(&sb, "Soru: %s\nKazanımlar:\n", req.Question)
	for _, obj := range req.Objectives {
		fmt.Fprintf(&sb, "- %s: %s\n", obj.Code, obj.Description)
	}
	return s.chat(ctx, sb.String())
}

// LinkObjectives produces a short note connecting the matched objectives to
// each other across units or grades.
func (s *ChatSynthesizer) LinkObjectives(ctx context.Context, objectives []retrieval.Objective) (string, error) {
	var sb strings.Builder
	sb.WriteString("Aşağıdaki kazanımların birbirleriyle bağlantısını 2-3 cümleyle açıkla.\nKazanımlar:\n")
	for _, obj := range objectives {
		fmt.Fprintf(&sb, "- %s: %s\n", obj.Code, obj.Description)
	}
	return s.chat(ctx, sb.String())
}

// ChatReply produces a short friendly reply for greetings and small talk.
func (s *ChatSynthesizer) ChatReply(ctx context.Context, message string) (string, error) {
	prompt := fmt.Sprintf(
		"Öğrenci şunu yazdı: %q\nKısa, samimi bir yanıt ver ve ders sorusu sormaya teşvik et.",
		message)
	return s.chat(ctx, prompt)
}

func (s *ChatSynthesizer) chat(ctx context.Context, prompt string) (string, error) {
	out, err := s.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: tutorSystemPrompt},
		{Role: model.RoleUser, Content: prompt},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Text), nil
}

func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
