package tutor

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

var greetingWords = []string{"merhaba", "selam", "hello", "hi", "günaydın", "iyi akşamlar", "iyi günler"}

var smalltalkWords = []string{"nasılsın", "naber", "teşekkür", "sağ ol", "sağol", "görüşürüz", "iyi geceler"}

// intake is the entry stage: it runs vision extraction when an image is
// attached, merges the extracted signals into the state, and classifies the
// message so the router can pick the academic, chat or error path.
//
// Vision failures degrade the run to text-only instead of failing it; a
// question that arrives with both text and a broken image is still
// answerable.
func (p *Pipeline) intake(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	delta := WorkflowState{Status: StatusProcessing}

	question := strings.TrimSpace(state.QuestionText)

	if len(state.ImageData) > 0 && p.deps.Vision != nil {
		res, err := p.deps.Vision.Extract(ctx, state.ImageData)
		if err != nil {
			p.logger.Warn("vision extraction failed, continuing text-only",
				zap.String("analysis_id", state.AnalysisID),
				zap.Error(err))
		} else {
			if question == "" {
				question = strings.TrimSpace(res.Text)
				delta.QuestionText = question
			}
			if len(res.Topics) > 0 {
				delta.DetectedTopics = res.Topics
			}
			if len(res.MathExpressions) > 0 {
				delta.MathExpressions = res.MathExpressions
			}
			if res.QuestionType != "" {
				delta.QuestionType = res.QuestionType
			}
			if res.GradeEstimate != nil && res.GradeConfidence >= p.cfg.GradeConfidenceMin {
				delta.AIEstimatedGrade = res.GradeEstimate
			}
		}
	}

	delta.MessageType = classifyMessage(question)
	if delta.MessageType == MessageUnclear {
		delta.Error = "soru metni boş veya anlaşılamadı"
	}
	return delta, nil
}

// classifyMessage buckets the question text. Keyword matching is intentional:
// greetings and small talk are short and formulaic, and a misclassified
// academic question still gets a friendly reply pointing back to questions.
func classifyMessage(question string) MessageType {
	trimmed := strings.TrimSpace(strings.ToLower(question))
	if trimmed == "" {
		return MessageUnclear
	}
	for _, w := range greetingWords {
		if strings.HasPrefix(trimmed, w) && len(trimmed) < len(w)+20 {
			return MessageGreeting
		}
	}
	for _, w := range smalltalkWords {
		if strings.Contains(trimmed, w) && len(trimmed) < 60 {
			return MessageChat
		}
	}
	return MessageAcademic
}
