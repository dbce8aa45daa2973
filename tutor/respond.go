package tutor

import (
	"context"
	"fmt"

	"github.com/odevai/tutorflow/retrieval"
)

const fallbackChatReply = "Merhaba! Ben senin çalışma asistanınım. Bana ders sorularını sorabilirsin."

const failedResponse = "Üzgünüm, şu anda sorunu yanıtlayamadım. Lütfen soruyu farklı bir şekilde tekrar sormayı dene."

// respond generates the text-only pedagogical explanation.
func (p *Pipeline) respond(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	return p.explain(ctx, state, nil)
}

// respondVisual generates the explanation with figure references included.
func (p *Pipeline) respondVisual(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	return p.explain(ctx, state, state.RelatedImages)
}

func (p *Pipeline) explain(ctx context.Context, state WorkflowState, images []retrieval.ImageRef) (WorkflowState, error) {
	text, err := p.deps.Synthesizer.Explain(ctx, ExplainRequest{
		Question:           state.QuestionText,
		Objectives:         state.MatchedObjectives,
		Chunks:             state.RelatedChunks,
		Images:             images,
		Grade:              state.EffectiveGrade(),
		Subject:            state.EffectiveSubject(),
		GapSummary:         state.GapSummary,
		CrossObjectiveNote: state.CrossObjectiveNote,
	})
	if err != nil {
		return WorkflowState{}, fmt.Errorf("generate explanation: %w", err)
	}
	return WorkflowState{Response: text, Status: StatusProcessing}, nil
}

// finalize is the success terminal: it derives the reported outcome from what
// the run accumulated.
func (p *Pipeline) finalize(_ context.Context, state WorkflowState) (WorkflowState, error) {
	return WorkflowState{Status: finalStatus(state)}, nil
}

// chat is the terminal for greetings and small talk. A failed reply call is
// recovered with a canned greeting so this path never produces an error.
func (p *Pipeline) chat(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	reply, err := p.deps.Synthesizer.ChatReply(ctx, state.QuestionText)
	if err != nil {
		return WorkflowState{}, fmt.Errorf("chat reply: %w", err)
	}
	return WorkflowState{Response: reply, Status: StatusChatMode}, nil
}

// fail is the error terminal. It guarantees the failure contract: a non-empty
// human-readable error, a user-facing fallback response, and no stale
// retrieval results.
func (p *Pipeline) fail(_ context.Context, state WorkflowState) (WorkflowState, error) {
	delta := WorkflowState{
		Status:       StatusFailed,
		Response:     failedResponse,
		ClearResults: true,
	}
	if state.Error == "" {
		delta.Error = "eşleşen kazanım bulunamadı"
	}
	return delta, nil
}
