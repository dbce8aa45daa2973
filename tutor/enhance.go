package tutor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/odevai/tutorflow/progress"
)

// rerank reorders the retrieved passages by relevance. Ordering is an
// enhancement: with fewer than two passages, or no reranker configured, the
// stage is a no-op, and the pipeline recovers a reranker failure by keeping
// the similarity order.
func (p *Pipeline) rerank(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	if p.deps.Reranker == nil || len(state.RelatedChunks) < 2 {
		return WorkflowState{}, nil
	}
	ranked, err := p.deps.Reranker.Rerank(ctx, state.QuestionText, state.RelatedChunks)
	if err != nil {
		return WorkflowState{}, err
	}
	return WorkflowState{RelatedChunks: ranked}, nil
}

// trackProgress records the matched objectives against the student's
// learning history. Skipped for anonymous runs; per-objective write failures
// are logged and skipped so one bad row never costs the whole record.
func (p *Pipeline) trackProgress(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	if p.deps.Progress == nil || state.UserID == "" {
		return WorkflowState{}, nil
	}

	tracked := make([]string, 0, len(state.MatchedObjectives))
	for _, obj := range state.MatchedObjectives {
		rec := progress.Record{
			UserID:        state.UserID,
			ObjectiveCode: obj.Code,
			Confidence:    obj.Score,
			SourceSession: state.SessionID,
			TrackedAt:     time.Now().UTC(),
		}
		if err := p.deps.Progress.Upsert(ctx, rec); err != nil {
			p.logger.Warn("progress write failed, skipping objective",
				zap.String("analysis_id", state.AnalysisID),
				zap.String("objective_code", obj.Code),
				zap.Error(err))
			continue
		}
		tracked = append(tracked, obj.Code)
	}
	return WorkflowState{TrackedCodes: tracked}, nil
}

// analyzeGaps asks the synthesizer for a prerequisite-gap summary. Optional:
// the pipeline recovers a failure with an empty delta and the response is
// generated without the summary.
func (p *Pipeline) analyzeGaps(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	if len(state.MatchedObjectives) == 0 {
		return WorkflowState{}, nil
	}
	summary, err := p.deps.Synthesizer.AnalyzeGaps(ctx, GapRequest{
		Question:   state.QuestionText,
		Objectives: state.MatchedObjectives,
		Grade:      state.EffectiveGrade(),
	})
	if err != nil {
		return WorkflowState{}, err
	}
	return WorkflowState{GapSummary: summary}, nil
}

// synthesizeLinks produces a cross-objective connection note when the run
// matched more than one objective. Optional, same degradation as analyzeGaps.
func (p *Pipeline) synthesizeLinks(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	if len(state.MatchedObjectives) < 2 {
		return WorkflowState{}, nil
	}
	note, err := p.deps.Synthesizer.LinkObjectives(ctx, state.MatchedObjectives)
	if err != nil {
		return WorkflowState{}, err
	}
	return WorkflowState{CrossObjectiveNote: note}, nil
}
