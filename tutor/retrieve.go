package tutor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/odevai/tutorflow/retrieval"
)

// retrieveObjectives searches for matching learning objectives. It is the
// only stage on the retry cycle: every invocation either produces usable
// objectives or marks the state needs_retry with an incremented counter, and
// the router decides whether another attempt is allowed.
//
// Filters relax across attempts. The first attempt filters by grade and
// subject; the second drops the grade filter; later attempts search by text
// alone. A first attempt whose best match scores below the weak-signal
// threshold keeps its results but still requests one broader retry, since a
// marginal top hit usually means the filters excluded the real match.
func (p *Pipeline) retrieveObjectives(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	attempt := state.RetryCount

	query := retrieval.ObjectiveQuery{
		Text:     state.QuestionText,
		ExamMode: state.IsExamMode,
		Limit:    p.cfg.ObjectiveLimit,
	}
	if attempt < 1 {
		query.Grade = state.EffectiveGrade()
	}
	if attempt < 2 {
		query.Subject = state.EffectiveSubject()
	}

	objectives, err := p.deps.Retriever.SearchObjectives(ctx, query)
	if err != nil {
		return WorkflowState{}, fmt.Errorf("search objectives: %w", err)
	}
	objectives = dedupeObjectives(objectives)

	if len(objectives) == 0 {
		p.incRetry("retrieve_objectives", "empty_results")
		p.logger.Info("objective search returned nothing, marking retry",
			zap.String("analysis_id", state.AnalysisID),
			zap.Int("attempt", attempt))
		return WorkflowState{Status: StatusNeedsRetry, RetryCount: attempt + 1}, nil
	}

	if attempt == 0 && objectives[0].Score < p.cfg.WeakSignalThreshold {
		p.incRetry("retrieve_objectives", "weak_signal")
		p.logger.Info("weak top match, requesting broader retry",
			zap.String("analysis_id", state.AnalysisID),
			zap.Float64("top_score", objectives[0].Score))
		return WorkflowState{
			MatchedObjectives: objectives,
			Status:            StatusNeedsRetry,
			RetryCount:        1,
		}, nil
	}

	return WorkflowState{MatchedObjectives: objectives, Status: StatusProcessing}, nil
}

// retrievePassages fetches textbook passages and related figures for the
// matched objectives. The two searches run concurrently; passages are the
// primary content while figures only enrich the response, so a figure search
// failure is logged and dropped rather than surfaced.
//
// Both result slices are returned non-nil, so downstream routing can tell
// "searched, found nothing" from "never searched".
func (p *Pipeline) retrievePassages(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	codes := make([]string, 0, len(state.MatchedObjectives))
	for _, obj := range state.MatchedObjectives {
		codes = append(codes, obj.Code)
	}

	var (
		chunks []retrieval.Chunk
		images []retrieval.ImageRef
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := p.deps.Retriever.SearchPassages(gctx, retrieval.PassageQuery{
			Text:  state.QuestionText,
			Codes: codes,
			Limit: p.cfg.PassageLimit,
		})
		if err != nil {
			return fmt.Errorf("search passages: %w", err)
		}
		chunks = found
		return nil
	})
	g.Go(func() error {
		found, err := p.deps.Retriever.SearchImages(gctx, retrieval.PassageQuery{
			Text:  state.QuestionText,
			Codes: codes,
			Limit: p.cfg.ImageLimit,
		})
		if err != nil {
			p.logger.Warn("figure search failed, continuing without images",
				zap.String("analysis_id", state.AnalysisID),
				zap.Error(err))
			return nil
		}
		images = found
		return nil
	})

	if err := g.Wait(); err != nil {
		p.logger.Warn("passage search failed, continuing with objectives only",
			zap.String("analysis_id", state.AnalysisID),
			zap.Error(err))
		chunks = nil
	}

	if chunks == nil {
		chunks = []retrieval.Chunk{}
	}
	if images == nil {
		images = []retrieval.ImageRef{}
	}
	return WorkflowState{RelatedChunks: chunks, RelatedImages: images}, nil
}

// dedupeObjectives keeps the first occurrence of each objective code. It
// never writes through the input slice: the retriever may be serving the same
// backing array to other runs (the cached wrapper stores result slices).
func dedupeObjectives(objectives []retrieval.Objective) []retrieval.Objective {
	seen := make(map[string]bool, len(objectives))
	out := make([]retrieval.Objective, 0, len(objectives))
	for _, obj := range objectives {
		if seen[obj.Code] {
			continue
		}
		seen[obj.Code] = true
		out = append(out, obj)
	}
	return out
}
