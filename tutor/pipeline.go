package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/odevai/tutorflow/graph"
	"github.com/odevai/tutorflow/graph/emit"
	"github.com/odevai/tutorflow/graph/store"
	"github.com/odevai/tutorflow/progress"
	"github.com/odevai/tutorflow/retrieval"
	"github.com/odevai/tutorflow/vision"
)

// Config holds pipeline tuning knobs. Zero values are replaced by defaults.
type Config struct {
	// MaxRetries bounds the retrieval retry loop. With MaxRetries N the
	// objective search runs at most N+1 times per run.
	MaxRetries int

	// WeakSignalThreshold is the top-match score below which a first attempt
	// requests one broader retry even though it found results.
	WeakSignalThreshold float64

	// GradeConfidenceMin gates the vision model's grade estimate; estimates
	// below it are discarded.
	GradeConfidenceMin float64

	ObjectiveLimit int
	PassageLimit   int
	ImageLimit     int

	// MaxSteps overrides the engine's runtime step ceiling when positive.
	MaxSteps int

	IntakeTimeout   time.Duration
	RetrieveTimeout time.Duration
	RerankTimeout   time.Duration
	ProgressTimeout time.Duration
	EnhanceTimeout  time.Duration
	RespondTimeout  time.Duration
	ChatTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.WeakSignalThreshold <= 0 {
		c.WeakSignalThreshold = 0.35
	}
	if c.GradeConfidenceMin <= 0 {
		c.GradeConfidenceMin = 0.5
	}
	if c.ObjectiveLimit <= 0 {
		c.ObjectiveLimit = 5
	}
	if c.PassageLimit <= 0 {
		c.PassageLimit = 8
	}
	if c.ImageLimit <= 0 {
		c.ImageLimit = 4
	}
	if c.IntakeTimeout <= 0 {
		c.IntakeTimeout = 30 * time.Second
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = 15 * time.Second
	}
	if c.RerankTimeout <= 0 {
		c.RerankTimeout = 20 * time.Second
	}
	if c.ProgressTimeout <= 0 {
		c.ProgressTimeout = 10 * time.Second
	}
	if c.EnhanceTimeout <= 0 {
		c.EnhanceTimeout = 30 * time.Second
	}
	if c.RespondTimeout <= 0 {
		c.RespondTimeout = 60 * time.Second
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 20 * time.Second
	}
	return c
}

// Deps wires the pipeline's collaborators. Retriever and Synthesizer are
// required; everything else is optional and its absence disables the
// corresponding feature.
type Deps struct {
	Vision      vision.Model
	Retriever   retrieval.Retriever
	Reranker    Reranker
	Synthesizer Synthesizer
	Progress    progress.Store
	Checkpoints store.Store[WorkflowState]
	Emitter     emit.Emitter
	Metrics     *graph.Metrics
	Logger      *zap.Logger
}

// Input is one student request.
type Input struct {
	QuestionText string
	Image        []byte
	UserGrade    *int
	UserSubject  string
	IsExamMode   bool
	UserID       string
	SessionID    string
}

// Pipeline is the assembled Q&A workflow. Construct it once with New and
// share it; Run is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	engine *graph.Engine[WorkflowState]
}

// New assembles and validates the workflow graph.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Retriever == nil {
		return nil, errors.New("pipeline requires a retriever")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("pipeline requires a synthesizer")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: deps.Logger,
	}
	p.engine = p.buildGraph()
	if err := p.engine.Validate(); err != nil {
		return nil, fmt.Errorf("workflow graph: %w", err)
	}
	return p, nil
}

func (p *Pipeline) buildGraph() *graph.Engine[WorkflowState] {
	opts := []graph.Option[WorkflowState]{}
	if p.deps.Emitter != nil {
		opts = append(opts, graph.WithEmitter[WorkflowState](p.deps.Emitter))
	}
	if p.deps.Metrics != nil {
		opts = append(opts, graph.WithMetrics[WorkflowState](p.deps.Metrics))
	}
	if p.deps.Checkpoints != nil {
		opts = append(opts, graph.WithCheckpoints[WorkflowState](p.deps.Checkpoints))
	}
	if p.cfg.MaxSteps > 0 {
		opts = append(opts, graph.WithMaxSteps[WorkflowState](p.cfg.MaxSteps))
	}

	e := graph.New(Reduce, opts...)

	// Faults on the main path become failure deltas routed to the error
	// terminal; faults on enhancement stages become empty deltas so the run
	// continues without that enhancement.
	e.AddStage("intake", p.guarded("intake", p.cfg.IntakeTimeout, p.intake, p.failureDelta))
	e.AddStage("retrieve_objectives", p.retryGuarded("retrieve_objectives", p.cfg.RetrieveTimeout, p.retrieveObjectives))
	e.AddStage("retrieve_passages", p.guarded("retrieve_passages", p.cfg.RetrieveTimeout, p.retrievePassages, p.clearingFailureDelta))
	e.AddStage("rerank", p.guarded("rerank", p.cfg.RerankTimeout, p.rerank, p.degradeDelta))
	e.AddStage("track_progress", p.guarded("track_progress", p.cfg.ProgressTimeout, p.trackProgress, p.degradeDelta))
	e.AddStage("analyze_gaps", p.guarded("analyze_gaps", p.cfg.EnhanceTimeout, p.analyzeGaps, p.degradeDelta))
	e.AddStage("synthesize_links", p.guarded("synthesize_links", p.cfg.EnhanceTimeout, p.synthesizeLinks, p.degradeDelta))
	e.AddStage("respond", p.guarded("respond", p.cfg.RespondTimeout, p.respond, p.failureDelta))
	e.AddStage("respond_visual", p.guarded("respond_visual", p.cfg.RespondTimeout, p.respondVisual, p.failureDelta))
	e.AddStage("finalize", p.guarded("finalize", 0, p.finalize, p.failureDelta))
	e.AddStage("chat", p.guarded("chat", p.cfg.ChatTimeout, p.chat, p.chatFallback))
	e.AddStage("fail", p.guarded("fail", 0, p.fail, p.failureDelta))

	e.SetEntry("intake")
	e.AddTerminal("finalize", "chat", "fail")
	e.AllowCycle("retrieve_objectives")

	e.AddRouter("intake", routeAfterIntake)
	e.AddEdge("intake", labelError, "fail")
	e.AddEdge("intake", labelChat, "chat")
	e.AddEdge("intake", labelContinue, "retrieve_objectives")

	e.AddRouter("retrieve_objectives", routeAfterRetrieval(p.cfg.MaxRetries))
	e.AddEdge("retrieve_objectives", labelRetry, "retrieve_objectives")
	e.AddEdge("retrieve_objectives", labelError, "fail")
	e.AddEdge("retrieve_objectives", labelContinue, "retrieve_passages")

	e.AddRouter("retrieve_passages", routeResultPresence)
	e.AddEdge("retrieve_passages", labelHasResults, "rerank")
	e.AddEdge("retrieve_passages", labelNoResults, "fail")

	e.AddRouter("rerank", graph.Always[WorkflowState](labelContinue))
	e.AddEdge("rerank", labelContinue, "track_progress")

	e.AddRouter("track_progress", graph.Always[WorkflowState](labelContinue))
	e.AddEdge("track_progress", labelContinue, "analyze_gaps")

	e.AddRouter("analyze_gaps", graph.Always[WorkflowState](labelContinue))
	e.AddEdge("analyze_gaps", labelContinue, "synthesize_links")

	e.AddRouter("synthesize_links", routeImageInclusion)
	e.AddEdge("synthesize_links", labelWithImages, "respond_visual")
	e.AddEdge("synthesize_links", labelTextOnly, "respond")

	e.AddRouter("respond", routeAfterRespond)
	e.AddEdge("respond", labelDone, "finalize")
	e.AddEdge("respond", labelError, "fail")

	e.AddRouter("respond_visual", routeAfterRespond)
	e.AddEdge("respond_visual", labelDone, "finalize")
	e.AddEdge("respond_visual", labelError, "fail")

	return e
}

// guarded applies the standard stage wrapping: timeout, fault recovery via
// the given mapper, and observation.
func (p *Pipeline) guarded(name string, timeout time.Duration, stage graph.Stage[WorkflowState], onError graph.FailureMapper[WorkflowState]) graph.Stage[WorkflowState] {
	wrapped := graph.WithRecovery(name, graph.WithStageTimeout(name, timeout, stage), onError)
	return graph.WithObserve(name, wrapped, p.deps.Emitter, describeStage)
}

// retryGuarded wraps the retrieval stage: faults mark the state needs_retry
// instead of failing, feeding the same retry ceiling as empty results.
func (p *Pipeline) retryGuarded(name string, timeout time.Duration, stage graph.Stage[WorkflowState]) graph.Stage[WorkflowState] {
	wrapped := graph.WithRetryMark(name, graph.WithStageTimeout(name, timeout, stage),
		func(state WorkflowState, stageName string, err error) WorkflowState {
			p.incRetry(stageName, "error")
			p.logger.Warn("retrieval attempt failed, marking retry",
				zap.String("stage", stageName),
				zap.String("analysis_id", state.AnalysisID),
				zap.Error(err))
			return WorkflowState{Status: StatusNeedsRetry, RetryCount: state.RetryCount + 1}
		})
	return graph.WithObserve(name, wrapped, p.deps.Emitter, describeStage)
}

// failureDelta routes a stage fault to the error terminal with a
// human-readable message. Timeouts get the fixed "timeout in <stage>" form so
// callers can recognize them.
func (p *Pipeline) failureDelta(stage string, err error) WorkflowState {
	msg := err.Error()
	var engineErr *graph.EngineError
	if errors.As(err, &engineErr) && engineErr.Code == "STAGE_TIMEOUT" {
		msg = fmt.Sprintf("timeout in %s", stage)
	}
	p.logger.Warn("stage failed",
		zap.String("stage", stage),
		zap.String("error", msg))
	return WorkflowState{Status: StatusFailed, Error: msg}
}

// clearingFailureDelta is failureDelta for stages whose router branches on
// result presence: clearing the result lists makes the failure route to the
// error terminal instead of continuing on stale results.
func (p *Pipeline) clearingFailureDelta(stage string, err error) WorkflowState {
	delta := p.failureDelta(stage, err)
	delta.ClearResults = true
	return delta
}

// degradeDelta drops an enhancement-stage fault: the run continues with
// whatever state it already has.
func (p *Pipeline) degradeDelta(stage string, err error) WorkflowState {
	p.logger.Warn("enhancement stage failed, continuing without it",
		zap.String("stage", stage),
		zap.Error(err))
	return WorkflowState{}
}

// chatFallback keeps the chat terminal total: if the reply call fails, the
// student still gets a greeting.
func (p *Pipeline) chatFallback(stage string, err error) WorkflowState {
	p.logger.Warn("chat reply failed, using fallback",
		zap.String("stage", stage),
		zap.Error(err))
	return WorkflowState{Response: fallbackChatReply, Status: StatusChatMode}
}

func (p *Pipeline) incRetry(stage, reason string) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.IncRetry(stage, reason)
	}
}

func describeStage(state, delta WorkflowState) map[string]interface{} {
	status := delta.Status
	if status == "" {
		status = state.Status
	}
	return map[string]interface{}{
		"analysis_id": state.AnalysisID,
		"status":      string(status),
	}
}

func newState(in Input) WorkflowState {
	return WorkflowState{
		AnalysisID:   uuid.NewString(),
		QuestionText: in.QuestionText,
		ImageData:    in.Image,
		UserGrade:    in.UserGrade,
		UserSubject:  in.UserSubject,
		IsExamMode:   in.IsExamMode,
		UserID:       in.UserID,
		SessionID:    in.SessionID,
		Status:       StatusProcessing,
	}
}

// Run executes the workflow for one request. It never returns an error: any
// engine-level failure is folded into a failed state, so callers always get a
// state with a final status, a response, and an error message when something
// went wrong.
//
// threadID enables checkpointing when non-empty and a checkpoint store is
// configured; pass "" for fire-and-forget runs.
func (p *Pipeline) Run(ctx context.Context, threadID string, in Input) WorkflowState {
	initial := newState(in)
	p.logger.Info("run started",
		zap.String("analysis_id", initial.AnalysisID),
		zap.String("thread_id", threadID))

	final, err := p.engine.Run(ctx, threadID, initial)
	if err != nil {
		final = p.foldEngineError(final, err)
	}

	p.logger.Info("run finished",
		zap.String("analysis_id", final.AnalysisID),
		zap.String("status", string(final.Status)))
	return final
}

// RunStream executes the workflow and streams one event per merged hop. The
// channel closes when the run ends.
func (p *Pipeline) RunStream(ctx context.Context, threadID string, in Input) <-chan graph.StepEvent[WorkflowState] {
	return p.engine.RunStream(ctx, threadID, newState(in))
}

// Resume continues a checkpointed run from its last persisted hop.
func (p *Pipeline) Resume(ctx context.Context, threadID string) (WorkflowState, error) {
	return p.engine.Resume(ctx, threadID)
}

// foldEngineError turns an engine failure into a terminal failed state. The
// error terminal normally does this; an engine error means the run never got
// there (cancellation, max steps, a routing bug).
func (p *Pipeline) foldEngineError(state WorkflowState, err error) WorkflowState {
	p.logger.Error("run aborted", zap.String("analysis_id", state.AnalysisID), zap.Error(err))
	state.Status = StatusFailed
	if state.Error == "" {
		state.Error = err.Error()
	}
	if state.Response == "" {
		state.Response = failedResponse
	}
	state.MatchedObjectives = nil
	state.RelatedChunks = nil
	state.RelatedImages = nil
	return state
}
