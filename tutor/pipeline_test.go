package tutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odevai/tutorflow/progress"
	"github.com/odevai/tutorflow/retrieval"
)

// fakeRetriever scripts objective results per attempt and records every
// objective query so tests can assert on filter relaxation.
type fakeRetriever struct {
	mu               sync.Mutex
	objectiveQueries []retrieval.ObjectiveQuery
	objectives       func(attempt int) ([]retrieval.Objective, error)
	chunks           []retrieval.Chunk
	images           []retrieval.ImageRef
	passageErr       error
	imageErr         error
}

func (f *fakeRetriever) SearchObjectives(_ context.Context, q retrieval.ObjectiveQuery) ([]retrieval.Objective, error) {
	f.mu.Lock()
	attempt := len(f.objectiveQueries)
	f.objectiveQueries = append(f.objectiveQueries, q)
	f.mu.Unlock()
	if f.objectives == nil {
		return nil, nil
	}
	return f.objectives(attempt)
}

func (f *fakeRetriever) SearchPassages(context.Context, retrieval.PassageQuery) ([]retrieval.Chunk, error) {
	if f.passageErr != nil {
		return nil, f.passageErr
	}
	return f.chunks, nil
}

func (f *fakeRetriever) SearchImages(context.Context, retrieval.PassageQuery) ([]retrieval.ImageRef, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	return f.images, nil
}

func (f *fakeRetriever) queries() []retrieval.ObjectiveQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]retrieval.ObjectiveQuery, len(f.objectiveQueries))
	copy(out, f.objectiveQueries)
	return out
}

// fakeSynthesizer returns scripted texts and records which calls happened.
type fakeSynthesizer struct {
	mu         sync.Mutex
	explainIn  []ExplainRequest
	explainOut string
	explainErr error
	explainLag time.Duration
	gapsText   string
	gapsErr    error
	linksText  string
	linksErr   error
	chatText   string
	chatErr    error
	chatCalls  int
}

func (f *fakeSynthesizer) Explain(ctx context.Context, req ExplainRequest) (string, error) {
	f.mu.Lock()
	f.explainIn = append(f.explainIn, req)
	f.mu.Unlock()
	if f.explainLag > 0 {
		select {
		case <-time.After(f.explainLag):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.explainOut, f.explainErr
}

func (f *fakeSynthesizer) AnalyzeGaps(context.Context, GapRequest) (string, error) {
	return f.gapsText, f.gapsErr
}

func (f *fakeSynthesizer) LinkObjectives(context.Context, []retrieval.Objective) (string, error) {
	return f.linksText, f.linksErr
}

func (f *fakeSynthesizer) ChatReply(context.Context, string) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	f.mu.Unlock()
	return f.chatText, f.chatErr
}

func (f *fakeSynthesizer) explains() []ExplainRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ExplainRequest, len(f.explainIn))
	copy(out, f.explainIn)
	return out
}

func goodObjectives() []retrieval.Objective {
	return []retrieval.Objective{
		{Code: "M.8.2.2.1", Description: "Doğrusal denklemleri çözer", Grade: 8, Subject: "matematik", Score: 0.91},
		{Code: "M.8.2.2.2", Description: "Denklem kurar", Grade: 8, Subject: "matematik", Score: 0.84},
	}
}

func newTestPipeline(t *testing.T, cfg Config, deps Deps) *Pipeline {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	p, err := New(cfg, deps)
	require.NoError(t, err)
	return p
}

func TestRunHappyPathWithImages(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "denklem çözümü", Score: 0.8}},
		images:     []retrieval.ImageRef{{ID: "i1", Caption: "denklem grafiği"}},
	}
	syn := &fakeSynthesizer{explainOut: "Adım adım çözelim.", gapsText: "eksik yok", linksText: "bağlantılı"}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "2x+3=7 denklemini çöz", UserGrade: intPtr(8)})

	assert.Equal(t, StatusSuccess, final.Status)
	assert.Equal(t, "Adım adım çözelim.", final.Response)
	assert.Empty(t, final.Error)
	assert.Len(t, final.MatchedObjectives, 2)
	assert.Equal(t, "eksik yok", final.GapSummary)
	assert.Equal(t, "bağlantılı", final.CrossObjectiveNote)

	// Figures present, so the visual path passed them to the synthesizer.
	explains := syn.explains()
	require.Len(t, explains, 1)
	assert.Len(t, explains[0].Images, 1)
}

func TestRunTextOnlyPath(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem nedir"})

	assert.Equal(t, StatusSuccess, final.Status)
	explains := syn.explains()
	require.Len(t, explains, 1)
	assert.Empty(t, explains[0].Images)
}

func TestRunExhaustsRetriesOnPersistentEmptyResults(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return nil, nil },
	}
	p := newTestPipeline(t, Config{MaxRetries: 2}, Deps{Retriever: ret, Synthesizer: &fakeSynthesizer{}})

	final := p.Run(context.Background(), "", Input{QuestionText: "hiç eşleşmeyen soru"})

	assert.Equal(t, StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.NotEmpty(t, final.Response, "failed runs still carry a user-facing message")
	assert.Empty(t, final.MatchedObjectives)
	assert.Empty(t, final.RelatedChunks)
	assert.Len(t, ret.queries(), 3, "MaxRetries=2 allows exactly three attempts")
}

func TestRunRelaxesFiltersAcrossRetries(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(attempt int) ([]retrieval.Objective, error) {
			if attempt < 2 {
				return nil, nil
			}
			return goodObjectives(), nil
		},
		chunks: []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	p := newTestPipeline(t, Config{MaxRetries: 2}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{
		QuestionText: "denklem çözümü",
		UserGrade:    intPtr(8),
		UserSubject:  "matematik",
	})

	require.Equal(t, StatusSuccess, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	queries := ret.queries()
	require.Len(t, queries, 3)

	assert.NotNil(t, queries[0].Grade, "first attempt filters by grade")
	assert.Equal(t, "matematik", queries[0].Subject)
	assert.Nil(t, queries[1].Grade, "second attempt drops the grade filter")
	assert.Equal(t, "matematik", queries[1].Subject)
	assert.Nil(t, queries[2].Grade, "third attempt searches by text alone")
	assert.Empty(t, queries[2].Subject)
}

func TestRunWeakSignalForcesOneBroaderRetry(t *testing.T) {
	weak := []retrieval.Objective{{Code: "M.8.9.9.9", Description: "alakasız", Score: 0.11}}
	ret := &fakeRetriever{
		objectives: func(attempt int) ([]retrieval.Objective, error) {
			if attempt == 0 {
				return weak, nil
			}
			return goodObjectives(), nil
		},
		chunks: []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	p := newTestPipeline(t, Config{MaxRetries: 2, WeakSignalThreshold: 0.35},
		Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem", UserGrade: intPtr(8)})

	assert.Equal(t, StatusSuccess, final.Status)
	assert.Len(t, ret.queries(), 2, "weak signal consumes one retry slot")
	assert.Equal(t, "M.8.2.2.1", final.MatchedObjectives[0].Code)
}

func TestRunRetrieverErrorsCountAgainstCeiling(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) {
			return nil, errors.New("vector store unavailable")
		},
	}
	p := newTestPipeline(t, Config{MaxRetries: 1}, Deps{Retriever: ret, Synthesizer: &fakeSynthesizer{}})

	final := p.Run(context.Background(), "", Input{QuestionText: "soru"})

	assert.Equal(t, StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.Len(t, ret.queries(), 2)
}

func TestRunGreetingSkipsRetrieval(t *testing.T) {
	ret := &fakeRetriever{}
	syn := &fakeSynthesizer{chatText: "Merhaba! Nasıl yardımcı olabilirim?"}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "merhaba"})

	assert.Equal(t, StatusChatMode, final.Status)
	assert.Equal(t, "Merhaba! Nasıl yardımcı olabilirim?", final.Response)
	assert.Empty(t, ret.queries(), "greetings never hit retrieval")
}

func TestRunChatReplyFailureFallsBack(t *testing.T) {
	syn := &fakeSynthesizer{chatErr: errors.New("model down")}
	p := newTestPipeline(t, Config{}, Deps{Retriever: &fakeRetriever{}, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "selam"})

	assert.Equal(t, StatusChatMode, final.Status)
	assert.NotEmpty(t, final.Response)
}

func TestRunEmptyQuestionFails(t *testing.T) {
	p := newTestPipeline(t, Config{}, Deps{Retriever: &fakeRetriever{}, Synthesizer: &fakeSynthesizer{}})

	final := p.Run(context.Background(), "", Input{QuestionText: "   "})

	assert.Equal(t, StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
}

func TestRunEnhancementFailuresDegrade(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{
		explainOut: "Açıklama.",
		gapsErr:    errors.New("gaps down"),
		linksErr:   errors.New("links down"),
	}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem"})

	assert.Equal(t, StatusSuccess, final.Status)
	assert.Empty(t, final.GapSummary)
	assert.Empty(t, final.CrossObjectiveNote)
}

func TestRunRespondFailure(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainErr: errors.New("model down")}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem"})

	assert.Equal(t, StatusFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.Empty(t, final.MatchedObjectives, "failed runs report no stale results")
}

func TestRunStageTimeoutMessage(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "asla dönmez", explainLag: time.Second}
	p := newTestPipeline(t, Config{RespondTimeout: 30 * time.Millisecond},
		Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem"})

	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "timeout in respond", final.Error)
}

func TestRunTracksProgressOnlyWithUserID(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	store := progress.NewMemStore()
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn, Progress: store})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem"})
	assert.Equal(t, StatusSuccess, final.Status)
	assert.Empty(t, final.TrackedCodes, "anonymous runs are not tracked")

	final = p.Run(context.Background(), "", Input{QuestionText: "denklem", UserID: "u1", SessionID: "s1"})
	assert.ElementsMatch(t, []string{"M.8.2.2.1", "M.8.2.2.2"}, final.TrackedCodes)

	recs, err := store.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "s1", recs[0].SourceSession)
}

func TestRunImageSearchFailureDropsFigures(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
		imageErr:   errors.New("figure index down"),
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	final := p.Run(context.Background(), "", Input{QuestionText: "denklem"})

	assert.Equal(t, StatusSuccess, final.Status)
	assert.Empty(t, final.RelatedImages)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{Synthesizer: &fakeSynthesizer{}})
	assert.Error(t, err)

	_, err = New(Config{}, Deps{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
}

func TestRunStreamDeliversTerminalEvent(t *testing.T) {
	ret := &fakeRetriever{
		objectives: func(int) ([]retrieval.Objective, error) { return goodObjectives(), nil },
		chunks:     []retrieval.Chunk{{ID: "c1", Text: "pasaj"}},
	}
	syn := &fakeSynthesizer{explainOut: "Açıklama."}
	p := newTestPipeline(t, Config{}, Deps{Retriever: ret, Synthesizer: syn})

	var last WorkflowState
	var sawTerminal bool
	for ev := range p.RunStream(context.Background(), "", Input{QuestionText: "denklem"}) {
		require.NoError(t, ev.Err)
		if ev.Terminal {
			sawTerminal = true
			last = ev.State
		}
	}
	require.True(t, sawTerminal)
	assert.Equal(t, StatusSuccess, last.Status)
}
