// Command tutorflow answers a student's question from the command line.
//
// With provider API keys in the environment it uses the real chat, vision
// and embedding backends; without them it falls back to mocks and a small
// seeded in-memory curriculum so the workflow can be exercised offline.
//
// Environment:
//
//	OPENAI_API_KEY      chat model and embeddings
//	ANTHROPIC_API_KEY   chat model (preferred when set)
//	GOOGLE_API_KEY      vision extraction
//	DATABASE_URL        pgvector DSN for curriculum search
//	CHECKPOINT_DB       sqlite path for run checkpoints (default tutorflow.db)
//	CHECKPOINT_MYSQL_DSN mysql DSN for run checkpoints (overrides sqlite; needs parseTime=true)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/odevai/tutorflow/graph"
	"github.com/odevai/tutorflow/graph/emit"
	"github.com/odevai/tutorflow/graph/store"
	"github.com/odevai/tutorflow/model"
	antmodel "github.com/odevai/tutorflow/model/anthropic"
	oaimodel "github.com/odevai/tutorflow/model/openai"
	"github.com/odevai/tutorflow/progress"
	"github.com/odevai/tutorflow/retrieval"
	"github.com/odevai/tutorflow/tutor"
	"github.com/odevai/tutorflow/vision"
)

func main() {
	_ = godotenv.Load()

	var (
		question  = flag.String("q", "", "question text")
		imagePath = flag.String("image", "", "path to a question photo")
		grade     = flag.Int("grade", 0, "student grade (1-12, 0 = unknown)")
		subject   = flag.String("subject", "", "subject filter (matematik, fizik, ...)")
		examMode  = flag.Bool("exam", false, "exam prep mode: match objectives cumulatively")
		userID    = flag.String("user", "", "user id for progress tracking")
		threadID  = flag.String("thread", "", "thread id for checkpointing and resume")
		resume    = flag.Bool("resume", false, "resume the thread from its last checkpoint")
		stream    = flag.Bool("stream", false, "print one line per workflow hop")
		jsonOut   = flag.Bool("json", false, "print the final state as JSON")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, cleanup, err := buildPipeline(ctx, logger)
	if err != nil {
		logger.Fatal("pipeline setup failed", zap.Error(err))
	}
	defer cleanup()

	if *resume {
		if *threadID == "" {
			logger.Fatal("resume requires -thread")
		}
		final, err := p.Resume(ctx, *threadID)
		if err != nil {
			logger.Fatal("resume failed", zap.Error(err))
		}
		printState(final, *jsonOut)
		return
	}

	in := tutor.Input{
		QuestionText: *question,
		UserSubject:  *subject,
		IsExamMode:   *examMode,
		UserID:       *userID,
		SessionID:    fmt.Sprintf("cli-%d", time.Now().Unix()),
	}
	if *grade > 0 {
		in.UserGrade = grade
	}
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			logger.Fatal("read image", zap.Error(err))
		}
		in.Image = data
	}
	if in.QuestionText == "" && len(in.Image) == 0 {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -q or -image")
		flag.Usage()
		os.Exit(2)
	}

	if *stream {
		var final tutor.WorkflowState
		for ev := range p.RunStream(ctx, *threadID, in) {
			if ev.Err != nil {
				logger.Fatal("run failed", zap.Error(ev.Err))
			}
			fmt.Printf("[%02d] %-20s status=%s\n", ev.Step, ev.Stage, ev.State.Status)
			if ev.Terminal {
				final = ev.State
			}
		}
		printState(final, *jsonOut)
		return
	}

	printState(p.Run(ctx, *threadID, in), *jsonOut)
}

func buildPipeline(ctx context.Context, logger *zap.Logger) (*tutor.Pipeline, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	emitter := emit.Multi{emit.NewZapEmitter(logger)}

	retriever, closeRetriever, err := buildRetriever(ctx, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if closeRetriever != nil {
		cleanups = append(cleanups, closeRetriever)
	}

	deps := tutor.Deps{
		Retriever: retrieval.NewCached(retriever, 5*time.Minute),
		Emitter:   emitter,
		Metrics:   graph.NewMetrics(nil),
		Logger:    logger,
	}

	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		chat, err := antmodel.New(os.Getenv("ANTHROPIC_API_KEY"), "")
		if err != nil {
			return nil, cleanup, err
		}
		deps.Synthesizer = &tutor.ChatSynthesizer{Model: chat}
		deps.Reranker = &tutor.ChatReranker{Model: chat}
	case os.Getenv("OPENAI_API_KEY") != "":
		chat, err := oaimodel.New(os.Getenv("OPENAI_API_KEY"), "")
		if err != nil {
			return nil, cleanup, err
		}
		deps.Synthesizer = &tutor.ChatSynthesizer{Model: chat}
		deps.Reranker = &tutor.ChatReranker{Model: chat}
	default:
		logger.Warn("no chat API key set, using a mock synthesizer")
		mock := model.NewMock(model.MockResponse{Text: "Bu soruyu adım adım inceleyelim."})
		deps.Synthesizer = &tutor.ChatSynthesizer{Model: mock}
	}

	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		v, err := vision.NewGemini(key, "")
		if err != nil {
			return nil, cleanup, err
		}
		deps.Vision = v
	} else {
		deps.Vision = &vision.Mock{}
	}

	checkpointPath := os.Getenv("CHECKPOINT_DB")
	if checkpointPath == "" {
		checkpointPath = "tutorflow.db"
	}
	if dsn := os.Getenv("CHECKPOINT_MYSQL_DSN"); dsn != "" {
		durable, err := store.NewMySQLStore[tutor.WorkflowState](dsn)
		if err == nil {
			cleanups = append(cleanups, func() { _ = durable.Close() })
		}
		deps.Checkpoints = store.Fallback[tutor.WorkflowState](durable, err, emitter)
	} else {
		durable, err := store.NewSQLiteStore[tutor.WorkflowState](checkpointPath)
		if err == nil {
			cleanups = append(cleanups, func() { _ = durable.Close() })
		}
		deps.Checkpoints = store.Fallback[tutor.WorkflowState](durable, err, emitter)
	}

	progressStore, err := progress.NewSQLiteStore(checkpointPath)
	if err != nil {
		logger.Warn("progress store unavailable, tracking disabled", zap.Error(err))
	} else {
		cleanups = append(cleanups, func() { _ = progressStore.Close() })
		deps.Progress = progressStore
	}

	p, err := tutor.New(tutor.Config{}, deps)
	return p, cleanup, err
}

// buildRetriever prefers pgvector when a DSN is configured, falling back to a
// seeded in-memory index so the CLI works without infrastructure.
func buildRetriever(ctx context.Context, logger *zap.Logger) (retrieval.Retriever, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		var embedder retrieval.Embedder
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			e, err := retrieval.NewOpenAIEmbedder(key, "")
			if err != nil {
				return nil, nil, err
			}
			embedder = e
		} else {
			embedder = retrieval.NewLocalEmbedder(0)
		}
		pg, err := retrieval.NewPGVector(ctx, dsn, embedder)
		if err != nil {
			return nil, nil, fmt.Errorf("connect pgvector: %w", err)
		}
		return pg, pg.Close, nil
	}

	logger.Warn("DATABASE_URL not set, using a seeded in-memory curriculum")
	idx := retrieval.NewMemoryIndex(retrieval.NewLocalEmbedder(0))
	if err := seedDemoCurriculum(ctx, idx); err != nil {
		return nil, nil, err
	}
	return idx, nil, nil
}

func seedDemoCurriculum(ctx context.Context, idx *retrieval.MemoryIndex) error {
	objectives := []retrieval.Objective{
		{Code: "M.8.2.2.1", Description: "Doğrusal denklemleri çözer ve çözümü yorumlar", Grade: 8, Subject: "matematik"},
		{Code: "M.8.3.1.2", Description: "Üçgenin iç açılarının ölçüleri toplamını hesaplar", Grade: 8, Subject: "matematik"},
		{Code: "F.7.3.1.1", Description: "Kuvvetin birimini ve yönünü açıklar, net kuvveti hesaplar", Grade: 7, Subject: "fizik"},
		{Code: "B.9.1.2.1", Description: "Fotosentez sürecini ve ışığa bağımlı tepkimeleri açıklar", Grade: 9, Subject: "biyoloji"},
	}
	for _, obj := range objectives {
		if err := idx.AddObjective(ctx, obj); err != nil {
			return err
		}
	}

	chunks := []struct {
		chunk retrieval.Chunk
		codes []string
	}{
		{retrieval.Chunk{ID: "m8-denklem-1", Text: "Bir doğrusal denklemde bilinmeyeni yalnız bırakmak için her iki tarafa aynı işlemi uygularız.", Source: "Matematik 8 Ders Kitabı", Page: 42}, []string{"M.8.2.2.1"}},
		{retrieval.Chunk{ID: "m8-ucgen-1", Text: "Bir üçgenin iç açılarının ölçüleri toplamı 180 derecedir.", Source: "Matematik 8 Ders Kitabı", Page: 97}, []string{"M.8.3.1.2"}},
		{retrieval.Chunk{ID: "f7-kuvvet-1", Text: "Kuvvetin birimi Newton'dur ve aynı doğrultudaki kuvvetler cebirsel olarak toplanır.", Source: "Fen Bilimleri 7", Page: 61}, []string{"F.7.3.1.1"}},
		{retrieval.Chunk{ID: "b9-fotosentez-1", Text: "Fotosentez, ışık enerjisinin klorofil aracılığıyla kimyasal enerjiye dönüştürülmesidir.", Source: "Biyoloji 9", Page: 23}, []string{"B.9.1.2.1"}},
	}
	for _, c := range chunks {
		if err := idx.AddChunk(ctx, c.chunk, c.codes...); err != nil {
			return err
		}
	}

	images := []struct {
		img   retrieval.ImageRef
		codes []string
	}{
		{retrieval.ImageRef{ID: "m8-ucgen-fig1", URL: "https://example.org/figures/ucgen-ic-acilar.png", Caption: "Üçgenin iç açıları toplamının gösterimi"}, []string{"M.8.3.1.2"}},
		{retrieval.ImageRef{ID: "b9-fotosentez-fig1", URL: "https://example.org/figures/fotosentez-semasi.png", Caption: "Fotosentezin ışığa bağımlı tepkimeleri şeması"}, []string{"B.9.1.2.1"}},
	}
	for _, im := range images {
		if err := idx.AddImage(ctx, im.img, im.codes...); err != nil {
			return err
		}
	}
	return nil
}

func printState(state tutor.WorkflowState, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(state)
		return
	}

	fmt.Printf("status: %s\n", state.Status)
	if state.Error != "" {
		fmt.Printf("error: %s\n", state.Error)
	}
	if len(state.MatchedObjectives) > 0 {
		fmt.Println("objectives:")
		for _, obj := range state.MatchedObjectives {
			fmt.Printf("  %s (%.2f) %s\n", obj.Code, obj.Score, obj.Description)
		}
	}
	if len(state.RelatedImages) > 0 {
		fmt.Println("figures:")
		for _, img := range state.RelatedImages {
			fmt.Printf("  %s %s\n", img.URL, img.Caption)
		}
	}
	if state.Response != "" {
		fmt.Printf("\n%s\n", state.Response)
	}
}
