package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ragqa/infrastructure/middleware"
	"github.com/ahrav/go-ragqa/infrastructure/units"
	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/logging"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// CSVHeader is the column layout of the evaluation results file.
var CSVHeader = []string{
	"query",
	"expected",
	"predicted",
	"answer_matches",
	"sources",
	"Precision@K",
	"nDCG@K",
	"exact_match",
	"f1_score",
	"match_flag",
	"fuzzy_similarity",
}

// BatchEvaluator answers every question of a query set and scores the
// answers and the retrieval against the expected answers.
type BatchEvaluator struct {
	pipeline    *Pipeline
	topK        int
	concurrency int
	metrics     ports.MetricsCollector
	logger      *slog.Logger
}

// BatchOption configures a BatchEvaluator.
type BatchOption func(*batchOptions)

type batchOptions struct {
	topK        int
	concurrency int
	overrides   map[string]map[string]any
	metrics     ports.MetricsCollector
	logger      *slog.Logger
}

// WithEvalTopK sets how many chunks are retrieved and ranked per query.
func WithEvalTopK(k int) BatchOption {
	return func(o *batchOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithEvalConcurrency sets how many queries run at once.
func WithEvalConcurrency(n int) BatchOption {
	return func(o *batchOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithEvalUnitOverrides passes per-unit-type configuration to the registry.
func WithEvalUnitOverrides(overrides map[string]map[string]any) BatchOption {
	return func(o *batchOptions) { o.overrides = overrides }
}

// WithEvalMetrics records unit latency, per-query scores and the run
// summary.
func WithEvalMetrics(m ports.MetricsCollector) BatchOption {
	return func(o *batchOptions) { o.metrics = m }
}

// WithEvalLogger sets the logger.
func WithEvalLogger(l *slog.Logger) BatchOption {
	return func(o *batchOptions) { o.logger = l }
}

// NewBatchEvaluator builds the evaluation pipeline: retrieve, answer, then
// validation, answer scoring and relevance judging side by side.
func NewBatchEvaluator(registry ports.UnitRegistry, opts ...BatchOption) (*BatchEvaluator, error) {
	o := batchOptions{topK: units.DefaultEvalTopK, concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}

	steps := []struct{ unitType, id string }{
		{UnitTypeRetrieval, unitIDRetrieve},
		{UnitTypeAnswer, unitIDAnswer},
		{UnitTypeValidation, unitIDValidate},
		{UnitTypeAnswerScore, unitIDAnswerScore},
		{UnitTypeRelevance, unitIDRelevance},
	}
	built := make([]*UnitAdapter, len(steps))
	for i, s := range steps {
		step, err := buildStep(registry, o.overrides, s.unitType, s.id, o.metrics)
		if err != nil {
			return nil, err
		}
		built[i] = step
	}

	scoring := NewLayer("score")
	for _, step := range built[2:] {
		if err := scoring.Add(step); err != nil {
			return nil, err
		}
	}
	pipeline, err := newPipeline("eval", built[0], built[1], scoring)
	if err != nil {
		return nil, err
	}

	return &BatchEvaluator{
		pipeline:    pipeline,
		topK:        o.topK,
		concurrency: o.concurrency,
		metrics:     o.metrics,
		logger:      logging.OrDefault(o.logger),
	}, nil
}

// Evaluate runs every query and returns the results in input order. The
// first failing query cancels the rest.
func (b *BatchEvaluator) Evaluate(ctx context.Context, queries []domain.QueryCase) ([]domain.QueryResult, error) {
	start := time.Now()
	results := make([]domain.QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			res, err := b.EvaluateOne(gctx, q)
			if err != nil {
				return fmt.Errorf("query %d %q: %w", i, q.Question, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := domain.Summarize(results)
	b.recordSummary(summary)
	b.logger.InfoContext(ctx, "evaluation complete",
		"queries", summary.Queries,
		"match_rate", summary.MatchRate,
		"exact_match_rate", summary.ExactMatchRate,
		"mean_f1", summary.MeanF1,
		"mean_precision_at_k", summary.MeanPrecisionAtK,
		"mean_ndcg_at_k", summary.MeanNDCGAtK,
		"mean_fuzzy_similarity", summary.MeanFuzzySimilarity,
		"duration", time.Since(start))
	return results, nil
}

// EvaluateOne answers and scores a single labelled question.
func (b *BatchEvaluator) EvaluateOne(ctx context.Context, q domain.QueryCase) (domain.QueryResult, error) {
	question := lowerText(strings.TrimSpace(q.Question))
	if question == "" {
		return domain.QueryResult{}, ErrEmptyQuestion
	}

	execID := uuid.NewString()
	ctx = logging.WithExecutionID(ctx, execID)

	state := domain.NewState()
	state = domain.With(state, domain.KeyQuestion, question)
	state = domain.With(state, domain.KeyExpected, q.Answer)
	state = domain.With(state, domain.KeyTopK, b.topK)
	state = domain.With(state, domain.KeyExecutionID, execID)

	final, err := b.pipeline.Execute(ctx, state)
	if err != nil {
		return domain.QueryResult{}, err
	}

	resp := responseFromState(question, final)
	validation, _ := domain.Get(final, domain.KeyValidation)
	match, _ := domain.Get(final, domain.KeyMatchFlag)
	answerScores, _ := domain.Get(final, domain.KeyAnswerScores)
	rankingScores, _ := domain.Get(final, domain.KeyRankingScores)

	result := domain.QueryResult{
		Query:      question,
		Expected:   q.Answer,
		Predicted:  resp.Answer,
		Validation: validation,
		Sources:    resp.Sources,
		MatchFlag:  match,
		Metrics:    domain.NewMetricReport(answerScores, rankingScores),
	}
	b.recordScores(result.Metrics)

	logging.FromContext(ctx, b.logger).DebugContext(ctx, "query evaluated",
		"match", match,
		"f1", result.Metrics.F1,
		"precision_at_k", result.Metrics.PrecisionAtK,
		"ndcg_at_k", result.Metrics.NDCGAtK)
	return result, nil
}

func (b *BatchEvaluator) recordScores(m domain.MetricReport) {
	if b.metrics == nil {
		return
	}
	for name, v := range map[string]float64{
		"exact_match":      boolScore(m.ExactMatch),
		"f1_score":         m.F1,
		"precision_at_k":   m.PrecisionAtK,
		"ndcg_at_k":        m.NDCGAtK,
		"fuzzy_similarity": m.FuzzySimilarity,
	} {
		b.metrics.RecordHistogram(middleware.MetricEvalScore, v, map[string]string{"metric": name})
	}
	b.metrics.RecordCounter(middleware.MetricQueriesTotal, 1, map[string]string{"unit": "eval"})
}

func (b *BatchEvaluator) recordSummary(s domain.Summary) {
	if b.metrics == nil {
		return
	}
	for name, v := range map[string]float64{
		"match_rate":       s.MatchRate,
		"exact_match_rate": s.ExactMatchRate,
		"f1_score":         s.MeanF1,
		"precision_at_k":   s.MeanPrecisionAtK,
		"ndcg_at_k":        s.MeanNDCGAtK,
		"fuzzy_similarity": s.MeanFuzzySimilarity,
	} {
		b.metrics.RecordGauge(middleware.MetricEvalSummary, v, map[string]string{"metric": name})
	}
}

// WriteCSV writes results under CSVHeader.
func WriteCSV(w io.Writer, results []domain.QueryResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range results {
		record := []string{
			r.Query,
			r.Expected,
			r.Predicted,
			r.Validation,
			pyList(r.Sources),
			pyFloat(r.Metrics.PrecisionAtK),
			pyFloat(r.Metrics.NDCGAtK),
			pyBool(r.Metrics.ExactMatch),
			pyFloat(r.Metrics.F1),
			pyBool(r.MatchFlag),
			pyFloat(r.Metrics.FuzzySimilarity),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes results to path, creating parent directories.
func WriteCSVFile(path string, results []domain.QueryResult) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating results file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteCSV(f, results)
}

// pyList renders names the way a Python list of strings prints.
func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// pyFloat prints the shortest representation, always with a decimal point.
func pyFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func boolScore(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
