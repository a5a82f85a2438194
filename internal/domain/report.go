package domain

// AnswerScores are the answer-level metrics of one query.
type AnswerScores struct {
	ExactMatch bool    `json:"exact_match"`
	F1         float64 `json:"f1_score"`
	// FuzzySimilarity is the normalized Levenshtein similarity of the
	// normalized answers, in [0,1].
	FuzzySimilarity float64 `json:"fuzzy_similarity"`
}

// RankingScores are the retrieval metrics of one query at cutoff K.
type RankingScores struct {
	K            int     `json:"k"`
	PrecisionAtK float64 `json:"precision_at_k"`
	NDCGAtK      float64 `json:"ndcg_at_k"`
}

// MetricReport is the full metric set for one query.
type MetricReport struct {
	ExactMatch      bool    `json:"exact_match"`
	F1              float64 `json:"f1_score"`
	PrecisionAtK    float64 `json:"precision_at_k"`
	NDCGAtK         float64 `json:"ndcg_at_k"`
	FuzzySimilarity float64 `json:"fuzzy_similarity"`
}

// NewMetricReport combines answer and ranking scores.
func NewMetricReport(a AnswerScores, r RankingScores) MetricReport {
	return MetricReport{
		ExactMatch:      a.ExactMatch,
		F1:              a.F1,
		PrecisionAtK:    r.PrecisionAtK,
		NDCGAtK:         r.NDCGAtK,
		FuzzySimilarity: a.FuzzySimilarity,
	}
}

// QueryCase is one labelled question of an evaluation set.
type QueryCase struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// QueryResult is one row of a batch evaluation.
type QueryResult struct {
	Query     string
	Expected  string
	Predicted string
	// Validation is the raw validator response.
	Validation string
	Sources    []string
	MatchFlag  bool
	Metrics    MetricReport
}

// Summary aggregates a batch of QueryResults.
type Summary struct {
	Queries             int     `json:"queries"`
	MatchRate           float64 `json:"match_rate"`
	ExactMatchRate      float64 `json:"exact_match_rate"`
	MeanF1              float64 `json:"mean_f1"`
	MeanPrecisionAtK    float64 `json:"mean_precision_at_k"`
	MeanNDCGAtK         float64 `json:"mean_ndcg_at_k"`
	MeanFuzzySimilarity float64 `json:"mean_fuzzy_similarity"`
}

// Summarize computes means over results. An empty batch yields a zero
// Summary.
func Summarize(results []QueryResult) Summary {
	s := Summary{Queries: len(results)}
	if len(results) == 0 {
		return s
	}

	for _, r := range results {
		if r.MatchFlag {
			s.MatchRate++
		}
		if r.Metrics.ExactMatch {
			s.ExactMatchRate++
		}
		s.MeanF1 += r.Metrics.F1
		s.MeanPrecisionAtK += r.Metrics.PrecisionAtK
		s.MeanNDCGAtK += r.Metrics.NDCGAtK
		s.MeanFuzzySimilarity += r.Metrics.FuzzySimilarity
	}

	n := float64(len(results))
	s.MatchRate /= n
	s.ExactMatchRate /= n
	s.MeanF1 /= n
	s.MeanPrecisionAtK /= n
	s.MeanNDCGAtK /= n
	s.MeanFuzzySimilarity /= n
	return s
}
