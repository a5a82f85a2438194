package evaluation

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// ExactMatch reports whether predicted and expected are equal after
// normalization. An empty expected answer matches any prediction that
// normalizes to empty, such as "" or "the a an".
func ExactMatch(predicted, expected string) bool {
	return Normalize(predicted) == Normalize(expected)
}

// TokenF1 returns the harmonic mean of token precision and recall between
// the normalized predicted and expected answers. Both sides are reduced to
// distinct token sets before counting. The result is 0 when the sets share
// no token, which also covers an empty side.
func TokenF1(predicted, expected string) float64 {
	pred := normalizedTokenSet(predicted)
	exp := normalizedTokenSet(expected)

	common := 0
	for tok := range pred {
		if _, ok := exp[tok]; ok {
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(pred))
	recall := float64(common) / float64(len(exp))
	return 2 * precision * recall / (precision + recall)
}

// FuzzySimilarity returns 1 minus the Levenshtein distance between the
// normalized answers divided by the longer one's rune count. Two empty
// answers are identical and score 1.
func FuzzySimilarity(predicted, expected string) float64 {
	a, b := Normalize(predicted), Normalize(expected)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

// ScoreAnswer computes every answer-level metric in one call.
func ScoreAnswer(predicted, expected string) domain.AnswerScores {
	return domain.AnswerScores{
		ExactMatch:      ExactMatch(predicted, expected),
		F1:              TokenF1(predicted, expected),
		FuzzySimilarity: FuzzySimilarity(predicted, expected),
	}
}
