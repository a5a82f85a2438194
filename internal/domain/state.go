// Package domain contains pure, dependency-free domain models and types
// for question answering and answer evaluation.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T gives compile-time type safety when getting and
// setting values.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the string form of the key.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys shared by the pipeline units.
var (
	// KeyQuestion stores the user question as it will be embedded and
	// sent to the model.
	KeyQuestion = Key[string]{"question"}

	// KeyExpected stores the reference answer when one is known.
	// Scoring units skip work when it is absent.
	KeyExpected = Key[string]{"expected"}

	// KeyTopK stores the number of chunks to retrieve.
	KeyTopK = Key[int]{"top_k"}

	// KeyChunks stores the retrieved chunks in descending similarity order.
	KeyChunks = Key[[]RetrievedChunk]{"chunks"}

	// KeyAnswer stores the generated answer.
	KeyAnswer = Key[string]{"answer"}

	// KeyValidation stores the raw Yes/No response of the validation prompt.
	KeyValidation = Key[string]{"validation"}

	// KeyMatchFlag is true when the validator judged the answer to contain
	// the expected answer.
	KeyMatchFlag = Key[bool]{"match_flag"}

	// KeyAnswerScores stores exact match, F1 and fuzzy similarity.
	KeyAnswerScores = Key[AnswerScores]{"answer_scores"}

	// KeyRelevanceFlags stores one 0/1 flag per retrieved chunk, in
	// retrieval order.
	KeyRelevanceFlags = Key[[]int]{"relevance_flags"}

	// KeyRankingScores stores precision@k and nDCG@k.
	KeyRankingScores = Key[RankingScores]{"ranking_scores"}

	// KeyExecutionID stores a unique identifier for one pipeline run,
	// used for log and trace correlation.
	KeyExecutionID = Key[string]{"execution.execution_id"}

	// KeyTokensUsed tracks cumulative model tokens consumed by the run.
	KeyTokensUsed = Key[int64]{"execution.tokens_used"}

	// KeyCallsMade tracks cumulative model calls made by the run.
	KeyCallsMade = Key[int64]{"execution.calls_made"}
)

// deepCopyValue copies slices, maps, pointers and structs so that values
// handed out of a State cannot alias values stored inside it.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := range v.Len() {
			out.Index(i).Set(copyInto(v.Index(i)))
		}
		return out.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(copyInto(iter.Key()), copyInto(iter.Value()))
		}
		return out.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(copyInto(v.Elem()))
		return out.Interface()

	case reflect.Struct:
		// Unexported fields are left zeroed; all domain types export theirs.
		out := reflect.New(v.Type()).Elem()
		for i := range v.NumField() {
			if out.Field(i).CanSet() {
				out.Field(i).Set(copyInto(v.Field(i)))
			}
		}
		return out.Interface()

	default:
		return value
	}
}

// copyInto deep copies v and returns a reflect.Value assignable to v's type.
// Interface-typed elements holding nil need the zero value of the slot type.
func copyInto(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Interface && v.IsNil() {
		return reflect.Zero(v.Type())
	}
	copied := reflect.ValueOf(deepCopyValue(v.Interface()))
	if !copied.IsValid() {
		return reflect.Zero(v.Type())
	}
	return copied
}

// State is an immutable bag of values that flows through the pipeline.
// Every write returns a new State, so a State can be shared between
// goroutines without locking.
type State struct {
	data map[string]any
}

// NewState creates a new empty State.
func NewState() State {
	return State{data: make(map[string]any)}
}

// Get retrieves a value from the State with compile-time type safety.
// The returned value is a deep copy.
//
// Example:
//
//	question, ok := Get(state, KeyQuestion)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	val, ok := deepCopyValue(value).(T)
	return val, ok
}

// GetRaw looks a value up by string key. Prefer Get.
func (s State) GetRaw(keyName string) (any, bool) {
	value, exists := s.data[keyName]
	if !exists {
		return nil, false
	}
	return deepCopyValue(value), true
}

// With returns a new State with key set to value. The receiver is left
// unchanged.
//
// Example:
//
//	next := With(state, KeyQuestion, "what is the refund window?")
func With[T any](s State, key Key[T], value T) State {
	next := maps.Clone(s.data)
	if next == nil {
		next = make(map[string]any, 1)
	}
	next[key.name] = deepCopyValue(value)
	return State{data: next}
}

// WithRaw is the string-keyed form of With.
func (s State) WithRaw(keyName string, value any) State {
	next := maps.Clone(s.data)
	if next == nil {
		next = make(map[string]any, 1)
	}
	next[keyName] = deepCopyValue(value)
	return State{data: next}
}

// WithMultiple applies several updates with a single clone.
func (s State) WithMultiple(updates map[string]any) State {
	next := maps.Clone(s.data)
	if next == nil {
		next = make(map[string]any, len(updates))
	}
	for k, v := range updates {
		next[k] = deepCopyValue(v)
	}
	return State{data: next}
}

// Keys returns the keys present in the State in sorted order.
func (s State) Keys() []string {
	return slices.Sorted(maps.Keys(s.data))
}

// String returns a string representation of the State for debugging.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.data)
}

// RecordUsage adds model consumption to the running totals in the State.
func (s State) RecordUsage(tokens, calls int64) State {
	currentTokens, _ := Get(s, KeyTokensUsed)
	currentCalls, _ := Get(s, KeyCallsMade)

	return s.WithMultiple(map[string]any{
		KeyTokensUsed.name: currentTokens + tokens,
		KeyCallsMade.name:  currentCalls + calls,
	})
}

// Usage tracks model consumption during one pipeline run.
type Usage struct {
	Tokens int64
	Calls  int64
}

// GetUsage returns the consumption recorded by RecordUsage.
func (s State) GetUsage() Usage {
	tokens, _ := Get(s, KeyTokensUsed)
	calls, _ := Get(s, KeyCallsMade)
	return Usage{Tokens: tokens, Calls: calls}
}
