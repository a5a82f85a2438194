package application

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-ragqa/internal/domain"
	"github.com/ahrav/go-ragqa/internal/ports"
)

// ErrMergeConflict is returned when two parallel units write different
// values under the same state key.
var ErrMergeConflict = errors.New("conflicting writes to state key")

// Pipeline is a sequential execution container that processes executables
// in strict order, where each executable's output becomes the input for
// the next executable in the sequence.
type Pipeline struct {
	id          string
	executables []ports.Executable
	// idSet tracks executable IDs for O(1) duplicate detection.
	idSet map[string]struct{}
	mu    sync.RWMutex
}

var _ ports.Pipeline = (*Pipeline)(nil)

// NewPipeline creates a new sequential execution pipeline with the specified
// identifier. Executables run in the order they were added.
func NewPipeline(id string) *Pipeline {
	return &Pipeline{
		id:          id,
		executables: make([]ports.Executable, 0),
		idSet:       make(map[string]struct{}),
	}
}

// Execute processes all executables in this pipeline sequentially,
// passing the output state from each executable as input to the next.
// Execute checks for cancellation between executables and returns the
// last good state together with the error.
func (p *Pipeline) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	p.mu.RLock()
	executables := make([]ports.Executable, len(p.executables))
	copy(executables, p.executables)
	p.mu.RUnlock()

	currentState := state
	for _, exec := range executables {
		if err := ctx.Err(); err != nil {
			return currentState, err
		}
		newState, err := exec.Execute(ctx, currentState)
		if err != nil {
			return currentState, fmt.Errorf("pipeline %s: execution failed at %s: %w", p.id, exec.ID(), err)
		}
		currentState = newState
	}

	return currentState, nil
}

// ID returns the pipeline's identifier.
func (p *Pipeline) ID() string {
	return p.id
}

// Add appends an executable to the end of this pipeline's execution
// sequence. Add returns an error if the executable is nil or if an
// executable with the same ID already exists in the pipeline.
// Add is safe for concurrent use with Execute.
func (p *Pipeline) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to pipeline")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	execID := exec.ID()
	if _, exists := p.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in pipeline", execID)
	}

	p.executables = append(p.executables, exec)
	p.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the ordered list of executables.
func (p *Pipeline) Executables() []ports.Executable {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ports.Executable, len(p.executables))
	copy(result, p.executables)
	return result
}

// Layer runs independent executables concurrently on the same input state
// and merges their outputs. The evaluation pipeline uses one to run
// validation, answer scoring and relevance judging side by side.
type Layer struct {
	id            string
	executables   []ports.Executable
	idSet         map[string]struct{}
	mergeStrategy ports.MergeStrategy
	// concurrencyLimit defaults to runtime.NumCPU() * 2.
	concurrencyLimit int
	mu               sync.RWMutex
}

// NewLayer creates a new parallel execution layer with the specified
// identifier.
func NewLayer(id string) *Layer {
	return &Layer{
		id:               id,
		executables:      make([]ports.Executable, 0),
		idSet:            make(map[string]struct{}),
		concurrencyLimit: runtime.NumCPU() * 2,
	}
}

// Execute runs all executables concurrently, each receiving the same
// input state. The first failure cancels the others. Successful states
// are merged in the order the executables were added, so the result does
// not depend on scheduling.
func (l *Layer) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	l.mu.RLock()
	executables := make([]ports.Executable, len(l.executables))
	copy(executables, l.executables)
	limit := l.concurrencyLimit
	if limit <= 0 {
		limit = runtime.NumCPU() * 2
	}
	strategy := l.mergeStrategy
	l.mu.RUnlock()

	if len(executables) == 0 {
		return state, nil
	}

	states := make([]domain.State, len(executables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, exec := range executables {
		g.Go(func() error {
			newState, err := exec.Execute(gctx, state)
			if err != nil {
				return fmt.Errorf("executable %s: %w", exec.ID(), err)
			}
			states[i] = newState
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return state, fmt.Errorf("layer %s failed: %w", l.id, err)
	}

	if strategy == nil {
		strategy = KeyUnionMerge{}
	}

	merged, err := strategy.Merge(state, states)
	if err != nil {
		return state, fmt.Errorf("layer %s: merge failed: %w", l.id, err)
	}
	return merged, nil
}

// ID returns the layer's identifier.
func (l *Layer) ID() string {
	return l.id
}

// Add includes an executable in this layer's parallel execution group.
// Add returns an error if the executable is nil or if an executable
// with the same ID already exists in the layer.
func (l *Layer) Add(exec ports.Executable) error {
	if exec == nil {
		return fmt.Errorf("cannot add nil executable to layer")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	execID := exec.ID()
	if _, exists := l.idSet[execID]; exists {
		return fmt.Errorf("executable with ID %s already exists in layer", execID)
	}

	l.executables = append(l.executables, exec)
	l.idSet[execID] = struct{}{}
	return nil
}

// Executables returns a copy of the layer's executables in the order they
// were added.
func (l *Layer) Executables() []ports.Executable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]ports.Executable, len(l.executables))
	copy(result, l.executables)
	return result
}

// SetMergeStrategy replaces the default KeyUnionMerge.
func (l *Layer) SetMergeStrategy(strategy ports.MergeStrategy) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mergeStrategy = strategy
}

// SetConcurrencyLimit caps the number of executables running at once.
// Zero or negative restores the default.
func (l *Layer) SetConcurrencyLimit(limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.concurrencyLimit = limit
}

// KeyUnionMerge applies every key each state added or changed relative to
// the base state. Usage counters are summed. Two states writing different
// values to the same key is an ErrMergeConflict.
type KeyUnionMerge struct{}

var _ ports.MergeStrategy = KeyUnionMerge{}

// Merge implements ports.MergeStrategy.
func (KeyUnionMerge) Merge(base domain.State, states []domain.State) (domain.State, error) {
	if len(states) == 0 {
		return base, nil
	}

	baseUsage := base.GetUsage()
	var extraTokens, extraCalls int64

	updates := make(map[string]any)
	for _, s := range states {
		usage := s.GetUsage()
		extraTokens += usage.Tokens - baseUsage.Tokens
		extraCalls += usage.Calls - baseUsage.Calls

		for _, key := range s.Keys() {
			if key == domain.KeyTokensUsed.Name() || key == domain.KeyCallsMade.Name() {
				continue
			}
			value, _ := s.GetRaw(key)
			if old, ok := base.GetRaw(key); ok && reflect.DeepEqual(old, value) {
				continue
			}
			if prev, seen := updates[key]; seen && !reflect.DeepEqual(prev, value) {
				return base, fmt.Errorf("%w: %s", ErrMergeConflict, key)
			}
			updates[key] = value
		}
	}

	merged := base.WithMultiple(updates)
	if extraTokens != 0 || extraCalls != 0 {
		merged = merged.RecordUsage(extraTokens, extraCalls)
	}
	return merged, nil
}
