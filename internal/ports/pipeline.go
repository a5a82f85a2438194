package ports

import (
	"context"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// Executable is anything that can run as a step of a Pipeline.
type Executable interface {
	// Execute transforms state. The input state is immutable and may be
	// shared with other goroutines; use domain.With to derive a new one.
	Execute(ctx context.Context, state domain.State) (domain.State, error)

	// ID returns an identifier unique within the containing pipeline.
	ID() string
}

// Pipeline runs executables in order, feeding each one's output state to
// the next.
type Pipeline interface {
	Executable

	// Add appends an executable. It fails on nil or duplicate IDs.
	Add(exec Executable) error

	// Executables returns the ordered steps. Callers must not modify the
	// returned slice.
	Executables() []Executable
}
