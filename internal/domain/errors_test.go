package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateError(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		operation string
		err       error
		wantMsg   string
	}{
		{
			name:      "missing question",
			key:       KeyQuestion.Name(),
			operation: "Get",
			err:       ErrKeyNotFound,
			wantMsg:   "state error: operation=Get, key=question, err=key not found",
		},
		{
			name:      "wrapped cause",
			key:       KeyChunks.Name(),
			operation: "With",
			err:       errors.New("chunks are nil"),
			wantMsg:   "state error: operation=With, key=chunks, err=chunks are nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStateError(tt.key, tt.operation, tt.err)

			assert.Equal(t, tt.wantMsg, err.Error(), "Error message mismatch")
			assert.Equal(t, tt.key, err.Key, "Key mismatch")
			assert.Equal(t, tt.operation, err.Operation, "Operation mismatch")
			assert.ErrorIs(t, err, tt.err, "Should unwrap to underlying error")
		})
	}
}

func TestMissingKey(t *testing.T) {
	err := MissingKey(KeyAnswer, "ValidationUnit.Execute")

	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, "answer", err.Key)
	assert.Contains(t, err.Error(), "ValidationUnit.Execute")
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("Unit")
		err.AddError("missing configuration")

		assert.Equal(t, "validation error for Unit: missing configuration", err.Error())
		assert.True(t, err.HasErrors(), "Should have errors")
		assert.Len(t, err.Errors, 1, "Should have one error")
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("Pipeline")
		err.AddError("unknown unit type")
		err.AddError("duplicate unit id")

		assert.Contains(t, err.Error(), "validation errors for Pipeline")
		assert.Len(t, err.Errors, 2, "Should have two errors")
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")

		assert.False(t, err.HasErrors(), "Should not have errors")
		assert.Empty(t, err.Errors, "Errors slice should be empty")
	})
}

func TestErrorWrapping(t *testing.T) {
	baseErr := errors.New("base error")
	stateErr := NewStateError(KeyQuestion.Name(), "Test", baseErr)

	assert.True(t, errors.Is(stateErr, baseErr), "Should match base error with Is")
	assert.Equal(t, baseErr, errors.Unwrap(stateErr), "Should unwrap to base error")
}
