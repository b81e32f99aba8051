package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowError_Message(t *testing.T) {
	err := NewError(ErrCodeValidation, "bad definition")
	assert.Equal(t, "[VALIDATION_ERROR] bad definition", err.Error())

	withStep := NewErrorf(ErrCodeExecution, "boom %d", 3).WithStep("review")
	assert.Equal(t, "[EXECUTION_ERROR] step review: boom 3", withStep.Error())
}

func TestWorkflowError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewError(ErrCodeStore, "write failed").WithCause(cause)

	require.ErrorIs(t, err, cause)

	var wfErr *WorkflowError
	require.ErrorAs(t, error(err), &wfErr)
	assert.Equal(t, ErrCodeStore, wfErr.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NewError(ErrCodeNotFound, "x")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestValidationResult_ToError(t *testing.T) {
	ok := &ValidationResult{}
	assert.NoError(t, ok.ToError())

	single := &ValidationResult{}
	single.AddError("nodes", ErrCodeMissingStartNode, "no start node")
	assert.Equal(t, ErrCodeMissingStartNode, CodeOf(single.ToError()))

	multi := &ValidationResult{}
	multi.AddError("a", ErrCodeValidation, "one")
	multi.AddError("b", ErrCodeValidation, "two")
	err := multi.ToError()
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
	assert.Contains(t, err.Error(), "2 errors")
}
