package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
	}{
		{"config code", ErrCodeConfigInvalid, CategoryConfig},
		{"storage code", ErrCodeIndexCorrupt, CategoryStorage},
		{"service code", ErrCodeEmbeddingFailed, CategoryService},
		{"validation code", ErrCodeQueryEmpty, CategoryValidation},
		{"internal code", ErrCodeSearchFailed, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
		})
	}
}

func TestNew_RetryableOnlyForTransientServiceCodes(t *testing.T) {
	assert.True(t, New(ErrCodeServiceTimeout, "slow", nil).Retryable)
	assert.True(t, New(ErrCodeServiceUnavailable, "down", nil).Retryable)
	assert.False(t, New(ErrCodeQueryEmpty, "empty", nil).Retryable)
	assert.False(t, New(ErrCodeIndexCorrupt, "bad", nil).Retryable)
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeServiceUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, "connection refused", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	a := New(ErrCodeQueryEmpty, "query required", nil)
	b := New(ErrCodeQueryEmpty, "different message", nil)
	c := New(ErrCodeInternal, "query required", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestIs_ThroughWrapping(t *testing.T) {
	inner := New(ErrCodeDocumentMissing, "no such document", nil)
	outer := fmt.Errorf("fetching snapshot: %w", inner)

	assert.True(t, stderrors.Is(outer, New(ErrCodeDocumentMissing, "", nil)))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeRerankFailed, "rerank failed", nil).
		WithDetail("endpoint", "http://localhost:8081").
		WithDetail("batch_size", "8").
		WithSuggestion("check that the reranker service is running")

	assert.Equal(t, "http://localhost:8081", err.Details["endpoint"])
	assert.Equal(t, "8", err.Details["batch_size"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestIsValidation(t *testing.T) {
	assert.True(t, IsValidation(New(ErrCodeQuestionEmpty, "question required", nil)))
	assert.False(t, IsValidation(New(ErrCodeInternal, "boom", nil)))
	assert.False(t, IsValidation(stderrors.New("plain")))
}

func TestError_FormatsCodeAndMessage(t *testing.T) {
	err := New(ErrCodeInvalidFilter, "year_min after year_max", nil)
	assert.Equal(t, "[ERR_404_INVALID_FILTER] year_min after year_max", err.Error())
}
