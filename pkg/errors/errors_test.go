package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinLink/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"internal", errors.CodeInternal, "unexpected failure"},
		{"concept store format", errors.ErrCodeConceptStoreFormat, "missing key name_to_concepts"},
		{"invalid param", errors.CodeInvalidParam, "text must not be empty"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ae := errors.New(tc.code, tc.message)
			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.NotEmpty(t, ae.Stack)
		})
	}
}

func TestNewf_FormatsMessage(t *testing.T) {
	ae := errors.Newf(errors.ErrCodeDimensionMismatch, "expected %d, got %d", 3, 4)
	assert.Equal(t, "expected 3, got 4", ae.Message)
}

func TestWrap_NilErrReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, errors.CodeInternal, "ignored"))
}

func TestWrap_CauseChainIsPreserved(t *testing.T) {
	root := stderrors.New("disk full")
	ae := errors.Wrap(root, errors.ErrCodeConceptStoreIO, "write concept store")

	require.NotNil(t, ae)
	assert.True(t, stderrors.Is(ae, root))
	assert.Equal(t, root, ae.Unwrap())
}

func TestWrap_UnknownCodePreservesOriginal(t *testing.T) {
	inner := errors.New(errors.ErrCodeVocabularyFormat, "bad header")
	outer := errors.Wrap(inner, errors.CodeUnknown, "load vocabulary")
	assert.Equal(t, errors.ErrCodeVocabularyFormat, outer.Code)
}

func TestError_Format(t *testing.T) {
	ae := errors.New(errors.ErrCodeConceptStoreFormat, "missing key")
	assert.Equal(t, "[CLN_001] missing key", ae.Error())

	withDetail := ae.WithDetail("name_status")
	assert.Equal(t, "[CLN_001] missing key: name_status", withDetail.Error())

	withCause := withDetail.WithCause(fmt.Errorf("eof"))
	assert.Equal(t, "[CLN_001] missing key: name_status | cause: eof", withCause.Error())
}

func TestWithDetail_DoesNotMutateReceiver(t *testing.T) {
	ae := errors.NotFound("concept")
	clone := ae.WithDetail("cui=C0001")
	assert.Empty(t, ae.Detail)
	assert.Equal(t, "cui=C0001", clone.Detail)

	var nilErr *errors.AppError
	assert.Nil(t, nilErr.WithDetail("x"))
	assert.Nil(t, nilErr.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain inspection
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_TraversesChain(t *testing.T) {
	inner := errors.New(errors.ErrCodeVectorBlockFormat, "bad magic")
	wrapped := fmt.Errorf("open vocab: %w", errors.Wrap(inner, errors.ErrCodeVocabularyIO, "load"))

	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeVocabularyIO))
	assert.True(t, errors.IsCode(wrapped, errors.ErrCodeVectorBlockFormat))
	assert.False(t, errors.IsCode(wrapped, errors.CodeNotFound))
	assert.True(t, errors.IsFormatError(wrapped))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(errors.NotFound("x")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, errors.IsNotFound(fmt.Errorf("ctx: %w", errors.NotFound("cui"))))
	assert.False(t, errors.IsNotFound(errors.Internal("boom")))
}

func TestFactories(t *testing.T) {
	assert.Equal(t, errors.CodeInvalidParam, errors.InvalidParam("x").Code)
	assert.Equal(t, errors.CodeInternal, errors.Internal("x").Code)
	assert.Equal(t, errors.ErrCodeVocabularyFormat, errors.FormatError(errors.ErrCodeVocabularyFormat, "x").Code)
}

//Personal.AI order the ending
