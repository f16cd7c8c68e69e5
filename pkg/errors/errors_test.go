package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataTable(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
		CodeUnauthorized:  {HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required"},
		CodeForbidden:     {HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
		CodeNotFound:      {HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
		CodeConflict:      {HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected"},
		CodeStateConflict: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
		CodeIdempotency:   {HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true},
		CodeRateLimit:     {HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", Retryable: true},
		CodeInternal:      {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, m := range want {
		assert.Equal(t, m, MetadataFor(code), "code %s", code)
	}
	assert.Equal(t, want[CodeInternal], MetadataFor("TEAPOT"))
}

func TestWrapKeepsCauseAndDetails(t *testing.T) {
	lockTimeout := stdErrors.New("lock timeout")
	err := Wrap(CodeDependency, lockTimeout, "lock product rows").
		WithDetails(map[string]any{"products": 3})

	require.ErrorIs(t, err, lockTimeout)
	assert.Equal(t, CodeDependency, err.Code())
	assert.Equal(t, "lock product rows", err.Message())
	assert.Equal(t, map[string]any{"products": 3}, err.Details())
	assert.Equal(t, "DEPENDENCY_ERROR: lock product rows", err.Error())

	plain := New(CodeValidation, "phone required")
	assert.Nil(t, plain.Details())
	assert.Empty(t, plain.Reason())
}

func TestAsFindsTypedErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("cancel order: %w", New(CodeForbidden, "not your order"))
	typed := As(err)
	require.NotNil(t, typed)
	assert.Equal(t, CodeForbidden, typed.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestReasonLookup(t *testing.T) {
	stock := Newf(CodeConflict, ReasonInsufficientStock, "%s has %d left", "croissant", 2)
	assert.Equal(t, "croissant has 2 left", stock.Message())

	outer := Wrap(CodeDependency, fmt.Errorf("commit: %w", stock), "checkout")
	assert.True(t, Is(outer, ReasonInsufficientStock))
	assert.False(t, Is(outer, ReasonPriceMismatch))
	assert.Equal(t, ReasonInsufficientStock, ReasonOf(outer))

	tagged := New(CodeConflict, "price changed").WithReason(ReasonPriceMismatch)
	assert.True(t, Is(fmt.Errorf("line 2: %w", tagged), ReasonPriceMismatch))

	assert.False(t, Is(stdErrors.New("plain"), ReasonPriceMismatch))
	assert.Empty(t, ReasonOf(stdErrors.New("plain")))
}
