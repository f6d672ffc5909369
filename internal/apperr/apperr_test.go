package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(ExcludedContentLeaked, "generator included excluded artists", "The Beatles - Help!", "Beatles Tribute - Yesterday")
	assert.Equal(t, "generator included excluded artists: The Beatles - Help!, Beatles Tribute - Yesterday", err.Error())

	wrapped := Wrap(GenerationUnavailable, errors.New("connection refused"), "call %s", "llama3")
	assert.Equal(t, "call llama3: connection refused", wrapped.Error())
}

func TestKindThroughWrapping(t *testing.T) {
	limited := &Error{Kind: CatalogRateLimited, RetryAfter: 35 * time.Second}
	failure := Wrap(MaterializationFailure, limited, "add batch 2")
	outer := fmt.Errorf("generate: %w", failure)

	assert.Equal(t, MaterializationFailure, KindOf(outer))
	assert.True(t, Is(outer, MaterializationFailure))
	assert.True(t, Is(outer, CatalogRateLimited))
	assert.False(t, Is(outer, NotFound))
	assert.Equal(t, 35*time.Second, RetryAfter(outer))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Duplicate, http.StatusConflict},
		{NotFound, http.StatusNotFound},
		{CatalogRateLimited, http.StatusTooManyRequests},
		{ExcludedContentLeaked, http.StatusUnprocessableEntity},
		{GenerationUnavailable, http.StatusBadGateway},
		{ConstraintViolation, http.StatusBadRequest},
		{Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Status())
		})
	}
}
