package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorKeepsTypedError(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", ErrAttendeeNotFound)

	got := FromError(wrapped)
	assert.Equal(t, "ATTENDEE_NOT_FOUND", got.Code)
	assert.Equal(t, http.StatusNotFound, got.Status)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("connection refused"))
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	assert.EqualError(t, got, "internal server error: connection refused")
}

func TestCloneOverridesMessageOnly(t *testing.T) {
	clone := Clone(ErrQRUnreadable, "unreadable ticket")
	assert.Equal(t, "unreadable ticket", clone.Message)
	assert.Equal(t, ErrQRUnreadable.Code, clone.Code)
	assert.Equal(t, "no attendee identifier found in scanned code", ErrQRUnreadable.Message)
	assert.True(t, errors.Is(Wrap(clone, clone.Code, clone.Status, "x"), clone))
}
