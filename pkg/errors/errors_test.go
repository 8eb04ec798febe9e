package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindUnknown, "unknown"},
		{KindInvalidInput, "invalid_input"},
		{KindParse, "parse"},
		{KindReference, "reference"},
		{KindNotFound, "not_found"},
		{KindConflict, "conflict"},
		{KindIndex, "index"},
		{KindStore, "store"},
		{KindTimeout, "timeout"},
		{KindNetwork, "network"},
		{KindInternal, "internal"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "op and message and err",
			err:      &Error{Op: "store.Upsert", Message: "insert failed", Err: fmt.Errorf("disk full")},
			expected: "store.Upsert: insert failed: disk full",
		},
		{
			name:     "op and err",
			err:      &Error{Op: "store.Upsert", Err: fmt.Errorf("disk full")},
			expected: "store.Upsert: disk full",
		},
		{
			name:     "op and message",
			err:      &Error{Op: "store.Upsert", Message: "insert failed"},
			expected: "store.Upsert: insert failed",
		},
		{
			name:     "message only",
			err:      &Error{Message: "insert failed"},
			expected: "insert failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestWrap_PreservesKind(t *testing.T) {
	inner := E(KindParse, "ingest.ParseOrganization", "agency is not valid JSON")
	wrapped := Wrap(Wrap(inner, "datalake.SyncOrganizations"), "cmd.ingest")

	assert.Equal(t, KindParse, GetKind(wrapped))
	assert.True(t, IsRecordError(wrapped))
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestE_InheritsKindFromCause(t *testing.T) {
	err := E("store.Upsert", ErrMissingNaturalKey)
	assert.True(t, IsInvalidInput(err))
	assert.True(t, errors.Is(err, ErrMissingNaturalKey))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(&IndexError{StatusCode: http.StatusNotFound, Type: "index_not_found_exception"}))
	assert.True(t, IsNotFoundError(fmt.Errorf("get index: %w", &IndexError{StatusCode: 404})))
	assert.True(t, IsNotFoundError(ErrRowVanished))
	assert.False(t, IsNotFoundError(&IndexError{StatusCode: http.StatusUnauthorized, Type: "security_exception"}))
	assert.False(t, IsNotFoundError(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", E(KindNetwork, "dial"), true},
		{"timeout", E(KindTimeout, "bulk"), true},
		{"bulk failure", &BulkError{Index: "organizations", Failures: []BulkFailure{{DocumentID: "a"}}}, true},
		{"429", &IndexError{StatusCode: http.StatusTooManyRequests}, true},
		{"503", &IndexError{StatusCode: http.StatusServiceUnavailable}, true},
		{"501", &IndexError{StatusCode: http.StatusNotImplemented}, false},
		{"400", &IndexError{StatusCode: http.StatusBadRequest}, false},
		{"invalid input", ErrMissingNaturalKey, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBulkError_ListsFailingDocuments(t *testing.T) {
	err := &BulkError{
		Index: "organizations",
		Failures: []BulkFailure{
			{DocumentID: "org-1", Status: 400, Type: "mapper_parsing_exception", Reason: "bad field"},
			{DocumentID: "org-2", Status: 429, Type: "es_rejected_execution_exception", Reason: "queue full"},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "org-1")
	assert.Contains(t, msg, "org-2")
	assert.Contains(t, msg, "2 document(s)")

	got, ok := IsBulkError(fmt.Errorf("chunk 3: %w", err))
	require.True(t, ok)
	assert.Len(t, got.Failures, 2)
}
