package gia_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/gia-client/pkg/gia"
)

func TestParseRemoteError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantDetails int
	}{
		{
			name:        "message field",
			status:      http.StatusBadRequest,
			body:        `{"code": 400, "message": "Invalid objectType", "details": [{"field": "type"}]}`,
			wantMessage: "Invalid objectType",
			wantDetails: 1,
		},
		{
			name:        "error field",
			status:      http.StatusForbidden,
			body:        `{"error": "insufficient_scope"}`,
			wantMessage: "insufficient_scope",
		},
		{
			name:        "json without message",
			status:      http.StatusConflict,
			body:        `{"code": 409}`,
			wantMessage: `{"code": 409}`,
		},
		{
			name:        "plain text",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable\n",
			wantMessage: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			remoteErr := gia.ParseRemoteError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.status, remoteErr.StatusCode)
			assert.Equal(t, tt.wantMessage, remoteErr.Message)
			assert.Len(t, remoteErr.Details, tt.wantDetails)
		})
	}
}

func TestRemoteError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Invalid objectType (HTTP 400)",
		(&gia.RemoteError{StatusCode: 400, Message: "Invalid objectType"}).Error())
	assert.Equal(t, "Not Found (HTTP 404)", (&gia.RemoteError{StatusCode: 404}).Error())
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, gia.IsNotFound(fmt.Errorf("getting app: %w", &gia.RemoteError{StatusCode: 404})))
	assert.True(t, gia.IsNotFound(fmt.Errorf("wrapped: %w", gia.ErrObjectTypeNotFound)))
	assert.False(t, gia.IsNotFound(&gia.RemoteError{StatusCode: 500}))
	assert.False(t, gia.IsNotFound(nil))
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	conflict := &gia.ConflictError{Reason: "name is ambiguous", Candidates: []string{"a1", "a2"}}
	assert.Equal(t, "conflict: name is ambiguous (candidates: a1, a2)", conflict.Error())
	assert.True(t, gia.IsConflict(fmt.Errorf("planning: %w", conflict)))

	cancelled := &gia.CancelledError{Err: context.Canceled}
	assert.True(t, gia.IsCancelled(cancelled))
	require.ErrorIs(t, cancelled, context.Canceled)

	validation := &gia.ValidationError{Field: "name", Reason: "is required"}
	assert.Equal(t, "invalid descriptor: name is required", validation.Error())

	auth := &gia.AuthError{Message: "token rejected", StatusCode: 401}
	assert.Equal(t, "authentication failed: token rejected (HTTP 401)", auth.Error())

	protocol := &gia.ProtocolError{Path: "/x", Reason: "bad page", Err: errors.New("eof")} //nolint:err113
	assert.Equal(t, "protocol error on /x: bad page: eof", protocol.Error())
}

func TestPartialProgressError(t *testing.T) {
	t.Parallel()

	cause := &gia.RemoteError{StatusCode: 400, Message: "Invalid objectType"}
	err := &gia.PartialProgressError{
		Applied: []gia.Operation{{Kind: gia.OperationUpdateApplication, ApplicationID: "app-1"}},
		Failed:  gia.Operation{Kind: gia.OperationCreateObjectType, ApplicationID: "app-1", ObjectTypeID: "roles"},
		NotAttempted: []gia.Operation{
			{Kind: gia.OperationUpdateObjectType, ApplicationID: "app-1", ObjectTypeID: "users"},
		},
		Err: cause,
	}

	assert.Equal(t,
		"CreateObjectType(roles) failed after 1 of 3 operations applied: Invalid objectType (HTTP 400)",
		err.Error())

	remoteErr := &gia.RemoteError{}
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 400, remoteErr.StatusCode)
}
