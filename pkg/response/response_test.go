package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"carepackage/pkg/apperror"

	"github.com/stretchr/testify/assert"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
		wantKind string
	}{
		{"not found", apperror.NotFound("referral 9 not found"), http.StatusNotFound, "referral 9 not found", "NOT_FOUND"},
		{"wrapped forbidden", fmt.Errorf("approve: %w", apperror.Forbidden("nope")), http.StatusForbidden, "approve: nope", "FORBIDDEN"},
		{"invalid state", apperror.InvalidState("referral 1 is Approved"), http.StatusUnprocessableEntity, "referral 1 is Approved", "INVALID_STATE"},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := FromError(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCode, res.StatusCode)
			assert.Equal(t, "error", res.Status)
			assert.Equal(t, tt.wantMsg, res.Error)
			assert.Equal(t, tt.wantKind, res.Kind)
		})
	}
}

func TestPaged(t *testing.T) {
	res := Paged([]string{"a"}, 11, 2, 10)
	page, ok := res.Data.(Page)
	assert.True(t, ok)
	assert.EqualValues(t, 11, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
