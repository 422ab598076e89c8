package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"threads/internal/apperr"
	"threads/internal/constants"
)

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{name: "validation", err: apperr.Validation("content is required"), wantStatus: http.StatusBadRequest, wantCode: constants.ErrCodeInvalidRequest, wantMessage: "content is required"},
		{name: "credentials", err: apperr.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: constants.ErrCodeInvalidCredentials, wantMessage: "Invalid credentials"},
		{name: "expired", err: fmt.Errorf("verifying: %w", apperr.ErrTokenExpired), wantStatus: http.StatusUnauthorized, wantCode: constants.ErrCodeAuthExpired, wantMessage: "Token has expired"},
		{name: "forbidden", err: apperr.Forbidden("not yours"), wantStatus: http.StatusForbidden, wantCode: constants.ErrCodeForbidden, wantMessage: "not yours"},
		{name: "not_found", err: apperr.NotFound("User not found"), wantStatus: http.StatusNotFound, wantCode: constants.ErrCodeNotFound, wantMessage: "User not found"},
		{name: "conflict", err: apperr.Conflict("User already exists"), wantStatus: http.StatusConflict, wantCode: constants.ErrCodeConflict, wantMessage: "User already exists"},
		{name: "upstream", err: apperr.Upstream("Store unavailable", errors.New("dial tcp")), wantStatus: http.StatusInternalServerError, wantCode: constants.ErrCodeUpstream, wantMessage: "Store unavailable"},
		{name: "internal", err: apperr.Internal(errors.New("disk full")), wantStatus: http.StatusInternalServerError, wantCode: constants.ErrCodeInternal, wantMessage: "An internal error occurred"},
		{name: "unclassified", err: errors.New("sql: connection refused"), wantStatus: http.StatusInternalServerError, wantCode: constants.ErrCodeInternal, wantMessage: "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/chat/sidebar", nil)
			rr := httptest.NewRecorder()

			writeAppError(rr, req, tt.err)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
			}
			if resp.Error.Code != tt.wantCode {
				t.Fatalf("error.code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message != tt.wantMessage {
				t.Fatalf("error.message = %q, want %q", resp.Error.Message, tt.wantMessage)
			}
		})
	}
}
