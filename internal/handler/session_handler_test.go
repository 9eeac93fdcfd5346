package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/hangulab/topik-backend/internal/response"
	"github.com/hangulab/topik-backend/internal/service"
)

func TestFailSessionErrorStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"exam not found", service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{"question not found", service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
		{"foreign session", service.ErrForbidden, http.StatusForbidden, response.ErrForbidden},
		{"question not in exam", service.ErrQuestionNotInExam, http.StatusBadRequest, response.ErrQuestionNotInExam},
		// Saving or submitting a terminal session is a bad request, not a
		// conflict; only a lost concurrent submit race is a conflict.
		{"session not active", service.ErrSessionNotActive, http.StatusBadRequest, response.ErrSessionNotActive},
		{"session expired", service.ErrSessionExpired, http.StatusBadRequest, response.ErrSessionExpired},
		{"submit race lost", service.ErrSubmitConflict, http.StatusConflict, response.ErrSubmitConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

			failSessionError(c, tc.err)

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			var body response.Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("parse body: %v", err)
			}
			if body.Error == nil || body.Error.Code != tc.code {
				t.Errorf("error = %+v, want code %s", body.Error, tc.code)
			}
		})
	}
}
