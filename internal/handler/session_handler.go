package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hangulab/topik-backend/internal/middleware"
	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/response"
	"github.com/hangulab/topik-backend/internal/service"
	"github.com/hangulab/topik-backend/internal/validator"
)

// SessionHandler handles the exam taking endpoints: start, autosave,
// submit and review.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Start godoc
// POST /api/v1/exams/:exam_id/sessions
// Starts a new attempt, or returns the caller's IN_PROGRESS session
// for this exam unchanged.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// SaveAnswer godoc
// POST /api/v1/sessions/:session_id/answers
// Upserts one answer and persists the session's timer and resume pointer.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.SaveAnswer(c.Request.Context(), sessionID, claims.UserID, req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// Submit godoc
// POST /api/v1/sessions/:session_id/submit
// Grades objective answers, finalizes the session, and queues essay
// answers for AI review.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// The submit body is optional; an absent timer falls back to the
	// server-tracked value.
	var req model.SubmitSessionRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	session, err := h.sessionService.Submit(c.Request.Context(), sessionID, claims.UserID, req)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetReview godoc
// GET /api/v1/sessions/:session_id/review
// Returns the full result view of the caller's session. Essay answers may
// still be awaiting AI review.
func (h *SessionHandler) GetReview(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	review, err := h.sessionService.GetReview(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"review": review})
}

// failSessionError maps domain errors to API error codes.
func failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
	case errors.Is(err, service.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, service.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotFound)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrQuestionNotInExam):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInExam)
	case errors.Is(err, service.ErrSessionNotActive):
		response.Fail(c, http.StatusBadRequest, response.ErrSessionNotActive)
	case errors.Is(err, service.ErrSessionExpired):
		response.Fail(c, http.StatusBadRequest, response.ErrSessionExpired)
	case errors.Is(err, service.ErrSubmitConflict):
		response.Fail(c, http.StatusConflict, response.ErrSubmitConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
