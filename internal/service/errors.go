package service

import "errors"

// Domain errors surfaced to handlers, which map them to API error codes.
var (
	ErrExamNotFound      = errors.New("exam not found or not published")
	ErrSessionNotFound   = errors.New("session not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrForbidden         = errors.New("session belongs to another user")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionExpired    = errors.New("session expired")
	ErrQuestionNotInExam = errors.New("question does not belong to this exam")
	ErrSubmitConflict    = errors.New("session was already submitted")
)
