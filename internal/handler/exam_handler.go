package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hangulab/topik-backend/internal/middleware"
	"github.com/hangulab/topik-backend/internal/model"
	"github.com/hangulab/topik-backend/internal/response"
	"github.com/hangulab/topik-backend/internal/service"
)

// ExamHandler handles the published exam catalog endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// List godoc
// GET /api/v1/exams?topik_level=TOPIK_II&year=2024&section=READING&section=WRITING
// Returns published exams with the caller's attempt overlay.
func (h *ExamHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	filters, ok := parseExamFilters(c)
	if !ok {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	exams, err := h.examService.ListPublished(c.Request.Context(), claims.UserID, filters)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetDetail godoc
// GET /api/v1/exams/:exam_id
// Returns the full exam tree with answer keys stripped, plus the caller's
// resumable session when one exists.
func (h *ExamHandler) GetDetail(c *gin.Context) {
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

	detail, err := h.examService.GetDetail(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		if errors.Is(err, service.ErrExamNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrExamNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

func parseExamFilters(c *gin.Context) (model.ExamListFilters, bool) {
	var filters model.ExamListFilters

	if raw := c.Query("topik_level"); raw != "" {
		level := model.TopikLevel(raw)
		if level != model.TopikLevelI && level != model.TopikLevelII {
			return filters, false
		}
		filters.TopikLevel = &level
	}

	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 1997 || year > 2100 {
			return filters, false
		}
		filters.Year = &year
	}

	for _, raw := range c.QueryArray("section") {
		st := model.SectionType(raw)
		switch st {
		case model.SectionTypeListening, model.SectionTypeReading, model.SectionTypeWriting:
			filters.SectionTypes = append(filters.SectionTypes, st)
		default:
			return filters, false
		}
	}

	return filters, true
}
