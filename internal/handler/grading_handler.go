package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/service"
	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
	"github.com/quizhall/quizhall-api/pkg/response"
)

// GradingHandler exposes manual grading endpoints.
type GradingHandler struct {
	grading *service.GradingService
	scoring *service.ScoringService
	metrics *service.MetricsService
}

// NewGradingHandler constructs handler.
func NewGradingHandler(grading *service.GradingService, scoring *service.ScoringService, metrics *service.MetricsService) *GradingHandler {
	return &GradingHandler{grading: grading, scoring: scoring, metrics: metrics}
}

// EditGrade godoc
// @Summary Edit a manually-graded answer's points
// @Description Revises the score for one answer, recomputes the session total and appends an audit record. Submitting the current value is a no-op.
// @Tags Grading
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.EditGradeRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /grading/sessions/{id}/edits [post]
func (h *GradingHandler) EditGrade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.EditGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.SessionID = c.Param("id")
	result, err := h.grading.EditGrade(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordGradeEdit(result.Changed)
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary List a session's grade edit history
// @Tags Grading
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grading/sessions/{id}/history [get]
func (h *GradingHandler) History(c *gin.Context) {
	records, err := h.grading.HistoryForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Recompute godoc
// @Summary Recompute a session's total score
// @Description Re-derives total_score from the session's answers. Safe to run repeatedly.
// @Tags Grading
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /grading/sessions/{id}/recompute [post]
func (h *GradingHandler) Recompute(c *gin.Context) {
	total, err := h.scoring.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"total_score": total}, nil)
}

// Worklist godoc
// @Summary List sessions awaiting manual grading
// @Tags Grading
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /grading/worklist [get]
func (h *GradingHandler) Worklist(c *gin.Context) {
	items, err := h.grading.Worklist(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
