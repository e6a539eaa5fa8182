package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/outreach/internal/api/middleware"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
)

// statusClientClosedRequest is reported when the caller went away mid-run.
const statusClientClosedRequest = 499

// RunService is the part of the orchestrator the HTTP surface drives.
type RunService interface {
	StartStage(ctx context.Context, stage domain.Stage, userID, campaignID string, params domain.StageParams) (*domain.CampaignRunProgress, error)
	GetUserStatus(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error)
	Reset(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error)
}

// RunHandler handles campaign run endpoints.
type RunHandler struct {
	runs RunService
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runs RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// StartRequest is the body of a stage start.
type StartRequest struct {
	CampaignID string `json:"campaign_id" binding:"required"`
	TemplateID string `json:"template_id"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Start returns a handler for POST /api/v1/campaign-runs/<stage>.
func (h *RunHandler) Start(stage domain.Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "Invalid request: " + err.Error(),
				Kind:  string(service.KindValidation),
			})
			return
		}

		progress, err := h.runs.StartStage(c.Request.Context(), stage, middleware.UserID(c), req.CampaignID,
			domain.StageParams{TemplateID: req.TemplateID})
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

// Status handles GET /api/v1/campaign-runs/:campaignId.
func (h *RunHandler) Status(c *gin.Context) {
	progress, err := h.runs.GetUserStatus(c.Request.Context(), middleware.UserID(c), c.Param("campaignId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Reset handles POST /api/v1/campaign-runs/:campaignId/reset.
func (h *RunHandler) Reset(c *gin.Context) {
	progress, err := h.runs.Reset(c.Request.Context(), middleware.UserID(c), c.Param("campaignId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *RunHandler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	log := middleware.GetLogger(c).WithError(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("Campaign run request failed: path=%s", c.FullPath())
	} else {
		log.Warnf("Campaign run request rejected: path=%s, status=%d", c.FullPath(), status)
	}

	resp := ErrorResponse{Error: err.Error(), Kind: string(service.KindOf(err))}
	if status >= http.StatusInternalServerError && resp.Kind == "" {
		resp.Error = "internal error"
	}
	c.JSON(status, resp)
}

// StatusFor maps an orchestrator error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrActiveRunConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
