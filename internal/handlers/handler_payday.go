package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stipendly/payday_backend/internal/apperrors"
	portssvc "github.com/stipendly/payday_backend/internal/core/ports/services"
	"github.com/stipendly/payday_backend/internal/dto"
	"github.com/stipendly/payday_backend/internal/middleware"
)

// PaydayHandler exposes the payday stage machine to operators.
type PaydayHandler struct {
	paydayService portssvc.PaydaySvcFacade
}

// NewPaydayHandler creates a new PaydayHandler.
func NewPaydayHandler(ps portssvc.PaydaySvcFacade) *PaydayHandler {
	return &PaydayHandler{paydayService: ps}
}

// registerPaydayRoutes sets up the payday routes on the authenticated group.
func registerPaydayRoutes(rg *gin.RouterGroup, paydayService portssvc.PaydaySvcFacade) {
	h := NewPaydayHandler(paydayService)

	payday := rg.Group("/payday")
	{
		payday.POST("/run", h.Run)
		payday.GET("/current", h.Current)
	}
}

// Run starts (or resumes) the open payday and executes its remaining stages.
// The request blocks until the payday finishes or fails; re-invoking after a
// failure picks up from the last completed stage.
func (h *PaydayHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.GetLoggerFromCtx(ctx)
	if operator, ok := middleware.GetOperatorFromCtx(ctx); ok {
		logger.Info("Payday run requested", slog.String("operator", operator))
	}

	payday, err := h.paydayService.Start(ctx)
	if err != nil {
		logger.Error("Failed to start payday", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to start payday"})
		return
	}

	if err := h.paydayService.Run(ctx, payday); err != nil {
		logger.Error("Payday run failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.RunPaydayResponse{
			Payday: dto.ToPaydayResponse(payday),
			Status: "failed",
		})
		return
	}

	c.JSON(http.StatusOK, dto.RunPaydayResponse{
		Payday: dto.ToPaydayResponse(payday),
		Status: "completed",
	})
}

// Current returns the open payday, if any.
func (h *PaydayHandler) Current(c *gin.Context) {
	payday, err := h.paydayService.Current(c.Request.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "No open payday"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch payday"})
		return
	}
	c.JSON(http.StatusOK, dto.ToPaydayResponse(payday))
}
