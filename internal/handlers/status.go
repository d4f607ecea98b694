package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary      Oven status
// @Description  runtime, temperature, target, state, heat and totaltime of the current run
// @Tags         oven
// @Produce      json
// @Success      200  {object}  models.OvenStatus
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.log.Errorw("oven_status_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read oven status"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Display settings
// @Description  temperature and time scales, energy price and currency for dashboards
// @Tags         system
// @Produce      json
// @Success      200  {object}  models.UIConfig
// @Router       /api/v1/config [get]
func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Settings.UIConfig(c.Request.Context()))
}
