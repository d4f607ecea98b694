package handlers

import (
	"errors"
	"net/http"

	"kiln_controller/internal/models"
	"kiln_controller/internal/schedule"
	"kiln_controller/internal/service"

	"github.com/gin-gonic/gin"
)

// profileError maps catalog errors to HTTP codes.
func (h *Handler) profileError(c *gin.Context, logKey string, err error, kv ...any) {
	switch {
	case errors.Is(err, schedule.ErrMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.log.Errorw(logKey, append([]any{"err", err}, kv...)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile catalog unavailable"})
	}
}

// @Summary      List profiles
// @Tags         profiles
// @Produce      json
// @Success      200  {array}   models.StoredSchedule
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/profiles [get]
func (h *Handler) listProfiles(c *gin.Context) {
	list, err := h.services.Profiles.List(c.Request.Context())
	if err != nil {
		h.profileError(c, "profile_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary      Get a profile
// @Description  stored document plus nominal duration and graph points
// @Tags         profiles
// @Produce      json
// @Param        name  path      string  true  "Profile name"
// @Success      200   {object}  models.ProfileDetail
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/profiles/{name} [get]
func (h *Handler) getProfile(c *gin.Context) {
	name := c.Param("name")
	d, err := h.services.Profiles.Get(c.Request.Context(), name)
	if err != nil {
		h.profileError(c, "profile_get_failed", err, "profile", name)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Create or replace a profile
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Param        body  body      models.ScheduleDocument  true  "Schedule document"
// @Success      201   {object}  models.ProfileDetail
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/profiles [post]
// @Security     BearerAuth
func (h *Handler) saveProfile(c *gin.Context) {
	var doc models.ScheduleDocument
	if !h.bindJSON(c, &doc) {
		return
	}
	d, err := h.services.Profiles.Save(c.Request.Context(), doc)
	if err != nil {
		h.profileError(c, "profile_save_failed", err, "profile", doc.Name)
		return
	}
	userID, _ := c.Get(userIDKey)
	h.log.Infow("profile_saved_via_api", "profile", d.Name, "user_id", userID)
	c.JSON(http.StatusCreated, d)
}

// @Summary      Delete a profile
// @Tags         profiles
// @Param        name  path  string  true  "Profile name"
// @Success      204
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/profiles/{name} [delete]
// @Security     BearerAuth
func (h *Handler) deleteProfile(c *gin.Context) {
	name := c.Param("name")
	if err := h.services.Profiles.Delete(c.Request.Context(), name); err != nil {
		h.profileError(c, "profile_delete_failed", err, "profile", name)
		return
	}
	c.Status(http.StatusNoContent)
}
