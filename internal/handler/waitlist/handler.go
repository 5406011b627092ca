package waitlist

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careloop/outreach-api/internal/handler"
	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/service/waitlist"
)

type Handler struct {
	service *waitlist.Service
}

func NewHandler(service *waitlist.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	entries := r.Group("/waitlist")
	{
		entries.POST("", h.CreateEntry)
		entries.GET("", h.ListEntries)
		entries.GET("/stats", h.Stats)
		entries.GET("/:id", h.GetEntry)
		entries.DELETE("/:id", h.RemoveEntry)
		entries.POST("/:id/offer", h.OfferSlot)
		entries.POST("/match", h.MatchSlot)
		entries.POST("/auto-fill", h.AutoFill)
		entries.GET("/notifications/:notificationId", h.GetNotification)
		entries.POST("/notifications/:notificationId/respond", h.Respond)
		entries.POST("/notifications/expire", h.ExpireStale)
	}
}

func (h *Handler) CreateEntry(c *gin.Context) {
	var req model.CreateWaitlistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	entry := &model.WaitlistEntry{
		OrganizationID:    handler.OrgID(c),
		PatientID:         req.PatientID,
		ProviderID:        req.ProviderID,
		AppointmentTypeID: req.AppointmentTypeID,
		LocationID:        req.LocationID,
		PreferredDates:    req.PreferredDates,
		TimeOfDay:         req.TimeOfDay,
		PreferredWeekdays: req.PreferredWeekdays,
		FlexibilityDays:   req.FlexibilityDays,
		Priority:          req.Priority,
		Reason:            req.Reason,
		Notes:             req.Notes,
	}
	if err := h.service.AddEntry(c.Request.Context(), handler.ActorID(c), entry); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) GetEntry(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(c.Request.Context(), handler.OrgID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListEntries(c *gin.Context) {
	var filters model.WaitlistEntryFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	entries, err := h.service.ListEntries(c.Request.Context(), handler.OrgID(c), &filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) RemoveEntry(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.RemoveEntry(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func (h *Handler) MatchSlot(c *gin.Context) {
	var req model.MatchSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	matches, err := h.service.MatchSlot(c.Request.Context(), handler.OrgID(c), &req.Slot, req.MaxMatches)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(matches))
}

func (h *Handler) OfferSlot(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.OfferSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	notification, err := h.service.Offer(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, &req.Slot, req.ExpirationHours, req.Channel)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(notification))
}

func (h *Handler) GetNotification(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "notificationId")
	if !ok {
		return
	}
	notification, err := h.service.GetNotification(c.Request.Context(), handler.OrgID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(notification))
}

func (h *Handler) Respond(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "notificationId")
	if !ok {
		return
	}
	var req model.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	outcome, err := h.service.ResolveResponse(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, req.Accepted, req.Notes)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(outcome))
}

func (h *Handler) AutoFill(c *gin.Context) {
	var req model.AutoFillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	result, err := h.service.AutoFill(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), req.AppointmentID, req.MaxOffers)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ExpireStale(c *gin.Context) {
	orgID := handler.OrgID(c)
	expired, err := h.service.ExpireStale(c.Request.Context(), &orgID, handler.ActorID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"expired": expired}))
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), handler.OrgID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}
