package recall

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/careloop/outreach-api/internal/handler"
	"github.com/careloop/outreach-api/internal/model"
	"github.com/careloop/outreach-api/internal/service/recall"
)

type Handler struct {
	service *recall.Service
}

func NewHandler(service *recall.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	recalls := r.Group("/recall")
	{
		recalls.POST("/campaigns", h.CreateCampaign)
		recalls.GET("/campaigns", h.ListCampaigns)
		recalls.GET("/campaigns/:id", h.GetCampaign)
		recalls.PUT("/campaigns/:id", h.UpdateCampaign)
		recalls.POST("/campaigns/:id/identify", h.Identify)
		recalls.POST("/campaigns/:id/outreach", h.ProcessOutreach)

		recalls.POST("/patients/:id/contacts", h.RecordContact)
		recalls.POST("/patients/:id/response", h.RecordResponse)
		recalls.POST("/patients/:id/schedule", h.Schedule)

		recalls.GET("/dashboard", h.Dashboard)
		recalls.GET("/history/:patientId", h.PatientHistory)
	}
}

func (h *Handler) CreateCampaign(c *gin.Context) {
	var req model.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	campaign := &model.RecallCampaign{
		OrganizationID: handler.OrgID(c),
		Name:           req.Name,
		Description:    req.Description,
		RecallType:     req.RecallType,
		Criteria:       req.Criteria,
		Templates:      req.Templates,
		FrequencyDays:  req.FrequencyDays,
		MaxAttempts:    req.MaxAttempts,
		Active:         req.Active,
		AutoIdentify:   req.AutoIdentify,
	}
	if err := h.service.CreateCampaign(c.Request.Context(), handler.ActorID(c), campaign); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(campaign))
}

func (h *Handler) GetCampaign(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	campaign, err := h.service.GetCampaign(c.Request.Context(), handler.OrgID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(campaign))
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	campaigns, err := h.service.ListCampaigns(c.Request.Context(), handler.OrgID(c), activeOnly)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(campaigns))
}

func (h *Handler) UpdateCampaign(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	campaign, err := h.service.UpdateCampaign(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(campaign))
}

func (h *Handler) Identify(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Identify(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) ProcessOutreach(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	result, err := h.service.ProcessOutreach(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, limit)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) RecordContact(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.RecordContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	contact, err := h.service.RecordContact(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(contact))
}

func (h *Handler) RecordResponse(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.RecordResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	rp, err := h.service.RecordResponse(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rp))
}

func (h *Handler) Schedule(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.ScheduleRecallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}
	rp, err := h.service.ScheduleFromRecall(c.Request.Context(), handler.OrgID(c), handler.ActorID(c), id, req.AppointmentID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rp))
}

func (h *Handler) Dashboard(c *gin.Context) {
	dashboard, err := h.service.Dashboard(c.Request.Context(), handler.OrgID(c))
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(dashboard))
}

func (h *Handler) PatientHistory(c *gin.Context) {
	patientID, ok := handler.UUIDParam(c, "patientId")
	if !ok {
		return
	}
	history, err := h.service.PatientHistory(c.Request.Context(), handler.OrgID(c), patientID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(history))
}
