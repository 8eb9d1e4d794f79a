package channels

import (
	"net/http"

	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the admin CRUD surface for channel instances.
type Handler struct {
	service  *Service
	validate *validator.Validator
}

// NewHandler creates a channels handler.
func NewHandler(service *Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// RegisterRoutes mounts the admin routes. The group is expected to carry the
// auth middleware already.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/channels", h.list)
	group.POST("/channels", h.create)
	group.GET("/channels/:id", h.get)
	group.PUT("/channels/:id", h.update)
	group.DELETE("/channels/:id", h.deactivate)
}

func (h *Handler) list(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	items, err := h.service.List(c.Request.Context(), accountID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) create(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	var params CreateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	inst, err := h.service.Create(c.Request.Context(), accountID, params)
	if httpkit.HandleError(c, err) {
		return
	}

	// The webhook secret is returned exactly once, on creation.
	httpkit.JSON(c, http.StatusCreated, gin.H{
		"instance":      inst,
		"webhookSecret": inst.WebhookSecret,
	})
}

func (h *Handler) get(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid channel id", nil)
		return
	}

	inst, err := h.service.Get(c.Request.Context(), accountID, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, inst)
}

func (h *Handler) update(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid channel id", nil)
		return
	}

	var params UpdateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	inst, err := h.service.Update(c.Request.Context(), accountID, id, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, inst)
}

func (h *Handler) deactivate(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid channel id", nil)
		return
	}

	if httpkit.HandleError(c, h.service.Deactivate(c.Request.Context(), accountID, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}
