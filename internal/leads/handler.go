package leads

import (
	"net/http"
	"strconv"

	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the admin surface for leads: listing, inspecting and
// confirming similarity matches.
type Handler struct {
	service  *Service
	validate *validator.Validator
}

// NewHandler creates a leads handler.
func NewHandler(service *Service, validate *validator.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// RegisterRoutes mounts the lead routes on an authenticated group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/leads", h.list)
	group.POST("/leads/:id/confirm-match", h.confirmMatch)
}

func (h *Handler) list(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	method := c.Query("method")

	items, err := h.service.List(c.Request.Context(), accountID, method, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) confirmMatch(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	var params ConfirmMatchParams
	if err := c.ShouldBindJSON(&params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	lead, err := h.service.ConfirmMatch(c.Request.Context(), accountID, leadID, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}
