package crm

import (
	"crypto/subtle"
	"net/http"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the CRM webhook and the funnel rule admin surface.
type Handler struct {
	service  *Service
	cfg      config.CRMConfig
	validate *validator.Validator
	log      *logger.Logger
}

// NewHandler creates a CRM handler.
func NewHandler(service *Service, cfg config.CRMConfig, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{service: service, cfg: cfg, validate: validate, log: log}
}

// RegisterWebhook mounts the CRM stage-change webhook.
func (h *Handler) RegisterWebhook(group *gin.RouterGroup) {
	group.POST("/crm", h.statusChange)
}

// RegisterAdminRoutes mounts the funnel rule CRUD.
func (h *Handler) RegisterAdminRoutes(group *gin.RouterGroup) {
	group.GET("/funnel-rules", h.listRules)
	group.POST("/funnel-rules", h.createRule)
	group.DELETE("/funnel-rules/:id", h.deleteRule)
}

// statusChange handles a stage-change notification. The CRM authenticates
// with the shared API token; processing errors still return 200 so the CRM
// does not disable the webhook, mirroring the inbound channel contract.
func (h *Handler) statusChange(c *gin.Context) {
	token := h.cfg.GetCRMAPIToken()
	if token == "" || subtle.ConstantTimeCompare([]byte(c.Query("token")), []byte(token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	var change StatusChange
	if err := c.ShouldBindJSON(&change); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(change); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if err := h.service.HandleStatusChange(c.Request.Context(), change); err != nil {
		h.log.Error("crm status change failed", "error", err, "entity_id", change.EntityID)
	}
	httpkit.OK(c, gin.H{"status": "accepted"})
}

func (h *Handler) listRules(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	items, err := h.service.ListRules(c.Request.Context(), accountID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items})
}

func (h *Handler) createRule(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	var params CreateRuleParams
	if err := c.ShouldBindJSON(&params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(params); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), accountID, params)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, rule)
}

func (h *Handler) deleteRule(c *gin.Context) {
	accountID, ok := httpkit.GetAccountID(c)
	if !ok {
		httpkit.Error(c, http.StatusForbidden, "account scope required", nil)
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid rule id", nil)
		return
	}

	if httpkit.HandleError(c, h.service.DeleteRule(c.Request.Context(), accountID, id)) {
		return
	}
	c.Status(http.StatusNoContent)
}
