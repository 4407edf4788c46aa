package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/formation-api/internal/service"
	"github.com/noah-isme/formation-api/pkg/response"
)

// AdminHandler exposes operational endpoints: the Prometheus scrape target
// and a manual trigger for the reconciliation job.
type AdminHandler struct {
	reconciler *service.ReconcilerService
	metrics    *service.MetricsService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(reconciler *service.ReconcilerService, metrics *service.MetricsService) *AdminHandler {
	return &AdminHandler{reconciler: reconciler, metrics: metrics}
}

// Reconcile godoc
// @Summary Run the status reconciliation job now
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/reconcile [post]
func (h *AdminHandler) Reconcile(c *gin.Context) {
	result, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Metrics serves the Prometheus scrape endpoint.
func (h *AdminHandler) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
