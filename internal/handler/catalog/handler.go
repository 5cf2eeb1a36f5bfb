package catalog

import (
	"github.com/gin-gonic/gin"

	"github.com/shinedetail/booking-api/internal/service/catalog"
	apperrors "github.com/shinedetail/booking-api/pkg/errors"
	"github.com/shinedetail/booking-api/pkg/httputil"
)

type Handler struct {
	service *catalog.Service
}

func NewHandler(service *catalog.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) ListServices(c *gin.Context) {
	services, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewInternal(err))
		return
	}
	httputil.RespondWithSuccess(c, services)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/services", h.ListServices)
}
