package slot

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/service/slots"
	apperrors "github.com/shinedetail/booking-api/pkg/errors"
	"github.com/shinedetail/booking-api/pkg/httputil"
)

type Handler struct {
	service *slots.Service
}

func NewHandler(service *slots.Service) *Handler {
	return &Handler{service: service}
}

// ListAvailable returns open slots from a date onwards. Defaults to today
// when `from` is absent.
func (h *Handler) ListAvailable(c *gin.Context) {
	from := time.Now()
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(model.DateFormat, raw)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid from date, expected YYYY-MM-DD", err))
			return
		}
		from = parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid limit", err))
			return
		}
		limit = parsed
	}

	available, err := h.service.ListAvailable(c.Request.Context(), from, limit)
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewInternal(err))
		return
	}
	httputil.RespondWithSuccess(c, available)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/slots", h.ListAvailable)
}
