package booking

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/service/booking"
	"github.com/shinedetail/booking-api/internal/service/distance"
	apperrors "github.com/shinedetail/booking-api/pkg/errors"
	"github.com/shinedetail/booking-api/pkg/httputil"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/token"
)

// Handler exposes the booking transaction over HTTP. Distance resolution
// happens here so the booking service never does network I/O of its own.
type Handler struct {
	service    *booking.Service
	estimator  *distance.Estimator
	tokens     *token.Signer
	fallbackKm decimal.Decimal
	logger     *logger.Logger
}

func NewHandler(service *booking.Service, estimator *distance.Estimator, tokens *token.Signer, fallbackKm float64, log *logger.Logger) *Handler {
	return &Handler{
		service:    service,
		estimator:  estimator,
		tokens:     tokens,
		fallbackKm: decimal.NewFromFloat(fallbackKm),
		logger:     log,
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req model.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	booked, cancelToken, err := h.service.Create(c.Request.Context(), booking.CreateInput{
		SlotID:     req.SlotID,
		ServiceIDs: req.ServiceIDs,
		Customer:   req.Customer,
		DistanceKm: h.resolveDistance(c, req.DistanceKm, req.Customer.Address),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	httputil.RespondWithCreated(c, toResponse(booked, cancelToken))
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid booking ID", err))
		return
	}

	booked, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, toResponse(booked, ""))
}

// CancelBooking requires the capability token issued at creation. The token
// must name the booking in the path; a valid token for another booking is
// rejected.
func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid booking ID", err))
		return
	}

	var req model.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}
	if req.Token == "" {
		httputil.RespondWithError(c, apperrors.NewUnauthorized("cancel token is required", nil))
		return
	}

	tokenBookingID, err := h.tokens.VerifyCancelToken(req.Token)
	if err != nil {
		msg := "invalid cancel token"
		if errors.Is(err, token.ErrExpiredToken) {
			msg = "cancel token has expired"
		}
		httputil.RespondWithError(c, apperrors.NewUnauthorized(msg, err))
		return
	}
	if tokenBookingID != id {
		httputil.RespondWithError(c, apperrors.NewUnauthorized("cancel token does not match booking", nil))
		return
	}

	cancelled, err := h.service.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, toResponse(cancelled, ""))
}

func (h *Handler) Quote(c *gin.Context) {
	var req model.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid request body", err))
		return
	}

	quote, err := h.service.Quote(c.Request.Context(),
		req.ServiceIDs, h.resolveDistance(c, req.DistanceKm, req.Address))
	if err != nil {
		h.respondError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, quote)
}

// resolveDistance prefers a client-supplied distance, then the estimator,
// then the configured fallback. Estimator failures degrade to the fallback
// rather than failing the booking.
func (h *Handler) resolveDistance(c *gin.Context, supplied *float64, address string) decimal.Decimal {
	if supplied != nil {
		return decimal.NewFromFloat(*supplied)
	}
	if address == "" {
		return h.fallbackKm
	}

	km, err := h.estimator.Estimate(c.Request.Context(), address)
	if err != nil {
		h.logger.Warn("distance estimate failed, using fallback",
			"error", err.Error(), "fallback_km", h.fallbackKm.String())
		return h.fallbackKm
	}
	return decimal.NewFromFloat(km)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *booking.ValidationError
	if errors.As(err, &ve) {
		httputil.RespondWithFieldErrors(c, "validation failed", ve.Fields)
		return
	}

	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		httputil.RespondWithError(c, apperrors.NewConflict("slot is no longer available", err))
	case errors.Is(err, booking.ErrNotFound):
		httputil.RespondWithError(c, apperrors.NewNotFound("booking", err))
	case errors.Is(err, booking.ErrAlreadyCancelled):
		httputil.RespondWithError(c, apperrors.NewConflict("booking is already cancelled", err))
	case errors.Is(err, booking.ErrPastBooking):
		httputil.RespondWithError(c, apperrors.NewUnprocessable("booking has already started", err))
	case errors.Is(err, booking.ErrNotCancellable):
		httputil.RespondWithError(c, apperrors.NewUnprocessable("booking cannot be cancelled in its current state", err))
	default:
		httputil.RespondWithError(c, apperrors.NewInternal(err))
	}
}

func toResponse(b *model.Booking, cancelToken string) model.BookingResponse {
	return model.BookingResponse{
		ID:            b.ID,
		Reference:     b.Reference,
		SlotDate:      b.SlotDate.Format(model.DateFormat),
		SlotStartTime: b.SlotStartTime,
		Customer:      b.Customer,
		Services:      b.Services,
		DistanceKm:    b.DistanceKm,
		TravelCost:    b.TravelCost,
		TotalPrice:    b.TotalPrice,
		Status:        b.Status,
		CancelToken:   cancelToken,
		CreatedAt:     b.CreatedAt,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/quotes", h.Quote)

	bookings := r.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}
