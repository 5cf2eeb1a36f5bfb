package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinedetail/booking-api/internal/service/booking"
	"github.com/shinedetail/booking-api/internal/service/distance"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/token"
)

var testLogger = logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

func testHandler(estimator *distance.Estimator) *Handler {
	return NewHandler(nil, estimator, token.NewSigner("test-secret", time.Hour), 30, testLogger)
}

func recordError(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	testHandler(nil).respondError(c, err)
	return w
}

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{booking.ErrSlotTaken, http.StatusConflict},
		{booking.ErrNotFound, http.StatusNotFound},
		{booking.ErrAlreadyCancelled, http.StatusConflict},
		{booking.ErrPastBooking, http.StatusUnprocessableEntity},
		{booking.ErrNotCancellable, http.StatusUnprocessableEntity},
		{booking.ErrPersistence, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := recordError(t, tc.err)
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)
	}
}

func TestRespondErrorValidationFields(t *testing.T) {
	w := recordError(t, &booking.ValidationError{Fields: map[string]string{
		"customer.email": "invalid email format",
		"service_ids":    "at least one service is required",
	}})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Fields map[string]string `json:"fields"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Len(t, body.Error.Fields, 2)
	assert.Equal(t, "invalid email format", body.Error.Fields["customer.email"])
}

func cancelRequest(t *testing.T, id string, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := testHandler(nil)
	r.POST("/bookings/:id/cancel", h.CancelBooking)

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings/"+id+"/cancel", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCancelRejectsBadID(t *testing.T) {
	w := cancelRequest(t, "not-a-uuid", map[string]string{"token": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelRequiresToken(t *testing.T) {
	w := cancelRequest(t, uuid.New().String(), map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCancelRejectsGarbageToken(t *testing.T) {
	w := cancelRequest(t, uuid.New().String(), map[string]string{"token": "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCancelRejectsTokenForOtherBooking(t *testing.T) {
	signer := token.NewSigner("test-secret", time.Hour)
	otherToken, err := signer.GenerateCancelToken(uuid.New())
	require.NoError(t, err)

	w := cancelRequest(t, uuid.New().String(), map[string]string{"token": otherToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResolveDistancePrefersClientValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	supplied := 12.5
	got := testHandler(nil).resolveDistance(c, &supplied, "12 Harbour St")
	assert.True(t, decimal.NewFromFloat(12.5).Equal(got))
}

func TestResolveDistanceUsesEstimator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"distance_km": 18.2}`)
	}))
	defer srv.Close()

	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	h := testHandler(distance.NewEstimator(srv.URL, time.Second))
	got := h.resolveDistance(c, nil, "12 Harbour St")
	assert.True(t, decimal.NewFromFloat(18.2).Equal(got))
}

func TestResolveDistanceFallsBack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	// Unreachable estimator degrades to the configured fallback.
	h := testHandler(distance.NewEstimator("http://127.0.0.1:1", 50*time.Millisecond))
	got := h.resolveDistance(c, nil, "12 Harbour St")
	assert.True(t, decimal.NewFromInt(30).Equal(got))

	// No address at all skips the estimator entirely.
	got = testHandler(nil).resolveDistance(c, nil, "")
	assert.True(t, decimal.NewFromInt(30).Equal(got))
}
