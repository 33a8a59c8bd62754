package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/miras/smartclub/internal/booking"
	"github.com/miras/smartclub/internal/model"
	"github.com/miras/smartclub/internal/queue"
)

// PaymentHandler receives callbacks from the external payment
// collaborator and moves reservations between PENDING_PAYMENT and
// their settled states.
type PaymentHandler struct {
	Svc     *booking.Service
	Booking *BookingHandler
}

func NewPaymentHandler(svc *booking.Service, bh *BookingHandler) *PaymentHandler {
	if svc == nil || bh == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Svc: svc, Booking: bh}
}

type paymentCallbackReq struct {
	ReservationID uint64 `json:"reservation_id"`
	Status        string `json:"status"` // "succeeded" or "failed"
	PaymentRef    string `json:"payment_ref"`
}

// Callback handles POST /v1/payments/callback.  A succeeded payment
// activates the reservation; a failed one cancels it.  Both directions
// are idempotent so provider retries are safe.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var req paymentCallbackReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ReservationID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_id is required"})
	}
	ctx := c.Request().Context()

	switch req.Status {
	case "succeeded":
		if err := h.Svc.ConfirmPayment(ctx, req.ReservationID, req.PaymentRef); err != nil {
			return bookingError(c, err)
		}
		h.notify(c, queue.EventReservationConfirmed, req.ReservationID)
		return c.JSON(http.StatusOK, echo.Map{"status": model.StatusActive})
	case "failed":
		if err := h.Svc.FailPayment(ctx, req.ReservationID); err != nil {
			return bookingError(c, err)
		}
		h.notify(c, queue.EventReservationCancelled, req.ReservationID)
		return c.JSON(http.StatusOK, echo.Map{"status": model.StatusCancelled})
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be succeeded or failed"})
	}
}

func (h *PaymentHandler) notify(c echo.Context, eventType string, reservationID uint64) {
	r, err := h.Svc.GetReservation(c.Request().Context(), reservationID, 0)
	if err != nil {
		return
	}
	go h.Booking.publishEvent(eventType, *r)
}
