package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/payment"
)

// Payments is implemented by *payment.Service.
type Payments interface {
	Initiate(ctx context.Context, id uint64) (payment.Intent, error)
	Refund(ctx context.Context, id uint64, amountCents int64) (*model.Reservation, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// maxWebhookBytes bounds the body read from the gateway.
const maxWebhookBytes = 64 << 10

// PaymentHandler serves payment initiation, staff refunds and the gateway
// webhook. Ownership of a reservation is checked through the embedded
// reservation handler.
type PaymentHandler struct {
	res      *ReservationHandler
	payments Payments
	log      *logrus.Logger
}

func NewPaymentHandler(res *ReservationHandler, payments Payments, log *logrus.Logger) *PaymentHandler {
	if res == nil || payments == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PaymentHandler{res: res, payments: payments, log: log}
}

// Initiate handles POST /v1/reservations/:id/payment. The client secret
// in the response is handed to the payment form.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	res, done, err := h.res.owned(c)
	if done {
		return err
	}
	intent, err := h.payments.Initiate(c.Request().Context(), res.ID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"intent_id":      intent.ID,
		"client_secret":  intent.ClientSecret,
		"amount_cents":   intent.AmountCents,
		"currency":       intent.Currency,
		"status":         intent.Status,
	})
}

type refundRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"min=0"`
}

// Refund handles POST /v1/reservations/:id/refund (staff). An empty body
// or amount_cents of 0 refunds the full amount.
func (h *PaymentHandler) Refund(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body refundRequest
	if c.Request().ContentLength != 0 {
		if ok, err := bindAndValidate(c, &body); !ok {
			return err
		}
	}
	res, err := h.payments.Refund(c.Request().Context(), id, body.AmountCents)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Webhook handles POST /v1/payments/webhook. The raw body is needed for
// signature verification, so it is read before anything else touches it.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	sig := c.Request().Header.Get("Stripe-Signature")
	if err := h.payments.HandleWebhook(c.Request().Context(), payload, sig); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
