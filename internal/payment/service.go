package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
)

// Store is the reservation persistence payments need.
type Store interface {
	FindByID(ctx context.Context, id uint64) (*model.Reservation, error)
	FindByPaymentRef(ctx context.Context, ref string) (*model.Reservation, error)
	SetPayment(ctx context.Context, id uint64, status model.PaymentStatus, ref *string) (*model.Reservation, error)
}

// Confirmer confirms a pending reservation once it is paid.
type Confirmer interface {
	Confirm(ctx context.Context, id uint64) (*model.Reservation, error)
}

// Service starts payments, settles them from gateway callbacks and
// issues refunds.
type Service struct {
	store     Store
	confirmer Confirmer
	gateway   Gateway
	verifier  WebhookVerifier
	currency  string
	logger    *logrus.Logger
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store     Store
	Confirmer Confirmer
	Gateway   Gateway
	Verifier  WebhookVerifier
	Currency  string
	Logger    *logrus.Logger
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Currency == "" {
		d.Currency = "usd"
	}
	return &Service{
		store:     d.Store,
		confirmer: d.Confirmer,
		gateway:   d.Gateway,
		verifier:  d.Verifier,
		currency:  d.Currency,
		logger:    d.Logger,
	}
}

// Initiate creates a gateway intent for the reservation's final amount
// and stores its ID as the payment reference. Only PENDING, unpaid
// reservations can be paid. Repeating the call for the same amount
// returns the same intent.
func (s *Service) Initiate(ctx context.Context, id uint64) (Intent, error) {
	const op = "initiate payment"
	res, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Intent{}, service.FromStore(op, "reservation", err)
	}
	if res.Status != model.StatusPending {
		return Intent{}, &service.Error{
			Kind: service.KindInvalidTransition, Op: op, From: res.Status, To: model.StatusConfirmed,
			Msg: fmt.Sprintf("payment can only be taken for a pending reservation, status is %s", res.Status),
		}
	}
	if res.PaymentStatus != model.PaymentUnpaid {
		return Intent{}, &service.Error{Kind: service.KindConflict, Op: op, Msg: "reservation is already paid"}
	}
	if res.FinalAmountCents <= 0 {
		return Intent{}, &service.Error{Kind: service.KindValidation, Op: op, Msg: "reservation has nothing to pay"}
	}
	intent, err := s.gateway.CreateIntent(ctx, IntentRequest{
		AmountCents:    res.FinalAmountCents,
		Currency:       s.currency,
		IdempotencyKey: fmt.Sprintf("reservation-%d-%d", res.ID, res.FinalAmountCents),
		Metadata: map[string]string{
			"reservation_id": strconv.FormatUint(res.ID, 10),
			"guest_id":       strconv.FormatUint(res.GuestID, 10),
		},
	})
	if err != nil {
		return Intent{}, service.GatewayError(op, err)
	}
	if _, err := s.store.SetPayment(ctx, res.ID, model.PaymentUnpaid, &intent.ID); err != nil {
		return Intent{}, service.FromStore(op, "reservation", err)
	}
	s.logger.WithFields(logrus.Fields{
		"reservation_id": res.ID,
		"intent_id":      intent.ID,
		"amount_cents":   res.FinalAmountCents,
	}).Info("payment initiated")
	return intent, nil
}

// MarkPaid settles the reservation carrying gatewayRef: it is marked
// PAID and, if still PENDING, confirmed. Repeated calls are harmless.
// A payment that lands after the reservation was cancelled is refunded.
func (s *Service) MarkPaid(ctx context.Context, gatewayRef string) (*model.Reservation, error) {
	const op = "mark paid"
	res, err := s.store.FindByPaymentRef(ctx, gatewayRef)
	if err != nil {
		return nil, service.FromStore(op, "payment", err)
	}
	log := s.logger.WithFields(logrus.Fields{"reservation_id": res.ID, "intent_id": gatewayRef})

	if res.Status == model.StatusCancelled {
		return s.refundLate(ctx, op, res, gatewayRef, log)
	}

	if res.PaymentStatus == model.PaymentUnpaid {
		res, err = s.store.SetPayment(ctx, res.ID, model.PaymentPaid, nil)
		if err != nil {
			return nil, service.FromStore(op, "reservation", err)
		}
		log.Info("payment captured")
	}
	if res.Status == model.StatusPending {
		confirmed, err := s.confirmer.Confirm(ctx, res.ID)
		switch {
		case err == nil:
			return confirmed, nil
		case errors.Is(err, service.ErrInvalidTransition):
			// Another delivery confirmed it first, or a cancellation
			// committed after the payment was recorded.
			latest, err := s.reload(ctx, op, res.ID)
			if err != nil {
				return nil, err
			}
			if latest.Status == model.StatusCancelled {
				return s.refundLate(ctx, op, latest, gatewayRef, log)
			}
			return latest, nil
		default:
			return nil, err
		}
	}
	return res, nil
}

// refundLate refunds a payment captured for a reservation that is
// already cancelled.
func (s *Service) refundLate(ctx context.Context, op string, res *model.Reservation, gatewayRef string, log logrus.FieldLogger) (*model.Reservation, error) {
	if res.PaymentStatus == model.PaymentRefunded {
		return res, nil
	}
	log.Warn("payment received for cancelled reservation, refunding")
	if _, err := s.gateway.Refund(ctx, gatewayRef, 0); err != nil {
		return nil, service.GatewayError(op, err)
	}
	updated, err := s.store.SetPayment(ctx, res.ID, model.PaymentRefunded, nil)
	if err != nil {
		return nil, service.FromStore(op, "reservation", err)
	}
	return updated, nil
}

// Refund returns money for a PAID reservation. amountCents of zero, or
// the full final amount, refunds everything; anything less is a partial
// refund.
func (s *Service) Refund(ctx context.Context, id uint64, amountCents int64) (*model.Reservation, error) {
	const op = "refund payment"
	res, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, service.FromStore(op, "reservation", err)
	}
	if res.PaymentStatus != model.PaymentPaid || res.PaymentRef == nil {
		return nil, &service.Error{Kind: service.KindValidation, Op: op, Msg: fmt.Sprintf("reservation has no captured payment (payment status %s)", res.PaymentStatus)}
	}
	if amountCents < 0 || amountCents > res.FinalAmountCents {
		return nil, &service.Error{Kind: service.KindValidation, Op: op, Msg: fmt.Sprintf("refund amount must be between 0 and %d", res.FinalAmountCents)}
	}
	status := model.PaymentRefunded
	if amountCents > 0 && amountCents < res.FinalAmountCents {
		status = model.PaymentPartiallyRefunded
	}
	refundID, err := s.gateway.Refund(ctx, *res.PaymentRef, amountCents)
	if err != nil {
		return nil, service.GatewayError(op, err)
	}
	updated, err := s.store.SetPayment(ctx, id, status, nil)
	if err != nil {
		return nil, service.FromStore(op, "reservation", err)
	}
	s.logger.WithFields(logrus.Fields{
		"reservation_id": id,
		"refund_id":      refundID,
		"amount_cents":   amountCents,
		"payment_status": status,
	}).Info("payment refunded")
	return updated, nil
}

// RefundCancelled refunds a reservation that was cancelled after being
// paid. Failures are logged; the cancellation stands either way and the
// reservation is returned as it is stored.
func (s *Service) RefundCancelled(ctx context.Context, res *model.Reservation) *model.Reservation {
	if res.Status != model.StatusCancelled || res.PaymentStatus != model.PaymentPaid {
		return res
	}
	updated, err := s.Refund(ctx, res.ID, 0)
	if err != nil {
		s.logger.WithError(err).WithField("reservation_id", res.ID).Error("refund after cancellation failed")
		return res
	}
	return updated
}

// HandleWebhook verifies a gateway callback and applies it. Unknown
// event types are acknowledged and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	const op = "payment webhook"
	if s.verifier == nil {
		return &service.Error{Kind: service.KindValidation, Op: op, Msg: "webhooks are not configured"}
	}
	ev, err := s.verifier.Verify(payload, signature)
	if err != nil {
		return &service.Error{Kind: service.KindValidation, Op: op, Msg: "invalid webhook signature or payload", Err: err}
	}
	log := s.logger.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "intent_id": ev.IntentID})
	switch ev.Type {
	case EventIntentSucceeded:
		if _, err := s.MarkPaid(ctx, ev.IntentID); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				log.Warn("payment event for unknown intent")
				return nil
			}
			return err
		}
	case EventIntentFailed:
		log.Warn("payment failed")
	default:
		log.Debug("ignoring payment event")
	}
	return nil
}

func (s *Service) reload(ctx context.Context, op string, id uint64) (*model.Reservation, error) {
	res, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, service.FromStore(op, "reservation", err)
	}
	return res, nil
}
