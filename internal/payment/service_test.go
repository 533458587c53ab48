package payment

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/storetest"
)

type fakeGateway struct {
	intents []IntentRequest
	refunds []int64
	err     error
}

func (g *fakeGateway) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	if g.err != nil {
		return Intent{}, g.err
	}
	g.intents = append(g.intents, req)
	return Intent{ID: "pi_123", ClientSecret: "pi_123_secret", Status: "requires_payment_method", AmountCents: req.AmountCents, Currency: req.Currency}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountCents int64) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.refunds = append(g.refunds, amountCents)
	return "re_1", nil
}

type fakeVerifier struct {
	ev  WebhookEvent
	err error
}

func (v fakeVerifier) Verify([]byte, string) (WebhookEvent, error) { return v.ev, v.err }

type fixture struct {
	svc     *Service
	lc      *service.Lifecycle
	store   *storetest.Memory
	gateway *fakeGateway
}

func newFixture(t *testing.T, verifier WebhookVerifier) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := storetest.NewMemory()
	store.AddRoom(model.Room{ID: 1, HotelID: 1, BaseRateCents: 10000, MaxOccupancy: 2})
	now := func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	lc := service.NewLifecycle(service.LifecycleDeps{
		Store: store, Rooms: store, Promotions: store,
		Pricer: service.NewPricer(service.PercentTax(10), now),
		Logger: logger, Now: now,
	})
	gw := &fakeGateway{}
	svc := NewService(Deps{Store: store, Confirmer: lc, Gateway: gw, Verifier: verifier, Currency: "eur", Logger: logger})
	return &fixture{svc: svc, lc: lc, store: store, gateway: gw}
}

func (f *fixture) book(t *testing.T) *model.Reservation {
	t.Helper()
	res, err := f.lc.Create(context.Background(), service.CreateRequest{
		GuestID: 3, NumberOfGuests: 1,
		CheckInDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		CheckOutDate: time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC),
		Rooms:        []service.RoomRequest{{RoomID: 1}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res
}

func TestInitiateStoresIntentReference(t *testing.T) {
	f := newFixture(t, nil)
	res := f.book(t)
	intent, err := f.svc.Initiate(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if intent.ID != "pi_123" || intent.AmountCents != 33000 {
		t.Fatalf("unexpected intent %+v", intent)
	}
	req := f.gateway.intents[0]
	if req.Currency != "eur" || req.IdempotencyKey != "reservation-1-33000" || req.Metadata["reservation_id"] != "1" {
		t.Fatalf("unexpected intent request %+v", req)
	}
	got, _ := f.store.FindByID(context.Background(), res.ID)
	if got.PaymentRef == nil || *got.PaymentRef != "pi_123" || got.PaymentStatus != model.PaymentUnpaid {
		t.Fatalf("payment not recorded %+v", got)
	}
}

func TestInitiateRequiresPendingReservation(t *testing.T) {
	f := newFixture(t, nil)
	res := f.book(t)
	if _, err := f.lc.Cancel(context.Background(), res.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Initiate(context.Background(), res.ID); !errors.Is(err, service.ErrInvalidTransition) {
		t.Fatalf("err = %v", err)
	}
	if len(f.gateway.intents) != 0 {
		t.Fatal("gateway called for cancelled reservation")
	}
}

func TestInitiateGatewayFailure(t *testing.T) {
	f := newFixture(t, nil)
	res := f.book(t)
	f.gateway.err = errors.New("card network down")
	_, err := f.svc.Initiate(context.Background(), res.ID)
	if service.KindOf(err) != service.KindGateway {
		t.Fatalf("err = %v, want gateway", err)
	}
}

func TestMarkPaidConfirmsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.MarkPaid(ctx, "pi_123")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if got.Status != model.StatusConfirmed || got.PaymentStatus != model.PaymentPaid {
		t.Fatalf("unexpected %+v", got)
	}
	again, err := f.svc.MarkPaid(ctx, "pi_123")
	if err != nil || again.Status != model.StatusConfirmed {
		t.Fatalf("repeat MarkPaid = %+v, %v", again, err)
	}
}

func TestMarkPaidUnknownReference(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.MarkPaid(context.Background(), "pi_missing"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestLatePaymentOnCancelledReservationIsRefunded(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.lc.Cancel(ctx, res.ID, "changed plans"); err != nil {
		t.Fatal(err)
	}
	got, err := f.svc.MarkPaid(ctx, "pi_123")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if got.Status != model.StatusCancelled || got.PaymentStatus != model.PaymentRefunded || len(f.gateway.refunds) != 1 {
		t.Fatalf("unexpected %+v refunds=%v", got, f.gateway.refunds)
	}
}

func TestRefund(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Refund(ctx, res.ID, 0); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("refund of unpaid err = %v", err)
	}
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.MarkPaid(ctx, "pi_123"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Refund(ctx, res.ID, 40000); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("over-refund err = %v", err)
	}
	got, err := f.svc.Refund(ctx, res.ID, 1000)
	if err != nil || got.PaymentStatus != model.PaymentPartiallyRefunded {
		t.Fatalf("partial refund = %+v, %v", got, err)
	}
}

func TestRefundCancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.MarkPaid(ctx, "pi_123"); err != nil {
		t.Fatal(err)
	}
	cancelled, err := f.lc.Cancel(ctx, res.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	got := f.svc.RefundCancelled(ctx, cancelled)
	if got.PaymentStatus != model.PaymentRefunded || f.gateway.refunds[0] != 0 {
		t.Fatalf("unexpected %+v", got)
	}

	f.gateway.err = errors.New("down")
	other := *cancelled
	other.PaymentStatus = model.PaymentPaid
	if kept := f.svc.RefundCancelled(ctx, &other); kept != &other {
		t.Fatal("failed refund should return the reservation unchanged")
	}
}

func TestHandleWebhook(t *testing.T) {
	f := newFixture(t, fakeVerifier{ev: WebhookEvent{ID: "evt_1", Type: EventIntentSucceeded, IntentID: "pi_123"}})
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.HandleWebhook(ctx, []byte(`{}`), "sig"); err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	got, _ := f.store.FindByID(ctx, res.ID)
	if got.Status != model.StatusConfirmed {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, fakeVerifier{err: errors.New("bad signature")})
	if err := f.svc.HandleWebhook(context.Background(), nil, ""); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleWebhookIgnoresUnknownIntent(t *testing.T) {
	f := newFixture(t, fakeVerifier{ev: WebhookEvent{Type: EventIntentSucceeded, IntentID: "pi_other"}})
	if err := f.svc.HandleWebhook(context.Background(), nil, ""); err != nil {
		t.Fatalf("err = %v", err)
	}
}

// cancelFirst lets a guest's cancellation commit between the payment
// being recorded and the confirmation.
type cancelFirst struct {
	lc *service.Lifecycle
}

func (c cancelFirst) Confirm(ctx context.Context, id uint64) (*model.Reservation, error) {
	if _, err := c.lc.Cancel(ctx, id, "changed plans"); err != nil {
		return nil, err
	}
	return c.lc.Confirm(ctx, id)
}

func TestPaymentRacingCancellationIsRefunded(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.confirmer = cancelFirst{lc: f.lc}
	ctx := context.Background()
	res := f.book(t)
	if _, err := f.svc.Initiate(ctx, res.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.MarkPaid(ctx, "pi_123")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if got.Status != model.StatusCancelled || got.PaymentStatus != model.PaymentRefunded {
		t.Fatalf("status=%s payment=%s, want CANCELLED/REFUNDED", got.Status, got.PaymentStatus)
	}
	if len(f.gateway.refunds) != 1 || f.gateway.refunds[0] != 0 {
		t.Fatalf("refunds = %v, want one full refund", f.gateway.refunds)
	}
}
