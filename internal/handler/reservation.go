package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/model"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/utils"
)

// Reservations is the lifecycle the reservation endpoints drive.
// *service.Lifecycle implements it.
type Reservations interface {
	Create(ctx context.Context, req service.CreateRequest) (*model.Reservation, error)
	Get(ctx context.Context, id uint64) (*model.Reservation, error)
	List(ctx context.Context, f service.Filter) ([]model.Reservation, error)
	CheckAvailability(ctx context.Context, roomID uint64, checkIn, checkOut time.Time) (bool, error)
	Update(ctx context.Context, id uint64, req service.UpdateRequest) (*model.Reservation, error)
	Confirm(ctx context.Context, id uint64) (*model.Reservation, error)
	Cancel(ctx context.Context, id uint64, reason string) (*model.Reservation, error)
	Delete(ctx context.Context, id uint64) (*model.Reservation, error)
	CheckIn(ctx context.Context, id uint64) (*model.Reservation, error)
	CheckOut(ctx context.Context, id uint64) (*model.Reservation, error)
	MarkNoShow(ctx context.Context, id uint64) (*model.Reservation, error)
}

// Refunder returns the money of a paid reservation once it is cancelled.
type Refunder interface {
	RefundCancelled(ctx context.Context, res *model.Reservation) *model.Reservation
}

// ReservationHandler serves the reservation API. Guests act on their own
// reservations only; staff and admins may act on any. Refunder may be
// nil when payments are not configured.
type ReservationHandler struct {
	svc      Reservations
	refunder Refunder
	log      *logrus.Logger
}

func NewReservationHandler(svc Reservations, refunder Refunder, log *logrus.Logger) *ReservationHandler {
	if svc == nil {
		panic("nil lifecycle passed to NewReservationHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReservationHandler{svc: svc, refunder: refunder, log: log}
}

type roomRequest struct {
	RoomID         uint64 `json:"room_id" validate:"required"`
	DailyRateCents *int64 `json:"daily_rate_cents" validate:"omitempty,min=0"`
}

type createRequest struct {
	GuestID         uint64        `json:"guest_id"`
	CheckInDate     string        `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate    string        `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	NumberOfGuests  int           `json:"number_of_guests" validate:"required,min=1"`
	SpecialRequests *string       `json:"special_requests" validate:"omitempty,max=1000"`
	Rooms           []roomRequest `json:"rooms" validate:"required,min=1,dive"`
	PromotionID     *uint64       `json:"promotion_id" validate:"omitempty,min=1"`
}

type updateRequest struct {
	CheckInDate      *string `json:"check_in_date" validate:"omitempty,datetime=2006-01-02"`
	CheckOutDate     *string `json:"check_out_date" validate:"omitempty,datetime=2006-01-02"`
	NumberOfGuests   *int    `json:"number_of_guests" validate:"omitempty,min=1"`
	SpecialRequests  *string `json:"special_requests" validate:"omitempty,max=1000"`
	TotalPriceCents  *int64  `json:"total_price_cents" validate:"omitempty,min=0"`
	FinalAmountCents *int64  `json:"final_amount_cents" validate:"omitempty,min=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Create handles POST /v1/reservations. Guests book for themselves;
// staff must name the guest in guest_id. Responds 201 with the PENDING
// reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	guestID := userID
	if isStaff(c) {
		if body.GuestID == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "guest_id is required"})
		}
		guestID = body.GuestID
	} else if body.GuestID != 0 && body.GuestID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot book for another guest"})
	}
	// the validator already checked the format
	checkIn, _ := utils.ParseDate(body.CheckInDate)
	checkOut, _ := utils.ParseDate(body.CheckOutDate)

	req := service.CreateRequest{
		GuestID:         guestID,
		CheckInDate:     checkIn,
		CheckOutDate:    checkOut,
		NumberOfGuests:  body.NumberOfGuests,
		SpecialRequests: body.SpecialRequests,
		PromotionID:     body.PromotionID,
	}
	for _, r := range body.Rooms {
		rr := service.RoomRequest{RoomID: r.RoomID}
		// only the front desk may negotiate a rate
		if r.DailyRateCents != nil && isStaff(c) {
			rr.DailyRateCents = r.DailyRateCents
		}
		req.Rooms = append(req.Rooms, rr)
	}
	res, err := h.svc.Create(c.Request().Context(), req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/reservations for staff. At most one of status,
// the start_date/end_date range or guest_id may be given.
func (h *ReservationHandler) List(c echo.Context) error {
	var f service.Filter
	if s := strings.TrimSpace(c.QueryParam("status")); s != "" {
		st, ok := model.ParseStatus(s)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status " + strconv.Quote(s)})
		}
		f.Status = &st
	}
	var err error
	if f.From, err = parseDateParam(c, "start_date"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if f.To, err = parseDateParam(c, "end_date"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if g := c.QueryParam("guest_id"); g != "" {
		id, err := strconv.ParseUint(g, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid guest_id"})
		}
		f.GuestID = &id
	}
	list, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list, "count": len(list)})
}

// Mine handles GET /v1/my-reservations.
func (h *ReservationHandler) Mine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.svc.List(c.Request().Context(), service.Filter{GuestID: &userID})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list, "count": len(list)})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	res, done, err := h.owned(c)
	if done {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// Update handles PATCH /v1/reservations/:id.
func (h *ReservationHandler) Update(c echo.Context) error {
	res, done, err := h.owned(c)
	if done {
		return err
	}
	var body updateRequest
	if ok, err := bindAndValidate(c, &body); !ok {
		return err
	}
	req := service.UpdateRequest{
		NumberOfGuests:  body.NumberOfGuests,
		SpecialRequests: body.SpecialRequests,
	}
	if body.CheckInDate != nil {
		d, _ := utils.ParseDate(*body.CheckInDate)
		req.CheckInDate = &d
	}
	if body.CheckOutDate != nil {
		d, _ := utils.ParseDate(*body.CheckOutDate)
		req.CheckOutDate = &d
	}
	if body.TotalPriceCents != nil || body.FinalAmountCents != nil {
		if !isStaff(c) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only staff may change amounts"})
		}
		req.TotalPriceCents = body.TotalPriceCents
		req.FinalAmountCents = body.FinalAmountCents
	}
	updated, err := h.svc.Update(c.Request().Context(), res.ID, req)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE /v1/reservations/:id. The reservation is
// cancelled, not removed, and any captured payment is refunded.
func (h *ReservationHandler) Delete(c echo.Context) error {
	res, done, err := h.owned(c)
	if done {
		return err
	}
	cancelled, err := h.svc.Delete(c.Request().Context(), res.ID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.refund(c, cancelled))
}

// Cancel handles POST /v1/reservations/:id/cancel with an optional
// {"reason": "..."} body.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	res, done, err := h.owned(c)
	if done {
		return err
	}
	var body cancelRequest
	if c.Request().ContentLength != 0 {
		if ok, err := bindAndValidate(c, &body); !ok {
			return err
		}
	}
	cancelled, err := h.svc.Cancel(c.Request().Context(), res.ID, body.Reason)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.refund(c, cancelled))
}

// Confirm handles POST /v1/reservations/:id/confirm (staff).
func (h *ReservationHandler) Confirm(c echo.Context) error {
	return h.transition(c, h.svc.Confirm)
}

// CheckIn handles POST /v1/reservations/:id/check-in (staff).
func (h *ReservationHandler) CheckIn(c echo.Context) error {
	return h.transition(c, h.svc.CheckIn)
}

// CheckOut handles POST /v1/reservations/:id/check-out (staff).
func (h *ReservationHandler) CheckOut(c echo.Context) error {
	return h.transition(c, h.svc.CheckOut)
}

// NoShow handles POST /v1/reservations/:id/no-show (staff).
func (h *ReservationHandler) NoShow(c echo.Context) error {
	return h.transition(c, h.svc.MarkNoShow)
}

// Availability handles GET /v1/rooms/:id/availability?check_in=&check_out=.
func (h *ReservationHandler) Availability(c echo.Context) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	checkIn, err := parseDateParam(c, "check_in")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	checkOut, err := parseDateParam(c, "check_out")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if checkIn == nil || checkOut == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "check_in and check_out are required"})
	}
	free, err := h.svc.CheckAvailability(c.Request().Context(), roomID, *checkIn, *checkOut)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"room_id":   roomID,
		"check_in":  utils.FormatDate(*checkIn),
		"check_out": utils.FormatDate(*checkOut),
		"available": free,
	})
}

func (h *ReservationHandler) transition(c echo.Context, apply func(context.Context, uint64) (*model.Reservation, error)) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := apply(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// owned loads the reservation named by :id and checks the caller may
// act on it. When done is true the response has been written and err is
// the value to return from the handler.
func (h *ReservationHandler) owned(c echo.Context) (res *model.Reservation, done bool, err error) {
	userID, uerr := getUserID(c)
	if uerr != nil {
		return nil, true, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return nil, true, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, gerr := h.svc.Get(c.Request().Context(), id)
	if gerr != nil {
		return nil, true, writeError(c, h.log, gerr)
	}
	if !isStaff(c) && res.GuestID != userID {
		return nil, true, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return res, false, nil
}

func (h *ReservationHandler) refund(c echo.Context, res *model.Reservation) *model.Reservation {
	if h.refunder == nil {
		return res
	}
	return h.refunder.RefundCancelled(c.Request().Context(), res)
}
