package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

type BookingUseCase interface {
	Hold(ctx context.Context, req domain.HoldRequest) (*domain.Booking, error)
	Confirm(ctx context.Context, userID, bookingID uuid.UUID) error
	Cancel(ctx context.Context, userID, bookingID uuid.UUID) error
	Refund(ctx context.Context, bookingID uuid.UUID) error
	Get(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filter domain.BookingFilter) ([]domain.Booking, int, error)
}

// LockInspector reads the cache-side hold and seat markers.
type LockInspector interface {
	HoldActive(ctx context.Context, bookingID uuid.UUID) (bool, error)
	SeatLock(ctx context.Context, eventID uuid.UUID, seatID string) (*domain.SeatLock, error)
}

type BookingHandler struct {
	svc   BookingUseCase
	locks LockInspector
	log   *zap.Logger
}

func NewBookingHandler(svc BookingUseCase, locks LockInspector, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, locks: locks, log: log}
}

type HoldRequest struct {
	EventID      string   `json:"eventId"`
	TicketTierID string   `json:"ticketTierId"`
	SeatIDs      []string `json:"seatIds,omitempty"`
	Quantity     int      `json:"quantity,omitempty"`
	PromoCode    string   `json:"promoCode,omitempty"`
}

type HoldResponse struct {
	BookingID      string    `json:"bookingId"`
	Status         string    `json:"status"`
	HoldExpiresAt  time.Time `json:"holdExpiresAt"`
	TotalAmount    int64     `json:"totalAmount"`
	DiscountAmount int64     `json:"discountAmount"`
	Currency       string    `json:"currency"`
}

type ConfirmRequest struct {
	BookingID string `json:"bookingId"`
	PaymentID string `json:"paymentId"`
}

type StatusResponse struct {
	Status    string `json:"status"`
	BookingID string `json:"bookingId"`
}

func (h *BookingHandler) Hold(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	var body HoldRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}

	eventID, err := uuid.Parse(body.EventID)
	if err != nil {
		return badRequest(c, "invalid eventId")
	}

	tierID, err := uuid.Parse(body.TicketTierID)
	if err != nil {
		return badRequest(c, "invalid ticketTierId")
	}

	if body.Quantity < 0 {
		return badRequest(c, "quantity must be positive")
	}

	booking, err := h.svc.Hold(c.Request().Context(), domain.HoldRequest{
		UserID:         userID,
		EventID:        eventID,
		TicketTierID:   tierID,
		SeatIDs:        body.SeatIDs,
		Quantity:       body.Quantity,
		PromoCode:      body.PromoCode,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return h.fail(c, "hold failed", err)
	}

	resp := HoldResponse{
		BookingID:      booking.ID.String(),
		Status:         string(booking.Status),
		TotalAmount:    booking.TotalAmount,
		DiscountAmount: booking.DiscountAmount,
		Currency:       booking.Currency,
	}
	if booking.HoldExpiresAt != nil {
		resp.HoldExpiresAt = *booking.HoldExpiresAt
	}

	return c.JSON(http.StatusCreated, resp)
}

func (h *BookingHandler) Confirm(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	var body ConfirmRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json body")
	}

	bookingID, err := uuid.Parse(body.BookingID)
	if err != nil {
		return badRequest(c, "invalid bookingId")
	}

	if _, err := uuid.Parse(body.PaymentID); err != nil {
		return badRequest(c, "invalid paymentId")
	}

	if err := h.svc.Confirm(c.Request().Context(), userID, bookingID); err != nil {
		return h.fail(c, "confirm failed", err)
	}

	h.log.Info("payment applied", zap.String("booking_id", body.BookingID), zap.String("payment_id", body.PaymentID))

	return c.JSON(http.StatusOK, StatusResponse{Status: string(domain.BookingConfirmed), BookingID: bookingID.String()})
}

func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}

	if err := h.svc.Cancel(c.Request().Context(), userID, bookingID); err != nil {
		return h.fail(c, "cancel failed", err)
	}

	return c.JSON(http.StatusOK, StatusResponse{Status: string(domain.BookingCancelled), BookingID: bookingID.String()})
}

func (h *BookingHandler) Refund(c echo.Context) error {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}

	if err := h.svc.Refund(c.Request().Context(), bookingID); err != nil {
		return h.fail(c, "refund failed", err)
	}

	return c.JSON(http.StatusOK, StatusResponse{Status: string(domain.BookingRefunded), BookingID: bookingID.String()})
}

func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}

	booking, err := h.svc.Get(c.Request().Context(), bookingID)
	if err != nil {
		return h.fail(c, "get booking failed", err)
	}

	// other users' bookings are reported as missing
	if !booking.IsOwnedBy(userID) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found", Code: codeNotFound})
	}

	return c.JSON(http.StatusOK, toBookingResponse(booking))
}

func (h *BookingHandler) HoldStatus(c echo.Context) error {
	if _, err := callerID(c); err != nil {
		return err
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}

	active, err := h.locks.HoldActive(c.Request().Context(), bookingID)
	if err != nil {
		return h.fail(c, "hold status failed", err)
	}

	return c.JSON(http.StatusOK, echo.Map{"bookingId": bookingID.String(), "holdActive": active})
}

type SeatStatusResponse struct {
	EventID   string     `json:"eventId"`
	SeatID    string     `json:"seatId"`
	Locked    bool       `json:"locked"`
	HeldByYou bool       `json:"heldByYou"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *BookingHandler) SeatStatus(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		return badRequest(c, "invalid eventId")
	}

	seatID := c.Param("seatId")
	lock, err := h.locks.SeatLock(c.Request().Context(), eventID, seatID)
	if err != nil {
		return h.fail(c, "seat status failed", err)
	}

	resp := SeatStatusResponse{EventID: eventID.String(), SeatID: seatID}
	if lock != nil {
		resp.Locked = true
		resp.HeldByYou = lock.HolderID == userID
		if !lock.ExpiresAt.IsZero() {
			resp.ExpiresAt = &lock.ExpiresAt
		}
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) List(c echo.Context) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	filter := domain.BookingFilter{
		Limit:  atoiOr(c.QueryParam("limit"), domain.DefaultPageLimit),
		Offset: atoiOr(c.QueryParam("offset"), 0),
	}

	if s := c.QueryParam("status"); s != "" {
		status := domain.BookingStatus(s)
		if !status.Valid() {
			return badRequest(c, "invalid status")
		}
		filter.Status = &status
	}

	if s := c.QueryParam("eventId"); s != "" {
		eventID, err := uuid.Parse(s)
		if err != nil {
			return badRequest(c, "invalid eventId")
		}
		filter.EventID = &eventID
	}

	filter = filter.Normalize()

	bookings, total, err := h.svc.ListForUser(c.Request().Context(), userID, filter)
	if err != nil {
		return h.fail(c, "list bookings failed", err)
	}

	resp := ListResponse{
		Bookings: make([]BookingResponse, 0, len(bookings)),
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	for i := range bookings {
		resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
	}

	return c.JSON(http.StatusOK, resp)
}

func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "healthy",
		"service":   "booking-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Request().Header.Get(HeaderUserID))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid caller identity", Code: codeUnauthenticated})
	}
	return id, nil
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
