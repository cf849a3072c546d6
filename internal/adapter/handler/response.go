package handler

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/srgjo27/ticket_reservation/internal/core/domain"
)

const (
	codeValidation      = "VALIDATION_ERROR"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeUnauthorized    = "UNAUTHORIZED"
	codeNotFound        = "NOT_FOUND"
	codeInvalidState    = "INVALID_STATE"
	codeHoldExpired     = "HOLD_EXPIRED"
	codeSeatUnavailable = "SEAT_UNAVAILABLE"
	codeSoldOut         = "SOLD_OUT"
	codeConflict        = "CONCURRENT_MODIFICATION"
	codeInternal        = "INTERNAL_ERROR"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

type TicketResponse struct {
	ID     string  `json:"id"`
	SeatID *string `json:"seatId,omitempty"`
	QRCode string  `json:"qrCode"`
	Status string  `json:"status"`
}

type BookingResponse struct {
	ID             string           `json:"id"`
	EventID        string           `json:"eventId"`
	TicketTierID   string           `json:"ticketTierId"`
	Status         string           `json:"status"`
	TotalAmount    int64            `json:"totalAmount"`
	DiscountAmount int64            `json:"discountAmount"`
	Currency       string           `json:"currency"`
	PromoCode      *string          `json:"promoCode,omitempty"`
	HoldExpiresAt  *time.Time       `json:"holdExpiresAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Tickets        []TicketResponse `json:"tickets"`
}

type ListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
		ID:             b.ID.String(),
		EventID:        b.EventID.String(),
		TicketTierID:   b.TicketTierID.String(),
		Status:         string(b.Status),
		TotalAmount:    b.TotalAmount,
		DiscountAmount: b.DiscountAmount,
		Currency:       b.Currency,
		PromoCode:      b.PromoCode,
		HoldExpiresAt:  b.HoldExpiresAt,
		CreatedAt:      b.CreatedAt,
		Tickets:        make([]TicketResponse, 0, len(b.Tickets)),
	}
	for _, t := range b.Tickets {
		resp.Tickets = append(resp.Tickets, TicketResponse{
			ID:     t.ID.String(),
			SeatID: t.SeatID,
			QRCode: t.QRCode,
			Status: string(t.Status),
		})
	}
	return resp
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: codeValidation})
}

// fail maps a service error onto its HTTP status. Unknown errors are logged
// and hidden behind a generic 500.
func (h *BookingHandler) fail(c echo.Context, msg string, err error) error {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, zap.Error(err))
	} else {
		h.log.Debug(msg, zap.Error(err), zap.Int("status", status))
	}

	if body.Retryable {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	retryable := domain.IsRetryable(err)

	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: codeValidation}
	case errors.Is(err, domain.ErrTierNotFound):
		return http.StatusNotFound, ErrorResponse{Error: domain.ErrTierNotFound.Error(), Code: codeNotFound}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: domain.ErrBookingNotFound.Error(), Code: codeNotFound}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusBadRequest, ErrorResponse{Error: "booking does not belong to caller", Code: codeUnauthorized}
	case errors.Is(err, domain.ErrHoldExpired):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: codeHoldExpired}
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: codeInvalidState}
	case errors.Is(err, domain.ErrSeatUnavailable):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: codeSeatUnavailable, Retryable: retryable}
	case errors.Is(err, domain.ErrSoldOut):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: codeSoldOut}
	case errors.Is(err, domain.ErrInventoryUnavailable), retryable:
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: codeConflict, Retryable: retryable}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: codeInternal}
	}
}
