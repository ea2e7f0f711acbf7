package handlers

import (
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
)

// CreateBooking handles POST /api/bookings
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookingRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	b, err := h.bookings.Create(r.Context(), currentUserID(r), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{
		"message": "Booking created successfully",
		"booking": b,
	})
}

// ListBookings handles GET /api/bookings
func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.bookings.List(r.Context(), currentUserID(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, bs)
}

func (h *Handlers) ListUpcomingBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.bookings.ListUpcoming(r.Context(), currentUserID(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, bs)
}

func (h *Handlers) ListPastBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.bookings.ListPast(r.Context(), currentUserID(r))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, bs)
}

// GetBooking handles GET /api/bookings/{id}
func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Get(r.Context(), currentUserID(r), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, b)
}

// UpdateBookingStatus handles PATCH /api/bookings/{id}/status
func (h *Handlers) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	b, err := h.bookings.UpdateStatus(r.Context(), currentUserID(r), pathID(r, "id"), req.Status)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Booking status updated",
		"booking": b,
	})
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelBookingRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	b, err := h.bookings.Cancel(r.Context(), currentUserID(r), pathID(r, "id"), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Booking cancelled successfully",
		"booking": b,
	})
}

// RefundBooking handles POST /api/bookings/{id}/refund
func (h *Handlers) RefundBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	b, err := h.bookings.ProcessRefund(r.Context(), currentUserID(r), pathID(r, "id"), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Refund processed successfully",
		"booking": b,
	})
}

// CheckInBooking handles POST /api/bookings/{id}/check-in
func (h *Handlers) CheckInBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.CheckIn(r.Context(), currentUserID(r), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Check-in completed successfully",
		"booking": b,
	})
}

// CreatePayment handles POST /api/bookings/{id}/payments
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	p, b, err := h.bookings.ProcessPayment(r.Context(), currentUserID(r), pathID(r, "id"), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{
		"message": "Payment processed successfully",
		"payment": p,
		"booking": b,
	})
}

// ListPayments handles GET /api/bookings/{id}/payments
func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	ps, err := h.bookings.ListPayments(r.Context(), currentUserID(r), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, ps)
}
