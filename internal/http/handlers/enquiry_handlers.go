package handlers

import (
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
)

// CreateEnquiry handles the public contact form. A session, when present,
// links the enquiry to its user.
func (h *Handlers) CreateEnquiry(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEnquiryRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enquiries.Create(r.Context(), optionalUserID(r), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{
		"message": "Enquiry submitted successfully",
		"enquiry": e,
	})
}

// ListEnquiries lists the caller's enquiries, or every enquiry with ?scope=all.
func (h *Handlers) ListEnquiries(w http.ResponseWriter, r *http.Request) {
	var (
		out []domain.Enquiry
		err error
	)
	if r.URL.Query().Get("scope") == "all" {
		out, err = h.enquiries.ListAll(r.Context())
	} else {
		out, err = h.enquiries.ListMine(r.Context(), currentUserID(r))
	}
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) GetEnquiry(w http.ResponseWriter, r *http.Request) {
	e, err := h.enquiries.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, e)
}

func (h *Handlers) UpdateEnquiryStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateEnquiryStatusRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enquiries.UpdateStatus(r.Context(), pathID(r, "id"), req.Status)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Enquiry status updated",
		"enquiry": e,
	})
}

func (h *Handlers) AssignEnquiry(w http.ResponseWriter, r *http.Request) {
	var req domain.AssignEnquiryRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	e, err := h.enquiries.Assign(r.Context(), pathID(r, "id"), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": "Enquiry assigned",
		"enquiry": e,
	})
}

func (h *Handlers) CreateEnquiryResponse(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateEnquiryResponseRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	resp, e, err := h.enquiries.CreateResponse(r.Context(), currentUserID(r), pathID(r, "id"), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{
		"message":  "Response added",
		"response": resp,
		"enquiry":  e,
	})
}

func (h *Handlers) ListEnquiryResponses(w http.ResponseWriter, r *http.Request) {
	out, err := h.enquiries.ListResponses(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}
