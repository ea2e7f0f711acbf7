package handlers

import (
	"net/http"

	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
)

func (h *Handlers) ListDestinations(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListDestinations(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) GetDestination(w http.ResponseWriter, r *http.Request) {
	d, err := h.catalog.GetDestination(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, d)
}

func (h *Handlers) ListAmenities(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListAmenities(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) ListCruises(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListCruises(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) GetCruise(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.GetCruise(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, c)
}

func (h *Handlers) ListCruisesByDestination(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListCruisesByDestination(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

// SearchCruises handles POST /api/cruises/search
func (h *Handlers) SearchCruises(w http.ResponseWriter, r *http.Request) {
	var req domain.CruiseSearch
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	out, err := h.catalog.SearchCruises(r.Context(), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) ListTestimonials(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListTestimonials(r.Context())
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) ListCruiseTestimonials(w http.ResponseWriter, r *http.Request) {
	out, err := h.catalog.ListCruiseTestimonials(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateTestimonial(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTestimonialRequest
	if err := decode(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	t, err := h.catalog.CreateTestimonial(r.Context(), optionalUserID(r), &req)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, t)
}

func (h *Handlers) VerifyTestimonial(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.VerifyTestimonial(r.Context(), pathID(r, "id"))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, t)
}
