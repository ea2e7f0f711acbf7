package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/cruise-bookings/internal/csrf"
	"github.com/diagnosis/cruise-bookings/internal/domain"
	"github.com/diagnosis/cruise-bookings/internal/http/response"
	"github.com/diagnosis/cruise-bookings/internal/service"
	"github.com/diagnosis/cruise-bookings/internal/session"
)

type Options struct {
	// EchoResetToken adds the reset token and link to the reset-request
	// response. Development only.
	EchoResetToken bool
}

type Handlers struct {
	accounts  service.AccountService
	bookings  service.BookingService
	enquiries service.EnquiryService
	catalog   service.CatalogService
	sessions  *session.Manager
	csrf      *csrf.Manager
	opts      Options
}

func New(
	accounts service.AccountService,
	bookings service.BookingService,
	enquiries service.EnquiryService,
	catalog service.CatalogService,
	sessions *session.Manager,
	csrfManager *csrf.Manager,
	opts Options,
) *Handlers {
	return &Handlers{
		accounts:  accounts,
		bookings:  bookings,
		enquiries: enquiries,
		catalog:   catalog,
		sessions:  sessions,
		csrf:      csrfManager,
		opts:      opts,
	}
}

// CSRFToken handles GET /api/csrf-token
func (h *Handlers) CSRFToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.csrf.Issue(r.Context(), w, r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, tok)
}

// decode reads a JSON body, rejecting fields the request type does not declare.
func decode(r *http.Request, dst any) error {
	return domain.DecodeStrict(r.Body, dst)
}

// pathID parses a numeric URL parameter. Anything unparsable becomes 0,
// which the services reject as an invalid id.
func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// currentUserID is only called behind session.Require.
func currentUserID(r *http.Request) int64 {
	if u := session.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return 0
}

func optionalUserID(r *http.Request) *int64 {
	if u := session.UserFromContext(r.Context()); u != nil {
		id := u.ID
		return &id
	}
	return nil
}
