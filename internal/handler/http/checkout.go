package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lizTheDeveloper/BulkFoodHub/internal/domain"
	"github.com/lizTheDeveloper/BulkFoodHub/internal/service"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/httputil"
	"github.com/lizTheDeveloper/BulkFoodHub/pkg/validator"
)

// CheckoutHandler handles HTTP requests for checkout endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// BeginCheckoutRequest is the JSON request body for starting a checkout.
type BeginCheckoutRequest struct {
	BuyerTier string `json:"buyer_tier" validate:"omitempty,oneof=retail wholesale"`
}

// AddressRequest is the JSON request body for shipping and billing addresses.
type AddressRequest struct {
	FirstName     string `json:"first_name" validate:"required"`
	LastName      string `json:"last_name" validate:"required"`
	Company       string `json:"company"`
	StreetAddress string `json:"street_address" validate:"required"`
	Apartment     string `json:"apartment"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required"`
	PostalCode    string `json:"postal_code" validate:"required"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
}

func (r AddressRequest) toDomain() domain.Address {
	return domain.Address{
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Company:       r.Company,
		StreetAddress: r.StreetAddress,
		Apartment:     r.Apartment,
		City:          r.City,
		State:         r.State,
		PostalCode:    r.PostalCode,
		Country:       r.Country,
		Phone:         r.Phone,
	}
}

// SetBillingAddressRequest is the JSON request body for the billing address.
// When same_as_shipping is set the address may be omitted.
type SetBillingAddressRequest struct {
	SameAsShipping bool            `json:"same_as_shipping"`
	Address        *AddressRequest `json:"address,omitempty"`
}

// SetPaymentMethodRequest is the JSON request body for setting the payment method.
type SetPaymentMethodRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=credit_card paypal"`
}

// SetNotesRequest is the JSON request body for order notes.
type SetNotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// --- Handlers ---

// Begin handles POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeMissingUser(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req BeginCheckoutRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadBody(w, err)
			return
		}
		if err := validator.Validate(req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	session, err := h.service.Begin(r.Context(), userID, domain.BuyerTier(req.BuyerTier))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: session})
}

// GetCheckout handles GET /api/v1/checkout/{id}
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	session, err := h.service.GetCheckout(r.Context(), id, userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// SetShippingAddress handles PUT /api/v1/checkout/{id}/shipping-address
func (h *CheckoutHandler) SetShippingAddress(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req AddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.service.SetShippingAddress(r.Context(), id, userID, req.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// SetBillingAddress handles PUT /api/v1/checkout/{id}/billing-address
func (h *CheckoutHandler) SetBillingAddress(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetBillingAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w, err)
		return
	}

	if !req.SameAsShipping && req.Address != nil {
		if err := validator.Validate(*req.Address); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	input := service.BillingInput{SameAsShipping: req.SameAsShipping}
	if req.Address != nil {
		addr := req.Address.toDomain()
		input.Address = &addr
	}

	session, err := h.service.SetBillingAddress(r.Context(), id, userID, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// SetPaymentMethod handles PUT /api/v1/checkout/{id}/payment-method
func (h *CheckoutHandler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetPaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.service.SetPaymentMethod(r.Context(), id, userID, req.PaymentMethod)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// SetNotes handles PUT /api/v1/checkout/{id}/notes
func (h *CheckoutHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req SetNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w, err)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.service.SetNotes(r.Context(), id, userID, req.Notes)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Next handles POST /api/v1/checkout/{id}/next
func (h *CheckoutHandler) Next(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	session, err := h.service.Next(r.Context(), id, userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Back handles POST /api/v1/checkout/{id}/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	session, err := h.service.Back(r.Context(), id, userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// GetQuote handles GET /api/v1/checkout/{id}/quote. The session is repriced
// so the caller always sees current numbers, tagged with their basis.
func (h *CheckoutHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	session, err := h.service.RefreshQuote(r.Context(), id, userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session.Quote})
}

// PlaceOrder handles POST /api/v1/checkout/{id}/place-order
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	session, err := h.service.PlaceOrder(r.Context(), id, userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Abandon handles DELETE /api/v1/checkout/{id}
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	if err := h.service.Abandon(r.Context(), id, userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "abandoned"}})
}

// --- Helpers ---

// requestScope pulls the authenticated user and the checkout id off the
// request, writing the error response itself when either is missing.
func (h *CheckoutHandler) requestScope(w http.ResponseWriter, r *http.Request) (userID, id string, ok bool) {
	userID, ok = userIDFromContext(r.Context())
	if !ok {
		writeMissingUser(w)
		return "", "", false
	}

	id = chi.URLParam(r, "id")
	if id == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "checkout id is required"},
		})
		return "", "", false
	}

	return userID, id, true
}
