package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"planora/internal/booking"
	"planora/internal/export"
	"planora/internal/models"
	"planora/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// users

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeJSON(w, r, &user, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	created, err := s.deps.Users.CreateUser(r.Context(), &user)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if err := decodeJSON(w, r, &user, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	user.ID = chi.URLParam(r, "id")
	updated, err := s.deps.Users.UpdateUser(r.Context(), &user)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// services (vendor listings)

func (s *HTTPServer) handleSearchServices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortKey := q.Get("sort")
	if !service.ValidSort(sortKey) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sort key %q", sortKey))
		return
	}

	query := service.VendorQuery{
		Category: q.Get("category"),
		City:     q.Get("city"),
		Search:   q.Get("search"),
		Sort:     sortKey,
		Desc:     !strings.EqualFold(q.Get("order"), "asc"),
	}
	vendors, err := s.deps.Vendors.Search(r.Context(), query)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, vendors)
}

func (s *HTTPServer) handleGetService(w http.ResponseWriter, r *http.Request) {
	vendor, err := s.deps.Vendors.GetVendor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}

// handleSaveService accepts both package schemas, so unknown fields are tolerated.
func (s *HTTPServer) handleSaveService(w http.ResponseWriter, r *http.Request) {
	var in models.VendorInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	vendor, err := s.deps.Vendors.SaveVendor(r.Context(), &in)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, vendor)
}

// orders

type negotiationRequest struct {
	Enabled       bool             `json:"enabled"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	OfferedPrice  *decimal.Decimal `json:"offeredPrice"`
}

type createOrderRequest struct {
	CustomerID  string              `json:"customerId"`
	VendorID    string              `json:"vendorId"`
	PackageID   string              `json:"packageId"`
	EventType   string              `json:"eventType"`
	EventDate   string              `json:"eventDate"`
	GuestCount  int                 `json:"guestCount"`
	Location    string              `json:"location"`
	Notes       string              `json:"notes"`
	Budget      *decimal.Decimal    `json:"budget"`
	MaxBudget   *decimal.Decimal    `json:"maxBudget"`
	Negotiation *negotiationRequest `json:"negotiation"`
}

func (req createOrderRequest) toBooking() (*models.Booking, error) {
	b := &models.Booking{
		CustomerID: req.CustomerID,
		VendorID:   req.VendorID,
		PackageID:  strings.TrimSpace(req.PackageID),
		EventType:  strings.TrimSpace(req.EventType),
		GuestCount: req.GuestCount,
		Location:   strings.TrimSpace(req.Location),
		Notes:      strings.TrimSpace(req.Notes),
	}
	if req.EventDate != "" {
		date, err := parseEventDate(req.EventDate)
		if err != nil {
			return nil, err
		}
		b.EventDate = date
	}
	if req.Budget != nil {
		b.Budget = *req.Budget
	}
	if req.MaxBudget != nil {
		b.MaxBudget = *req.MaxBudget
	}
	if n := req.Negotiation; n != nil && n.Enabled {
		b.Negotiation = &models.Negotiation{Enabled: true}
		if n.OriginalPrice != nil {
			b.Negotiation.OriginalPrice = *n.OriginalPrice
		}
		if n.OfferedPrice != nil {
			b.Negotiation.OfferedPrice = *n.OfferedPrice
		}
	}
	return b, nil
}

// parseEventDate accepts a calendar date or a full RFC 3339 timestamp.
func parseEventDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid eventDate %q; expected YYYY-MM-DD", service.ErrValidation, v)
	}
	return t.UTC(), nil
}

func (s *HTTPServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	b, err := req.toBooking()
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	created, err := s.deps.Bookings.CreateBooking(r.Context(), b)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BookingFilter{
		CustomerID: strings.TrimSpace(q.Get("customerId")),
		VendorID:   strings.TrimSpace(q.Get("vendorId")),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseBookingStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = st
	}

	bookings, err := s.deps.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *HTTPServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	b, err := s.deps.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type actionRequest struct {
	Action   string            `json:"action"`
	Actor    string            `json:"actor"`
	ActorID  string            `json:"actorId"`
	Price    *decimal.Decimal  `json:"price"`
	Message  string            `json:"message"`
	Version  int64             `json:"version"`
	Metadata map[string]string `json:"metadata"`
}

func (req actionRequest) toApply() (service.ApplyRequest, error) {
	action, err := booking.ParseAction(req.Action)
	if err != nil {
		return service.ApplyRequest{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	actor, err := models.ParseActor(req.Actor)
	if err != nil {
		return service.ApplyRequest{}, fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	if req.Version < 0 {
		return service.ApplyRequest{}, fmt.Errorf("%w: version must not be negative", service.ErrValidation)
	}
	return service.ApplyRequest{
		Command: booking.Command{
			Action:   action,
			Actor:    actor,
			ActorID:  strings.TrimSpace(req.ActorID),
			Price:    req.Price,
			Message:  strings.TrimSpace(req.Message),
			Metadata: req.Metadata,
		},
		Version: req.Version,
	}, nil
}

func (s *HTTPServer) handleApplyAction(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	apply, err := req.toApply()
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}

	updated, err := s.deps.Bookings.ApplyAction(r.Context(), id, apply)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleAllowedActions(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	actor, err := models.ParseActor(r.URL.Query().Get("actor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := s.deps.Bookings.AllowedActions(r.Context(), id, actor)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	if actions == nil {
		actions = []booking.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookingId": id, "actor": actor, "actions": actions})
}

func (s *HTTPServer) handleExportVendorOrders(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "id")
	vendor, err := s.deps.Vendors.GetVendor(r.Context(), vendorID)
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	bookings, err := s.deps.Bookings.ListBookings(r.Context(), models.BookingFilter{VendorID: vendor.ID})
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}

	now := s.now()
	if s.deps.ExportsDir != "" {
		if path, err := export.SaveVendorBookings(s.deps.ExportsDir, vendor, bookings, now); err != nil {
			s.logger.Warn().Err(err).Str("vendor_id", vendor.ID).Msg("archive export failed")
		} else {
			s.logger.Info().Str("path", path).Msg("export archived")
		}
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(vendor.ID, now)))
	if err := export.WriteVendorBookings(w, vendor, bookings, now); err != nil {
		s.logger.Error().Err(err).Str("vendor_id", vendor.ID).Msg("export failed")
	}
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return 0, false
	}
	return id, true
}

// cart

type addToCartRequest struct {
	UserID    string `json:"userId"`
	ServiceID string `json:"serviceId"`
	PackageID string `json:"packageId"`
	Quantity  int    `json:"quantity"`
}

func (s *HTTPServer) handleGetCart(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Cart.GetCart(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	if items == nil {
		items = []models.CartItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	items, err := s.deps.Cart.AddItem(r.Context(), req.UserID, models.CartItem{
		ServiceID: req.ServiceID,
		PackageID: strings.TrimSpace(req.PackageID),
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *HTTPServer) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Cart.ClearCart(r.Context(), chi.URLParam(r, "userId")); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Cart.RemoveItem(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "serviceId"))
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// messages

type sendMessageRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	BookingID  int64  `json:"bookingId"`
	Text       string `json:"text"`
}

func (s *HTTPServer) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Messages.GetConversation(r.Context(), chi.URLParam(r, "userId1"), chi.URLParam(r, "userId2"))
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *HTTPServer) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	msg, err := s.deps.Messages.SendMessage(r.Context(), &models.Message{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		BookingID:  req.BookingID,
		Text:       req.Text,
	})
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// admin

func (s *HTTPServer) handleRetrySync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger sync is disabled")
		return
	}
	n, err := s.deps.Ledger.RetryFailed(r.Context())
	if err != nil {
		respondError(w, r, &s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
}
