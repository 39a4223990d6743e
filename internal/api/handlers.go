package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-workers/internal/cart"
	apperrors "storefront-workers/internal/common/errors"
	"storefront-workers/internal/models"
	"storefront-workers/internal/orders"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CartSessionHeader lets anonymous browsing sessions keep their cart across
// login. Without it the cart is keyed by account.
const CartSessionHeader = "X-Cart-Session"

func principal(r *http.Request) *models.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

func cartSession(r *http.Request) string {
	if s := r.Header.Get(CartSessionHeader); s != "" {
		return s
	}
	return "customer:" + strconv.FormatInt(principal(r).ID, 10)
}

func int64Param(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, apperrors.NewValidationError(name + " must be a positive integer")
	}
	return v, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
	dateLayout      = "2006-01-02"
)

// pageParams reads limit and offset, defaulting limit to defaultPageSize.
func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, apperrors.NewValidationError("limit must be between 1 and 500")
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, apperrors.NewValidationError("offset must be a non-negative integer")
		}
		offset = n
	}
	return limit, offset, nil
}

// dateRange reads dateFrom and dateTo as calendar days in UTC. dateTo is
// inclusive, so the upper bound returned is the following midnight.
func dateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("dateFrom"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, apperrors.NewValidationError("dateFrom must be YYYY-MM-DD")
		}
		from = &d
	}
	if v := q.Get("dateTo"); v != "" {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, apperrors.NewValidationError("dateTo must be YYYY-MM-DD")
		}
		d = d.AddDate(0, 0, 1)
		to = &d
	}
	return from, to, nil
}

func amountQuery(r *http.Request, name string) (*decimal.Decimal, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		return nil, apperrors.NewValidationError(name + " must be a non-negative amount")
	}
	return &d, nil
}

// ==========================
// Orders
// ==========================

func orderFilter(r *http.Request) (models.OrderFilter, error) {
	q := r.URL.Query()
	f := models.OrderFilter{
		Status:        models.OrderStatus(q.Get("status")),
		PaymentStatus: models.PaymentStatus(q.Get("paymentStatus")),
		Ordering:      q.Get("ordering"),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperrors.NewValidationError("unknown status: " + string(f.Status))
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return f, apperrors.NewValidationError("unknown paymentStatus: " + string(f.PaymentStatus))
	}
	if v := q.Get("customerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, apperrors.NewValidationError("customerId must be a positive integer")
		}
		f.CustomerID = id
	}

	var err error
	if f.From, f.To, err = dateRange(r); err != nil {
		return f, err
	}
	if f.MinAmount, err = amountQuery(r, "minAmount"); err != nil {
		return f, err
	}
	if f.MaxAmount, err = amountQuery(r, "maxAmount"); err != nil {
		return f, err
	}
	f.Limit, f.Offset, err = pageParams(r)
	return f, err
}

// listOrders returns order headers. customerId is ignored for customers,
// who only ever see their own orders.
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	f, err := orderFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.Orders.List(r.Context(), principal(r), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) orderAnalytics(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.deps.Orders.Analytics(r.Context(), principal(r), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.deps.Orders.Create(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Orders.Get(r.Context(), principal(r), chi.URLParam(r, "number"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Orders.Cancel(r.Context(), principal(r), chi.URLParam(r, "number"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.UpdateOrderInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.deps.Orders.Update(r.Context(), principal(r), chi.URLParam(r, "number"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) setStock(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "productID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Orders.SetStock(r.Context(), principal(r), id, body.Quantity); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"productId": id, "stockQuantity": body.Quantity})
}

// ==========================
// Cart
// ==========================

type cartLine struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Carts.Get(r.Context(), cartSession(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	s.mutateCart(w, r, s.deps.Carts.Add)
}

func (s *Server) updateCart(w http.ResponseWriter, r *http.Request) {
	s.mutateCart(w, r, s.deps.Carts.Update)
}

func (s *Server) mutateCart(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, session string, productID int64, qty int) error) {
	var line cartLine
	if err := decode(r, &line); err != nil {
		s.writeError(w, r, err)
		return
	}
	session := cartSession(r)
	if err := op(r.Context(), session, line.ProductID, line.Quantity); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getCart(w, r)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "productID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Carts.Remove(r.Context(), cartSession(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.getCart(w, r)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Carts.Clear(r.Context(), cartSession(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	var in cart.CheckoutInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.deps.Carts.Checkout(r.Context(), cartSession(r), principal(r), s.deps.Orders, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ==========================
// Notifications
// ==========================

type sendRequest struct {
	RecipientID int64                   `json:"recipientId"`
	Type        models.NotificationType `json:"type"`
	Channel     *models.Channel         `json:"channel,omitempty"`
	Context     map[string]interface{}  `json:"context,omitempty"`
}

func (s *Server) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RecipientID <= 0 || req.Type == "" {
		s.writeError(w, r, apperrors.NewValidationError("recipientId and type are required"))
		return
	}
	if req.Channel != nil && !req.Channel.Valid() {
		s.writeError(w, r, apperrors.NewValidationError("channel must be sms or email"))
		return
	}

	recipient, err := s.deps.Principals.GetByID(r.Context(), req.RecipientID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUnauthenticated) {
			err = apperrors.NewValidationError("unknown recipient")
		}
		s.writeError(w, r, err)
		return
	}

	res := s.deps.Dispatcher.Send(r.Context(), recipient, req.Type, req.Context, req.Channel)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) retryNotifications(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Retry.RetryFailedNotifications(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listNotifications returns the caller's notification history. Staff may
// pass recipientId to read another account's.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	recipient := p.ID
	if v := r.URL.Query().Get("recipientId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, r, apperrors.NewValidationError("recipientId must be an integer"))
			return
		}
		if id != p.ID && !p.IsStaff() {
			s.writeError(w, r, apperrors.NewForbiddenError("cannot read another account's notifications"))
			return
		}
		recipient = id
	}
	limit, _, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows, err := s.deps.Ledger.ListForRecipient(r.Context(), recipient, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// notificationStats counts ledger rows, optionally for one recipient and
// date range.
func (s *Server) notificationStats(w http.ResponseWriter, r *http.Request) {
	var recipient int64
	if v := r.URL.Query().Get("recipientId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			s.writeError(w, r, apperrors.NewValidationError("recipientId must be a positive integer"))
			return
		}
		recipient = id
	}
	from, to, err := dateRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.deps.Ledger.Stats(r.Context(), recipient, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func preferencesOf(p *models.Principal) models.NotificationPreferences {
	return models.NotificationPreferences{
		SMSEnabled:   p.SMSEnabled,
		EmailEnabled: p.EmailEnabled,
		Phone:        p.Phone,
		Email:        p.Email,
	}
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, preferencesOf(principal(r)))
}

type preferencesRequest struct {
	SMSEnabled   *bool `json:"smsEnabled"`
	EmailEnabled *bool `json:"emailEnabled"`
}

// updatePreferences changes the caller's channel opt-ins. Omitted flags keep
// their stored value.
func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p := principal(r)
	if req.SMSEnabled == nil && req.EmailEnabled == nil {
		writeJSON(w, http.StatusOK, preferencesOf(p))
		return
	}

	updated, err := s.deps.Preferences.UpdatePreferences(r.Context(), p.ID, req.SMSEnabled, req.EmailEnabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("notification preferences updated", map[string]interface{}{
		"customerId":   p.ID,
		"smsEnabled":   updated.SMSEnabled,
		"emailEnabled": updated.EmailEnabled,
	})
	writeJSON(w, http.StatusOK, preferencesOf(updated))
}

// resendWelcome queues the welcome notification for an existing account.
func (s *Server) resendWelcome(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "customerID")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	customer, err := s.deps.Principals.GetByID(r.Context(), id)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeUnauthenticated) {
			err = apperrors.NewValidationError("unknown recipient")
		}
		s.writeError(w, r, err)
		return
	}
	if !customer.IsActive {
		s.writeError(w, r, apperrors.NewValidationError("account is inactive"))
		return
	}

	s.deps.Welcome.NotifyWelcome(r.Context(), customer)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"customerId": id, "status": "queued"})
}

type deliveryRequest struct {
	ExternalID  string     `json:"externalId"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

// deliveryReport applies a provider delivery receipt to a sent notification.
func (s *Server) deliveryReport(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ExternalID == "" {
		s.writeError(w, r, apperrors.NewValidationError("externalId is required"))
		return
	}
	at := s.now()
	if req.DeliveredAt != nil {
		at = *req.DeliveredAt
	}

	updated, err := s.deps.Ledger.MarkDelivered(r.Context(), req.ExternalID, at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": updated})
}

// listTemplates returns all templates, optionally narrowed by the type and
// channel query parameters.
func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Templates.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	nt := models.NotificationType(r.URL.Query().Get("type"))
	ch := models.Channel(r.URL.Query().Get("channel"))

	out := make([]models.NotificationTemplate, 0, len(all))
	for _, t := range all {
		if (nt == "" || t.NotificationType == nt) && (ch == "" || t.Channel == ch) {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type templateRequest struct {
	Name             string                  `json:"name"`
	NotificationType models.NotificationType `json:"notificationType"`
	Channel          models.Channel          `json:"channel"`
	Subject          string                  `json:"subject"`
	Message          string                  `json:"message"`
	IsActive         *bool                   `json:"isActive,omitempty"`
}

// putTemplate creates or replaces the template for a (type, channel) pair
// and drops its cached copy. An omitted isActive keeps the template live.
func (s *Server) putTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.NotificationType == "" || !req.Channel.Valid() || req.Message == "" {
		s.writeError(w, r, apperrors.NewValidationError("notificationType, channel and message are required"))
		return
	}

	t := models.NotificationTemplate{
		Name:             req.Name,
		NotificationType: req.NotificationType,
		Channel:          req.Channel,
		Subject:          req.Subject,
		Message:          req.Message,
		IsActive:         req.IsActive == nil || *req.IsActive,
	}
	if t.Name == "" {
		t.Name = string(t.NotificationType) + "_" + string(t.Channel)
	}

	if err := s.deps.Templates.Upsert(r.Context(), &t); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Cache.Invalidate(r.Context(), t.NotificationType, t.Channel); err != nil {
		// the cached copy expires on its own
		s.logger.WithError(err).Warn("template cache invalidation failed", map[string]interface{}{
			"notificationType": t.NotificationType,
			"channel":          t.Channel,
		})
	}
	writeJSON(w, http.StatusOK, t)
}
