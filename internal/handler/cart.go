package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storecart/internal/auth"
	"github.com/vyrodovalexey/storecart/internal/middleware"
	"github.com/vyrodovalexey/storecart/internal/model"
	"github.com/vyrodovalexey/storecart/internal/store"
)

// Operation tags used in fault logs and metrics.
const (
	OpAddItem    = "CART_POST"
	OpListItems  = "CART_GET"
	OpUpdateItem = "CART_PATCH"
	OpDeleteItem = "CART_DELETE"
)

// Response messages.
const (
	msgInternalError  = "internal server error"
	msgStoreForbidden = "store not found for this user"
	msgIdentity       = "user does not match the authenticated identity"
	msgDuplicateItem  = "product is already in the cart"
	msgItemNotFound   = "cart item not found"
	msgItemRemoved    = "Item removed from cart"
)

// Operation results recorded in cartOperationsTotal.
const (
	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"
)

var cartOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart operations by result",
	},
	[]string{"operation", "result"},
)

// EventPublisher receives cart change events.
type EventPublisher interface {
	Publish(evt model.CartEvent)
}

// CartHandler handles the store-scoped cart endpoints.
type CartHandler struct {
	store     store.Store
	publisher EventPublisher
	logger    *zap.Logger
}

// NewCartHandler creates a new CartHandler instance. A nil publisher disables events.
func NewCartHandler(s store.Store, publisher EventPublisher, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		store:     s,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes registers the cart routes with the router.
func (h *CartHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/{storeId}/cart", h.AddItem).Methods(http.MethodPost)
	router.HandleFunc("/api/{storeId}/cart", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/{storeId}/cart", h.Preflight).Methods(http.MethodOptions)
	router.HandleFunc("/api/{storeId}/cart/{cartId}", h.UpdateItem).Methods(http.MethodPatch)
	router.HandleFunc("/api/{storeId}/cart/{cartId}", h.DeleteItem).Methods(http.MethodDelete)
	router.HandleFunc("/api/{storeId}/cart/{cartId}", h.Preflight).Methods(http.MethodOptions)
}

// AddItem handles POST /api/{storeId}/cart requests.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.guard(OpAddItem, h.addItem)(w, r)
}

// ListItems handles GET /api/{storeId}/cart?userId= requests.
func (h *CartHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	h.guard(OpListItems, h.listItems)(w, r)
}

// UpdateItem handles PATCH /api/{storeId}/cart/{cartId} requests.
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	h.guard(OpUpdateItem, h.updateItem)(w, r)
}

// DeleteItem handles DELETE /api/{storeId}/cart/{cartId} requests.
func (h *CartHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	h.guard(OpDeleteItem, h.deleteItem)(w, r)
}

// Preflight answers CORS preflight requests. The CORS middleware sets the headers.
func (h *CartHandler) Preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	storeID := mux.Vars(r)["storeId"]

	var req model.AddCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	quantity, err := req.Validate(storeID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, model.ErrMissingUserID) {
			status = http.StatusUnauthorized
		}
		h.reject(w, r, status, err.Error())
		return nil
	}

	if !identityMatches(r, req.UserID) {
		h.reject(w, r, http.StatusForbidden, msgIdentity)
		return nil
	}

	if _, err := h.store.FindStoreByIDAndOwner(ctx, storeID, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.reject(w, r, http.StatusForbidden, msgStoreForbidden)
			return nil
		}
		return fmt.Errorf("find store: %w", err)
	}

	_, err = h.store.FindCartItem(ctx, model.CartFilter{
		StoreID:   storeID,
		UserID:    req.UserID,
		ProductID: req.ProductID,
	})
	switch {
	case err == nil:
		h.reject(w, r, http.StatusBadRequest, msgDuplicateItem)
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("find cart item: %w", err)
	}

	item, err := h.store.CreateCartItem(ctx, &model.CartItem{
		StoreID:   storeID,
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  quantity,
	})
	if err != nil {
		// Lost a race with an identical request.
		if errors.Is(err, store.ErrAlreadyExists) {
			h.reject(w, r, http.StatusBadRequest, msgDuplicateItem)
			return nil
		}
		return fmt.Errorf("create cart item: %w", err)
	}

	h.publish(model.CartEventItemAdded, item)
	writeJSON(w, h.logger, http.StatusOK, item)
	return nil
}

func (h *CartHandler) listItems(w http.ResponseWriter, r *http.Request) error {
	storeID := mux.Vars(r)["storeId"]
	userID := r.URL.Query().Get("userId")

	if userID == "" {
		h.reject(w, r, http.StatusBadRequest, model.ErrMissingUserID.Error())
		return nil
	}
	if storeID == "" {
		h.reject(w, r, http.StatusBadRequest, model.ErrMissingStoreID.Error())
		return nil
	}

	if !identityMatches(r, userID) {
		h.reject(w, r, http.StatusForbidden, msgIdentity)
		return nil
	}

	items, err := h.store.FindCartItems(r.Context(), model.CartFilter{
		StoreID: storeID,
		UserID:  userID,
	})
	if err != nil {
		return fmt.Errorf("find cart items: %w", err)
	}
	if items == nil {
		items = []model.CartItem{}
	}

	writeJSON(w, h.logger, http.StatusOK, items)
	return nil
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	vars := mux.Vars(r)
	cartID := vars["cartId"]

	if cartID == "" {
		h.reject(w, r, http.StatusBadRequest, model.ErrMissingCartItemID.Error())
		return nil
	}

	var req model.UpdateCartItemRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	quantity, err := model.ParseQuantity(req.Quantity)
	if err != nil {
		h.reject(w, r, http.StatusBadRequest, err.Error())
		return nil
	}

	item, ok, err := h.findOwnedItem(w, r, cartID, vars["storeId"])
	if err != nil || !ok {
		return err
	}

	updated, err := h.store.UpdateCartItemQuantity(ctx, item.ID, quantity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.reject(w, r, http.StatusNotFound, msgItemNotFound)
			return nil
		}
		return fmt.Errorf("update cart item: %w", err)
	}

	h.publish(model.CartEventItemUpdated, updated)
	writeJSON(w, h.logger, http.StatusOK, updated)
	return nil
}

func (h *CartHandler) deleteItem(w http.ResponseWriter, r *http.Request) error {
	vars := mux.Vars(r)
	cartID := vars["cartId"]

	if cartID == "" {
		h.reject(w, r, http.StatusBadRequest, model.ErrMissingCartItemID.Error())
		return nil
	}

	item, ok, err := h.findOwnedItem(w, r, cartID, vars["storeId"])
	if err != nil || !ok {
		return err
	}

	if err := h.store.DeleteCartItem(r.Context(), item.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.reject(w, r, http.StatusNotFound, msgItemNotFound)
			return nil
		}
		return fmt.Errorf("delete cart item: %w", err)
	}

	h.publish(model.CartEventItemRemoved, item)
	writeText(w, h.logger, http.StatusOK, msgItemRemoved)
	return nil
}

// findOwnedItem looks up a cart item within a store and checks it belongs to
// the authenticated user, if any. It writes the rejection itself and reports
// ok=false when the request cannot proceed.
func (h *CartHandler) findOwnedItem(
	w http.ResponseWriter, r *http.Request, cartID, storeID string,
) (*model.CartItem, bool, error) {
	item, err := h.store.FindCartItem(r.Context(), model.CartFilter{ID: cartID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.reject(w, r, http.StatusNotFound, msgItemNotFound)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find cart item: %w", err)
	}

	if !identityMatches(r, item.UserID) {
		h.reject(w, r, http.StatusForbidden, msgIdentity)
		return nil, false, nil
	}

	return item, true, nil
}

// guard is the failure boundary of a cart operation. Returned errors and
// panics are logged with the operation tag and answered with a generic 500.
func (h *CartHandler) guard(operation string, fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}

		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("cart operation panicked",
					zap.String("operation", operation),
					zap.Any("panic", rec),
					zap.String("stack", string(debug.Stack())),
					zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				)
				h.fail(sw, operation)
			}
		}()

		if err := fn(sw, r); err != nil {
			h.logger.Error("cart operation failed",
				zap.String("operation", operation),
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			h.fail(sw, operation)
			return
		}

		result := resultSuccess
		if sw.status >= http.StatusBadRequest {
			result = resultRejected
		}
		cartOperationsTotal.WithLabelValues(operation, result).Inc()
	}
}

func (h *CartHandler) fail(sw *statusWriter, operation string) {
	cartOperationsTotal.WithLabelValues(operation, resultError).Inc()
	if sw.status != 0 {
		return
	}
	writeError(sw, h.logger, http.StatusInternalServerError, msgInternalError)
}

func (h *CartHandler) reject(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.logger.Warn("cart request rejected",
		zap.Int("status", status),
		zap.String("reason", message),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	writeError(w, h.logger, status, message)
}

func (h *CartHandler) publish(eventType string, item *model.CartItem) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(model.NewCartEvent(eventType, item))
}

// decodeBody decodes a JSON request body into dst. An empty body leaves dst
// zero so that field validation reports what is missing.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// identityMatches reports whether userID belongs to the authenticated caller.
// Requests without an authenticated identity are trusted.
func identityMatches(r *http.Request, userID string) bool {
	subject := auth.SubjectFromContext(r.Context())
	return subject == "" || subject == userID
}

// statusWriter records the first status code written.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}
