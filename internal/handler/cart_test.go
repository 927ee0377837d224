package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/storecart/internal/auth"
	"github.com/vyrodovalexey/storecart/internal/model"
	"github.com/vyrodovalexey/storecart/internal/store"
)

var errStoreDown = errors.New("connection refused")

// fakeStore wraps a MemoryStore with error injection and mutation counting.
type fakeStore struct {
	*store.MemoryStore

	findStoreErr error
	findItemErr  error
	listErr      error
	createErr    error
	updateErr    error
	deleteErr    error
	panicMsg     string

	mu        sync.Mutex
	mutations int
}

func newFakeStore() *fakeStore {
	mem := store.NewMemoryStore()
	mem.PutStore(model.Store{ID: "s1", OwnerID: "u1", Name: "Store One"})
	mem.PutStore(model.Store{ID: "s2", OwnerID: "u2", Name: "Store Two"})
	mem.PutProduct(model.Product{ID: "p1", StoreID: "s1", Name: "Mug", Price: decimal.RequireFromString("4.50")})
	mem.PutProduct(model.Product{ID: "p2", StoreID: "s1", Name: "Cap", Price: decimal.RequireFromString("12.00")})
	return &fakeStore{MemoryStore: mem}
}

func (f *fakeStore) FindStoreByIDAndOwner(ctx context.Context, storeID, userID string) (*model.Store, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.findStoreErr != nil {
		return nil, f.findStoreErr
	}
	return f.MemoryStore.FindStoreByIDAndOwner(ctx, storeID, userID)
}

func (f *fakeStore) FindCartItem(ctx context.Context, filter model.CartFilter) (*model.CartItem, error) {
	if f.findItemErr != nil {
		return nil, f.findItemErr
	}
	return f.MemoryStore.FindCartItem(ctx, filter)
}

func (f *fakeStore) FindCartItems(ctx context.Context, filter model.CartFilter) ([]model.CartItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryStore.FindCartItems(ctx, filter)
}

func (f *fakeStore) CreateCartItem(ctx context.Context, item *model.CartItem) (*model.CartItem, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.countMutation()
	return f.MemoryStore.CreateCartItem(ctx, item)
}

func (f *fakeStore) UpdateCartItemQuantity(ctx context.Context, id string, quantity int) (*model.CartItem, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.countMutation()
	return f.MemoryStore.UpdateCartItemQuantity(ctx, id, quantity)
}

func (f *fakeStore) DeleteCartItem(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.countMutation()
	return f.MemoryStore.DeleteCartItem(ctx, id)
}

func (f *fakeStore) countMutation() {
	f.mu.Lock()
	f.mutations++
	f.mu.Unlock()
}

func (f *fakeStore) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.CartEvent
}

func (p *recordingPublisher) Publish(evt model.CartEvent) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, evt := range p.events {
		types = append(types, evt.Type)
	}
	return types
}

func newTestRouter(h *CartHandler) *mux.Router {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func addItem(t *testing.T, router http.Handler, storeID, body string) model.CartItem {
	t.Helper()
	rr := serve(router, http.MethodPost, "/api/"+storeID+"/cart", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("add item status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var item model.CartItem
	if err := json.NewDecoder(rr.Body).Decode(&item); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	return item
}

func TestCartHandler_AddItem_Success(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	pub := &recordingPublisher{}
	router := newTestRouter(NewCartHandler(fs, pub, zap.NewNop()))

	// Act
	item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

	// Assert
	if item.ID == "" {
		t.Error("expected generated ID")
	}
	if item.UserID != "u1" || item.ProductID != "p1" || item.StoreID != "s1" || item.Quantity != 2 {
		t.Errorf("item = %+v", item)
	}
	if got := pub.types(); len(got) != 1 || got[0] != model.CartEventItemAdded {
		t.Errorf("events = %v, want [%s]", got, model.CartEventItemAdded)
	}

	items, err := fs.FindCartItems(context.Background(), model.CartFilter{StoreID: "s1", UserID: "u1"})
	if err != nil {
		t.Fatalf("FindCartItems() error = %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Errorf("stored items = %+v, want one with quantity 2", items)
	}
}

func TestCartHandler_AddItem_Validation(t *testing.T) {
	tests := []struct {
		name       string
		storeID    string
		body       string
		wantStatus int
		wantMsg    string
	}{
		{"missing user", "s1", `{"productId":"p1","quantity":2}`, http.StatusUnauthorized, model.ErrMissingUserID.Error()},
		{"empty body", "s1", ``, http.StatusUnauthorized, model.ErrMissingUserID.Error()},
		{"user checked before product", "s1", `{"quantity":0}`, http.StatusUnauthorized, model.ErrMissingUserID.Error()},
		{"missing product", "s1", `{"userId":"u1","quantity":2}`, http.StatusBadRequest, model.ErrMissingProductID.Error()},
		{"missing quantity", "s1", `{"userId":"u1","productId":"p1"}`, http.StatusBadRequest, model.ErrInvalidQuantity.Error()},
		{"zero quantity", "s1", `{"userId":"u1","productId":"p1","quantity":0}`, http.StatusBadRequest, model.ErrInvalidQuantity.Error()},
		{"negative quantity", "s1", `{"userId":"u1","productId":"p1","quantity":-3}`, http.StatusBadRequest, model.ErrInvalidQuantity.Error()},
		{"fractional quantity", "s1", `{"userId":"u1","productId":"p1","quantity":1.5}`, http.StatusBadRequest, model.ErrFractionalQuantity.Error()},
		{"missing store", "", `{"userId":"u1","productId":"p1","quantity":1}`, http.StatusBadRequest, model.ErrMissingStoreID.Error()},
		{"store of another owner", "s2", `{"userId":"u1","productId":"p1","quantity":1}`, http.StatusForbidden, msgStoreForbidden},
		{"unknown store", "nope", `{"userId":"u1","productId":"p1","quantity":1}`, http.StatusForbidden, msgStoreForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeStore()
			h := NewCartHandler(fs, nil, zap.NewNop())
			req := httptest.NewRequest(http.MethodPost, "/api/x/cart", strings.NewReader(tt.body))
			req = mux.SetURLVars(req, map[string]string{"storeId": tt.storeID})
			rr := httptest.NewRecorder()

			// Act
			h.AddItem(rr, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			resp := decodeError(t, rr)
			if resp.Code != tt.wantStatus || resp.Message != tt.wantMsg {
				t.Errorf("response = %+v, want {%d %q}", resp, tt.wantStatus, tt.wantMsg)
			}
			if fs.mutationCount() != 0 {
				t.Errorf("mutations = %d, want 0", fs.mutationCount())
			}
		})
	}
}

func TestCartHandler_AddItem_DuplicateRejected(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
	first := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

	// Act
	rr := serve(router, http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":2}`)

	// Assert
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Message != msgDuplicateItem {
		t.Errorf("message = %q, want %q", resp.Message, msgDuplicateItem)
	}

	stored, err := fs.FindCartItem(context.Background(), model.CartFilter{ID: first.ID})
	if err != nil {
		t.Fatalf("FindCartItem() error = %v", err)
	}
	if stored.Quantity != 2 {
		t.Errorf("quantity = %d, want unchanged 2", stored.Quantity)
	}
}

func TestCartHandler_AddItem_LostRace(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	fs.createErr = store.ErrAlreadyExists
	router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))

	// Act
	rr := serve(router, http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`)

	// Assert
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCartHandler_AddItem_ConcurrentDuplicates(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
	const workers = 10

	var wg sync.WaitGroup
	codes := make(chan int, workers)

	// Act
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := serve(router, http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`)
			codes <- rr.Code
		}()
	}
	wg.Wait()
	close(codes)

	// Assert
	created := 0
	for code := range codes {
		switch code {
		case http.StatusOK:
			created++
		case http.StatusBadRequest:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}

func TestCartHandler_ListItems(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
	addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)
	addItem(t, router, "s1", `{"userId":"u1","productId":"p2","quantity":1}`)

	// Act
	rr := serve(router, http.MethodGet, "/api/s1/cart?userId=u1", "")

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var items []model.CartItem
	if err := json.NewDecoder(rr.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.Product == nil || item.Product.ID != item.ProductID {
			t.Errorf("product not joined for %+v", item)
		}
	}
}

func TestCartHandler_ListItems_EmptyCartIsArray(t *testing.T) {
	router := newTestRouter(NewCartHandler(newFakeStore(), nil, zap.NewNop()))

	rr := serve(router, http.MethodGet, "/api/s1/cart?userId=nobody", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestCartHandler_ListItems_Validation(t *testing.T) {
	tests := []struct {
		name    string
		storeID string
		target  string
	}{
		{"missing user", "s1", "/api/s1/cart"},
		{"missing store", "", "/api//cart?userId=u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			h := NewCartHandler(newFakeStore(), nil, zap.NewNop())
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, tt.target, nil), map[string]string{"storeId": tt.storeID})
			rr := httptest.NewRecorder()

			// Act
			h.ListItems(rr, req)

			// Assert
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestCartHandler_UpdateItem(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	pub := &recordingPublisher{}
	router := newTestRouter(NewCartHandler(fs, pub, zap.NewNop()))
	item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

	// Act
	rr := serve(router, http.MethodPatch, "/api/s1/cart/"+item.ID, `{"quantity":5}`)

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var updated model.CartItem
	if err := json.NewDecoder(rr.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	if updated.Quantity != 5 {
		t.Errorf("Quantity = %d, want 5", updated.Quantity)
	}

	// Absolute replacement, not an increment.
	serve(router, http.MethodPatch, "/api/s1/cart/"+item.ID, `{"quantity":1}`)
	stored, err := fs.FindCartItem(context.Background(), model.CartFilter{ID: item.ID})
	if err != nil {
		t.Fatalf("FindCartItem() error = %v", err)
	}
	if stored.Quantity != 1 {
		t.Errorf("stored Quantity = %d, want 1", stored.Quantity)
	}

	want := []string{model.CartEventItemAdded, model.CartEventItemUpdated, model.CartEventItemUpdated}
	if got := pub.types(); len(got) != len(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestCartHandler_UpdateItem_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		path       func(id string) string
		body       string
		wantStatus int
	}{
		{"zero quantity", func(id string) string { return "/api/s1/cart/" + id }, `{"quantity":0}`, http.StatusBadRequest},
		{"absent quantity", func(id string) string { return "/api/s1/cart/" + id }, `{}`, http.StatusBadRequest},
		{"empty body", func(id string) string { return "/api/s1/cart/" + id }, ``, http.StatusBadRequest},
		{"fractional quantity", func(id string) string { return "/api/s1/cart/" + id }, `{"quantity":2.5}`, http.StatusBadRequest},
		{"unknown item", func(string) string { return "/api/s1/cart/missing" }, `{"quantity":3}`, http.StatusNotFound},
		{"item of another store", func(id string) string { return "/api/s2/cart/" + id }, `{"quantity":3}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeStore()
			router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
			item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

			// Act
			rr := serve(router, http.MethodPatch, tt.path(item.ID), tt.body)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			stored, err := fs.FindCartItem(context.Background(), model.CartFilter{ID: item.ID})
			if err != nil {
				t.Fatalf("FindCartItem() error = %v", err)
			}
			if stored.Quantity != 2 {
				t.Errorf("quantity = %d, want unchanged 2", stored.Quantity)
			}
		})
	}
}

func TestCartHandler_UpdateItem_MissingCartID(t *testing.T) {
	h := NewCartHandler(newFakeStore(), nil, zap.NewNop())
	req := mux.SetURLVars(
		httptest.NewRequest(http.MethodPatch, "/api/s1/cart/", strings.NewReader(`{"quantity":1}`)),
		map[string]string{"storeId": "s1"},
	)
	rr := httptest.NewRecorder()

	h.UpdateItem(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeError(t, rr); resp.Message != model.ErrMissingCartItemID.Error() {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestCartHandler_DeleteItem(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	pub := &recordingPublisher{}
	router := newTestRouter(NewCartHandler(fs, pub, zap.NewNop()))
	item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

	// Act
	rr := serve(router, http.MethodDelete, "/api/s1/cart/"+item.ID, "")

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != msgItemRemoved {
		t.Errorf("body = %q, want %q", rr.Body.String(), msgItemRemoved)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if _, err := fs.FindCartItem(context.Background(), model.CartFilter{ID: item.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindCartItem() after delete error = %v, want %v", err, store.ErrNotFound)
	}
	if got := pub.types(); len(got) != 2 || got[1] != model.CartEventItemRemoved {
		t.Errorf("events = %v", got)
	}

	// A second delete of the same ID is a 404.
	rr = serve(router, http.MethodDelete, "/api/s1/cart/"+item.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCartHandler_DeleteItem_MissingCartID(t *testing.T) {
	fs := newFakeStore()
	h := NewCartHandler(fs, nil, zap.NewNop())
	req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/s1/cart/", nil), map[string]string{"storeId": "s1"})
	rr := httptest.NewRecorder()

	h.DeleteItem(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if fs.mutationCount() != 0 {
		t.Errorf("mutations = %d, want 0", fs.mutationCount())
	}
}

func TestCartHandler_Preflight(t *testing.T) {
	router := newTestRouter(NewCartHandler(newFakeStore(), nil, zap.NewNop()))

	for _, target := range []string{"/api/s1/cart", "/api/s1/cart/abc"} {
		rr := serve(router, http.MethodOptions, target, "")

		if rr.Code != http.StatusNoContent {
			t.Errorf("%s status = %d, want %d", target, rr.Code, http.StatusNoContent)
		}
		if rr.Body.Len() != 0 {
			t.Errorf("%s body = %q, want empty", target, rr.Body.String())
		}
	}
}

func TestCartHandler_FailureBoundary(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(fs *fakeStore)
		method    string
		target    string
		body      string
		operation string
	}{
		{"add store lookup fails", func(fs *fakeStore) { fs.findStoreErr = errStoreDown },
			http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`, OpAddItem},
		{"add duplicate lookup fails", func(fs *fakeStore) { fs.findItemErr = errStoreDown },
			http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`, OpAddItem},
		{"add create fails", func(fs *fakeStore) { fs.createErr = errStoreDown },
			http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`, OpAddItem},
		{"add unknown product", func(*fakeStore) {},
			http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p404","quantity":1}`, OpAddItem},
		{"add malformed json", func(*fakeStore) {},
			http.MethodPost, "/api/s1/cart", `{"userId":`, OpAddItem},
		{"add panics", func(fs *fakeStore) { fs.panicMsg = "boom" },
			http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p1","quantity":1}`, OpAddItem},
		{"list fails", func(fs *fakeStore) { fs.listErr = errStoreDown },
			http.MethodGet, "/api/s1/cart?userId=u1", "", OpListItems},
		{"update lookup fails", func(fs *fakeStore) { fs.findItemErr = errStoreDown },
			http.MethodPatch, "/api/s1/cart/c1", `{"quantity":1}`, OpUpdateItem},
		{"update malformed json", func(*fakeStore) {},
			http.MethodPatch, "/api/s1/cart/c1", `not json`, OpUpdateItem},
		{"delete lookup fails", func(fs *fakeStore) { fs.findItemErr = errStoreDown },
			http.MethodDelete, "/api/s1/cart/c1", "", OpDeleteItem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeStore()
			tt.setup(fs)
			core, logs := observer.New(zap.ErrorLevel)
			router := newTestRouter(NewCartHandler(fs, nil, zap.New(core)))

			// Act
			rr := serve(router, tt.method, tt.target, tt.body)

			// Assert
			if rr.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
			}
			if resp := decodeError(t, rr); resp.Message != msgInternalError {
				t.Errorf("message = %q, want %q", resp.Message, msgInternalError)
			}
			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d error logs, want 1", len(entries))
			}
			if op := entries[0].ContextMap()["operation"]; op != tt.operation {
				t.Errorf("operation = %v, want %s", op, tt.operation)
			}
		})
	}
}

func TestCartHandler_UpdateDelete_StoreErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(fs *fakeStore)
		method     string
		body       string
		wantStatus int
	}{
		{"update vanishes", func(fs *fakeStore) { fs.updateErr = store.ErrNotFound }, http.MethodPatch, `{"quantity":3}`, http.StatusNotFound},
		{"update fails", func(fs *fakeStore) { fs.updateErr = errStoreDown }, http.MethodPatch, `{"quantity":3}`, http.StatusInternalServerError},
		{"delete vanishes", func(fs *fakeStore) { fs.deleteErr = store.ErrNotFound }, http.MethodDelete, "", http.StatusNotFound},
		{"delete fails", func(fs *fakeStore) { fs.deleteErr = errStoreDown }, http.MethodDelete, "", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			fs := newFakeStore()
			router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
			item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)
			tt.setup(fs)

			// Act
			rr := serve(router, tt.method, "/api/s1/cart/"+item.ID, tt.body)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestCartHandler_AuthenticatedIdentity(t *testing.T) {
	// Arrange
	fs := newFakeStore()
	router := newTestRouter(NewCartHandler(fs, nil, zap.NewNop()))
	item := addItem(t, router, "s1", `{"userId":"u1","productId":"p1","quantity":2}`)

	tests := []struct {
		name       string
		subject    string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"add as someone else", "u2", http.MethodPost, "/api/s1/cart", `{"userId":"u1","productId":"p2","quantity":1}`, http.StatusForbidden},
		{"list someone else's cart", "u2", http.MethodGet, "/api/s1/cart?userId=u1", "", http.StatusForbidden},
		{"list own cart", "u1", http.MethodGet, "/api/s1/cart?userId=u1", "", http.StatusOK},
		{"update someone else's item", "u2", http.MethodPatch, "/api/s1/cart/" + item.ID, `{"quantity":9}`, http.StatusForbidden},
		{"update own item", "u1", http.MethodPatch, "/api/s1/cart/" + item.ID, `{"quantity":4}`, http.StatusOK},
		{"delete someone else's item", "u2", http.MethodDelete, "/api/s1/cart/" + item.ID, "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			ctx := auth.WithAuthInfo(req.Context(), &auth.AuthInfo{Method: auth.AuthMethodJWT, Subject: tt.subject})
			rr := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rr, req.WithContext(ctx))

			// Assert
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}

	stored, err := fs.FindCartItem(context.Background(), model.CartFilter{ID: item.ID})
	if err != nil {
		t.Fatalf("FindCartItem() error = %v", err)
	}
	if stored.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", stored.Quantity)
	}
}
