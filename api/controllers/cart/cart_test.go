package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voltride/ebike-backend/api/middleware"
	cartsvc "github.com/voltride/ebike-backend/internal/cart"
	pkgerrors "github.com/voltride/ebike-backend/pkg/errors"
)

type stubCartService struct {
	view      *cartsvc.View
	err       error
	lastAdd   cartsvc.AddItemInput
	lastItem  uuid.UUID
	lastQty   int
	lastUser  uuid.UUID
	removedID uuid.UUID
}

func (s *stubCartService) GetActiveCart(ctx context.Context, userID uuid.UUID) (*cartsvc.View, error) {
	s.lastUser = userID
	return s.view, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, userID uuid.UUID, input cartsvc.AddItemInput) (*cartsvc.View, error) {
	s.lastUser = userID
	s.lastAdd = input
	return s.view, s.err
}

func (s *stubCartService) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (*cartsvc.View, error) {
	s.lastItem = itemID
	s.lastQty = qty
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*cartsvc.View, error) {
	s.removedID = itemID
	return s.view, s.err
}

func withUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func withItemParam(req *http.Request, itemID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("itemId", itemID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestCartFetchSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{view: &cartsvc.View{CartID: uuid.New(), Subtotal: 1500000}}

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), userID)
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.lastUser != userID {
		t.Fatalf("expected user %s got %s", userID, svc.lastUser)
	}
	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Subtotal != 1500000 {
		t.Fatalf("unexpected subtotal %d", envelope.Data.Subtotal)
	}
}

func TestCartFetchRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	CartFetch(&stubCartService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemPassesInput(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{}}
	productID, locationID := uuid.New(), uuid.New()
	body := `{"product_id":"` + productID.String() + `","location_id":"` + locationID.String() + `","quantity":2}`

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastAdd.ProductID != productID || svc.lastAdd.LocationID != locationID || svc.lastAdd.Quantity != 2 {
		t.Fatalf("unexpected input %+v", svc.lastAdd)
	}
}

func TestCartAddItemValidatesQuantity(t *testing.T) {
	body := `{"product_id":"` + uuid.NewString() + `","location_id":"` + uuid.NewString() + `","quantity":0}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	CartAddItem(&stubCartService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartUpdateItem(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{}}
	itemID := uuid.New()
	req := withUser(httptest.NewRequest(http.MethodPatch, "/api/v1/cart/items/"+itemID.String(), strings.NewReader(`{"quantity":3}`)), uuid.New())
	req = withItemParam(req, itemID.String())
	resp := httptest.NewRecorder()
	CartUpdateItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastItem != itemID || svc.lastQty != 3 {
		t.Fatalf("unexpected update %s x%d", svc.lastItem, svc.lastQty)
	}
}

func TestCartRemoveItemMapsNotFound(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")}
	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/x", nil), uuid.New())
	req = withItemParam(req, uuid.NewString())
	resp := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
