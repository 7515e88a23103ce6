package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type mockCartService struct {
	m        sync.Mutex
	view     *domain.CartView
	err      error
	added    []int64
	set      map[int64]int32
	removed  []int64
	cleared  bool
	lastUser string
}

func (m *mockCartService) GetCart(_ context.Context, userID string) (*domain.CartView, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.lastUser = userID
	if m.err != nil {
		return nil, m.err
	}
	if m.view != nil {
		return m.view, nil
	}
	return &domain.CartView{UserID: userID, Items: []domain.CartViewItem{}}, nil
}

func (m *mockCartService) AddItem(_ context.Context, userID string, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.lastUser = userID
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, productID)
	return nil
}

func (m *mockCartService) SetQuantity(_ context.Context, userID string, productID int64, quantity int32) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.lastUser = userID
	if m.err != nil {
		return m.err
	}
	if m.set == nil {
		m.set = make(map[int64]int32)
	}
	m.set[productID] = quantity
	return nil
}

func (m *mockCartService) RemoveItem(_ context.Context, userID string, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.lastUser = userID
	if m.err != nil {
		return m.err
	}
	m.removed = append(m.removed, productID)
	return nil
}

func (m *mockCartService) Clear(_ context.Context, userID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.lastUser = userID
	if m.err != nil {
		return m.err
	}
	m.cleared = true
	return nil
}

type mockOrderService struct {
	m           sync.Mutex
	order       *domain.Order
	orders      []*domain.Order
	err         error
	placedUser  string
	lastStatus  domain.OrderStatus
	lastPayment domain.PaymentStatus
}

func (m *mockOrderService) PlaceOrder(_ context.Context, userID string, _ domain.Address, _ *domain.Address) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.placedUser = userID
	return m.order, nil
}

func (m *mockOrderService) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.order == nil || m.order.ID != id {
		return nil, repository.ErrOrderNotFound
	}
	return m.order, nil
}

func (m *mockOrderService) ListOrders(_ context.Context, _ string, _, _ int) ([]*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.orders, nil
}

func (m *mockOrderService) UpdateStatus(_ context.Context, _ uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.lastStatus = status
	m.order.Status = status
	return m.order, nil
}

func (m *mockOrderService) UpdatePaymentStatus(_ context.Context, _ uuid.UUID, status domain.PaymentStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.lastPayment = status
	m.order.PaymentStatus = status
	return m.order, nil
}

type mockCatalog struct {
	products map[int64]*domain.Product
	err      error
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalog) ListProducts(context.Context) ([]*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

// newTestRouter wires the handlers the same way main does, minus the
// outer middleware that has no bearing on handler behaviour.
func newTestRouter(cart *mockCartService, orders *mockOrderService, catalog *mockCatalog) chi.Router {
	cartHandler := NewCartHandler(cart, time.Second)
	orderHandler := NewOrderHandler(orders, time.Second)
	productHandler := NewProductHandler(catalog, time.Second)

	r := chi.NewRouter()
	r.Use(MockAuthMiddleware)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{product_id}", productHandler.GetProduct)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Delete("/", cartHandler.ClearCart)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{order_id}", orderHandler.GetOrder)
			r.Patch("/{order_id}/status", orderHandler.UpdateStatus)
			r.Patch("/{order_id}/payment-status", orderHandler.UpdatePaymentStatus)
		})
	})
	return r
}

func doRequest(router chi.Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}
