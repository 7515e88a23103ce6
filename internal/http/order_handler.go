package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, userID string, shipping domain.Address, billing *domain.Address) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string, page, limit int) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error)
}

type OrderHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrderHandler(orders OrderService, timeout time.Duration) *OrderHandler {
	return &OrderHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type CreateOrderRequestDTO struct {
	ShippingAddress domain.Address  `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address,omitempty"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type UpdatePaymentStatusRequestDTO struct {
	PaymentStatus string `json:"payment_status"`
}

type OrderLineDTO struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type OrderResponseDTO struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	Subtotal        string          `json:"subtotal"`
	Tax             string          `json:"tax"`
	Shipping        string          `json:"shipping"`
	Total           string          `json:"total"`
	ShippingAddress domain.Address  `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address,omitempty"`
	Lines           []OrderLineDTO  `json:"lines"`
	CreatedAt       string          `json:"created_at"`
}

func toOrderResponse(order *domain.Order) OrderResponseDTO {
	lines := make([]OrderLineDTO, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, OrderLineDTO{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.String(),
			LineTotal:   line.LineTotal.String(),
		})
	}

	return OrderResponseDTO{
		ID:              order.ID.String(),
		OrderNumber:     order.OrderNumber,
		UserID:          order.UserID,
		Status:          order.Status.String(),
		PaymentStatus:   string(order.PaymentStatus),
		Subtotal:        order.Subtotal.String(),
		Tax:             order.Tax.String(),
		Shipping:        order.Shipping.String(),
		Total:           order.Total.String(),
		ShippingAddress: order.ShippingAddress,
		BillingAddress:  order.BillingAddress,
		Lines:           lines,
		CreatedAt:       order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// CreateOrder is the checkout endpoint: cart in, order out.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ShippingAddress.Address1 == "" || req.ShippingAddress.City == "" || req.ShippingAddress.Country == "" {
		respondError(w, http.StatusBadRequest, "invalid_address", "shipping address requires address1, city and country")
		return
	}

	order, err := h.orders.PlaceOrder(ctx, userID, req.ShippingAddress, req.BillingAddress)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if order.UserID != userID {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	orders, err := h.orders.ListOrders(ctx, userID, page, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	response := make([]OrderResponseDTO, 0, len(orders))
	for _, order := range orders {
		response = append(response, toOrderResponse(order))
	}

	respondJSON(w, http.StatusOK, response)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, id, domain.OrderStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req UpdatePaymentStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, id, domain.PaymentStatus(req.PaymentStatus))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}
