package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/pricing"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderService struct {
	uow    repository.UnitOfWork
	orders repository.OrderRepository
	cache  cache.CartCache
	engine *pricing.Engine
	log    *zap.Logger
}

func NewOrderService(uow repository.UnitOfWork, orders repository.OrderRepository, cartCache cache.CartCache, engine *pricing.Engine, log *zap.Logger) *OrderService {
	return &OrderService{
		uow:    uow,
		orders: orders,
		cache:  cartCache,
		engine: engine,
		log:    log,
	}
}

// PlaceOrder converts the user's cart into an immutable order.
//
// The whole conversion runs in one transaction: read the cart, validate
// every line against current catalog stock, snapshot current prices,
// insert the order plus its outbox event, clear the cart. Either all of
// it commits or none of it does. Stock is checked, not decremented.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, shipping domain.Address, billing *domain.Address) (*domain.Order, error) {
	var orderID uuid.UUID

	err := s.uow.WithinTx(ctx, func(tx repository.CheckoutTx) error {
		lines, err := tx.GetCartLines(ctx, userID)
		if err != nil {
			return fmt.Errorf("read cart: %w", err)
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		// Validate the entire cart before writing anything. Cart-line
		// prices are never trusted; every line is re-priced from the
		// catalog as it stands right now.
		orderLines := make([]domain.OrderLine, 0, len(lines))
		priceLines := make([]pricing.Line, 0, len(lines))
		for _, line := range lines {
			product, errGet := tx.GetProduct(ctx, line.ProductID)
			if errors.Is(errGet, repository.ErrProductNotFound) {
				return &ProductNotFoundError{ProductID: line.ProductID}
			}
			if errGet != nil {
				return fmt.Errorf("fetch product %d: %w", line.ProductID, errGet)
			}
			if product.Stock < line.Quantity {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: product.Stock,
				}
			}

			orderLines = append(orderLines, domain.OrderLine{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   product.Price,
				LineTotal:   product.Price.Mul(decimal.NewFromInt32(line.Quantity)),
			})
			priceLines = append(priceLines, pricing.Line{
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
		}

		totals := s.engine.Price(priceLines)

		order := &domain.Order{
			ID:              uuid.New(),
			OrderNumber:     newOrderNumber(),
			UserID:          userID,
			Status:          domain.OrderStatusPending,
			PaymentStatus:   domain.PaymentStatusPending,
			Subtotal:        totals.Subtotal,
			Tax:             totals.Tax,
			Shipping:        totals.Shipping,
			Total:           totals.Total,
			ShippingAddress: shipping,
			BillingAddress:  billing,
			Lines:           orderLines,
		}

		if errInsert := tx.InsertOrder(ctx, order); errInsert != nil {
			return errInsert
		}

		payload, errMarshal := json.Marshal(map[string]interface{}{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"user_id":      order.UserID,
			"total":        order.Total,
			"lines":        order.Lines,
			"created_at":   time.Now().UTC(),
		})
		if errMarshal != nil {
			return fmt.Errorf("marshal order created payload: %w", errMarshal)
		}
		if errOutbox := tx.InsertOutboxEvent(ctx, order.ID.String(), "order.created", payload); errOutbox != nil {
			return errOutbox
		}

		// The delete doubles as the commit-side race check: a
		// concurrent checkout that already cleared this cart leaves
		// nothing to delete, and this transaction must not produce a
		// second order for the same cart.
		deleted, errClear := tx.ClearCart(ctx, userID)
		if errClear != nil {
			return errClear
		}
		if deleted == 0 {
			return ErrConcurrencyConflict
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateCartCache(userID)

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("read back order %s: %w", orderID, err)
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.String("total", order.Total.String()))

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.GetOrderByID(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, userID string, page, limit int) ([]*domain.Order, error) {
	return s.orders.ListOrdersByUserID(ctx, userID, page, limit)
}

// UpdateStatus advances the order through its state machine. Illegal
// transitions (including any move out of a terminal state) are rejected
// before anything is written.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrIllegalTransition, status)
	}

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransitionTo(order.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, status)
	}

	if errUpdate := s.orders.UpdateStatus(ctx, id, status); errUpdate != nil {
		return nil, errUpdate
	}

	s.log.Info("order status updated",
		zap.String("order_id", id.String()),
		zap.String("from", order.Status.String()),
		zap.String("to", status.String()))

	return s.orders.GetOrderByID(ctx, id)
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrIllegalTransition, status)
	}

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !domain.CanTransitionPaymentTo(order.PaymentStatus, status) {
		return nil, fmt.Errorf("%w: payment %s -> %s", ErrIllegalTransition, order.PaymentStatus, status)
	}

	if errUpdate := s.orders.UpdatePaymentStatus(ctx, id, status); errUpdate != nil {
		return nil, errUpdate
	}

	return s.orders.GetOrderByID(ctx, id)
}

func (s *OrderService) invalidateCartCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
