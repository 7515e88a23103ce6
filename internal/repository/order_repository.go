package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func insertOrder(ctx context.Context, q dbtx, order *domain.Order) error {
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}

	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	var billingJSON []byte
	if order.BillingAddress != nil {
		billingJSON, err = json.Marshal(order.BillingAddress)
		if err != nil {
			return fmt.Errorf("failed to marshal billing address: %w", err)
		}
	}

	query := `INSERT INTO orders (id, order_number, user_id, status, payment_status,
	              subtotal, tax, shipping, total, shipping_address, billing_address, lines,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`

	_, insertErr := q.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.Status,
		order.PaymentStatus,
		order.Subtotal,
		order.Tax,
		order.Shipping,
		order.Total,
		shippingJSON,
		billingJSON,
		linesJSON)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (c *checkoutTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return insertOrder(ctx, c.tx, order)
}

const orderColumns = `id, order_number, user_id, status, payment_status,
	subtotal, tax, shipping, total, shipping_address, billing_address, lines,
	created_at, updated_at`

func scanOrder(scan func(dest ...any) error) (*domain.Order, error) {
	var order domain.Order
	var shippingJSON, billingJSON, linesJSON []byte
	err := scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.Status,
		&order.PaymentStatus,
		&order.Subtotal,
		&order.Tax,
		&order.Shipping,
		&order.Total,
		&shippingJSON,
		&billingJSON,
		&linesJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if len(billingJSON) > 0 {
		order.BillingAddress = &domain.Address{}
		if err := json.Unmarshal(billingJSON, order.BillingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal billing address: %w", err)
		}
	}
	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}

	return &order, nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)
	order, err := scanOrder(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	return order, nil
}

// ListOrdersByUserID returns one page of a user's orders, most recent
// first. page is 1-based.
func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string, page, limit int) ([]*domain.Order, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE user_id = $1
	          ORDER BY created_at DESC, id
	          LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

// UpdateStatus writes the new status and the matching outbox event as
// one transaction. Legality of the transition is the service's concern.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	return r.updateStatusColumn(ctx, id, "status", string(status), "order.status_changed")
}

func (r *Repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error {
	return r.updateStatusColumn(ctx, id, "payment_status", string(status), "order.payment_status_changed")
}

func (r *Repository) updateStatusColumn(ctx context.Context, id uuid.UUID, column, value, eventType string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`UPDATE orders SET %s = $2, updated_at = NOW() WHERE id = $1`, column)
	result, err := tx.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("update order %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	payload, err := json.Marshal(map[string]string{
		"order_id": id.String(),
		column:     value,
	})
	if err != nil {
		return fmt.Errorf("marshal status event payload: %w", err)
	}

	if err := insertOutboxEvent(ctx, tx, id.String(), eventType, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}
