package repository

import (
	"context"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
)

func (r *Repository) GetCartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return getCartLines(ctx, r.db, userID)
}

// UpsertLine sets the quantity for a (user, product) line, inserting it
// if missing. Last write wins per line.
func (r *Repository) UpsertLine(ctx context.Context, userID string, productID int64, quantity int32) error {
	query := `INSERT INTO cart_lines (user_id, product_id, quantity, created_at, updated_at)
	          VALUES ($1, $2, $3, NOW(), NOW())
	          ON CONFLICT (user_id, product_id)
	          DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, userID, productID, quantity); err != nil {
		return fmt.Errorf("upsert cart line: %w", err)
	}
	return nil
}

func (r *Repository) RemoveLine(ctx context.Context, userID string, productID int64) error {
	query := `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	if _, err := r.db.ExecContext(ctx, query, userID, productID); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

func (r *Repository) ClearCart(ctx context.Context, userID string) (int64, error) {
	return clearCart(ctx, r.db, userID)
}

func getCartLines(ctx context.Context, q dbtx, userID string) ([]domain.CartLine, error) {
	query := `SELECT product_id, quantity, created_at
	          FROM cart_lines WHERE user_id = $1 ORDER BY created_at, product_id`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query cart lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.AddedAt); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return lines, nil
}

func clearCart(ctx context.Context, q dbtx, userID string) (int64, error) {
	query := `DELETE FROM cart_lines WHERE user_id = $1`

	result, err := q.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cart rows affected: %w", err)
	}
	return deleted, nil
}

func (c *checkoutTx) GetCartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return getCartLines(ctx, c.tx, userID)
}

func (c *checkoutTx) ClearCart(ctx context.Context, userID string) (int64, error) {
	return clearCart(ctx, c.tx, userID)
}
