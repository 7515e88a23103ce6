package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
)

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, r.db, id)
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT id, name, description, price, stock, image_url, created_at
	          FROM products ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func getProduct(ctx context.Context, q dbtx, id int64) (*domain.Product, error) {
	query := `SELECT id, name, description, price, stock, image_url, created_at
	          FROM products WHERE id = $1`

	p := &domain.Product{}
	err := q.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.ImageURL,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}

	return p, nil
}

func (c *checkoutTx) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, c.tx, id)
}
