package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartService struct {
	repo     repository.CartRepository
	products repository.ProductRepository
	cache    cache.CartCache
	sfg      singleflight.Group // Prevents cache stampede
	log      *zap.Logger
}

func NewCartService(repo repository.CartRepository, products repository.ProductRepository, cartCache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		repo:     repo,
		products: products,
		cache:    cartCache,
		log:      log,
	}
}

// GetCart returns the user's cart joined with current catalog prices.
// Total and ItemCount are recomputed on every call, never cached state.
func (s *CartService) GetCart(ctx context.Context, userID string) (*domain.CartView, error) {
	cart, err := s.getCartLines(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &domain.CartView{
		UserID: userID,
		Items:  make([]domain.CartViewItem, 0, len(cart.Lines)),
	}

	for _, line := range cart.Lines {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if errors.Is(err, repository.ErrProductNotFound) {
			// Product removed from catalog after it was added; the
			// line stays in storage but is not shown or priced.
			continue
		}
		if err != nil {
			return nil, err
		}

		lineTotal := product.Price.Mul(decimal.NewFromInt32(line.Quantity))
		view.Items = append(view.Items, domain.CartViewItem{
			ProductID: line.ProductID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
		view.Total = view.Total.Add(lineTotal)
		view.ItemCount += line.Quantity
	}

	return view, nil
}

// getCartLines reads the stored cart through the cache, singleflighted
// per user so concurrent misses hit the database once.
func (s *CartService) getCartLines(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		lines, errGet := s.repo.GetCartLines(ctx, userID)
		if errGet != nil {
			return nil, errGet
		}

		cart = &domain.Cart{
			UserID:    userID,
			Lines:     lines,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), userID, cart); errSet != nil {
				s.log.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(errSet))
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem adds one unit of a product, clamped to current stock:
// newQuantity = min(existing+1, stock). Requests past the stock limit
// are silently ignored rather than rejected; an existing line never
// shrinks. Adding a product with zero stock is a no-op.
func (s *CartService) AddItem(ctx context.Context, userID string, productID int64) error {
	product, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return err
	}

	lines, err := s.repo.GetCartLines(ctx, userID)
	if err != nil {
		return err
	}

	var existing int32
	for _, line := range lines {
		if line.ProductID == productID {
			existing = line.Quantity
			break
		}
	}

	next := domain.ClampAdd(existing, product.Stock)
	if next == existing || next < 1 {
		return nil
	}

	if errUpsert := s.repo.UpsertLine(ctx, userID, productID, next); errUpsert != nil {
		s.log.Error("cart upsert failed", zap.String("user_id", userID), zap.Error(errUpsert))
		return errUpsert
	}

	s.invalidateCache(userID)
	return nil
}

// SetQuantity sets a line's quantity clamped to stock. Zero or negative
// removes the line.
func (s *CartService) SetQuantity(ctx context.Context, userID string, productID int64, quantity int32) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	product, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return err
	}

	clamped := domain.ClampQuantity(quantity, product.Stock)
	if clamped < 1 {
		return s.RemoveItem(ctx, userID, productID)
	}

	if errUpsert := s.repo.UpsertLine(ctx, userID, productID, clamped); errUpsert != nil {
		s.log.Error("cart upsert failed", zap.String("user_id", userID), zap.Error(errUpsert))
		return errUpsert
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID string, productID int64) error {
	if err := s.repo.RemoveLine(ctx, userID, productID); err != nil {
		s.log.Error("cart remove failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID string) error {
	if _, err := s.repo.ClearCart(ctx, userID); err != nil {
		s.log.Error("cart clear failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}
