package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
)

type mockCartRepo struct {
	m     sync.RWMutex
	lines []domain.CartLine
	err   error
}

func (m *mockCartRepo) GetCartLines(context.Context, string) ([]domain.CartLine, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.CartLine, len(m.lines))
	copy(out, m.lines)
	return out, nil
}

func (m *mockCartRepo) UpsertLine(_ context.Context, _ string, productID int64, quantity int32) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.lines {
		if m.lines[i].ProductID == productID {
			m.lines[i].Quantity = quantity
			return nil
		}
	}
	m.lines = append(m.lines, domain.CartLine{ProductID: productID, Quantity: quantity, AddedAt: time.Now()})
	return nil
}

func (m *mockCartRepo) RemoveLine(_ context.Context, _ string, productID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	for i, line := range m.lines {
		if line.ProductID == productID {
			m.lines = append(m.lines[:i], m.lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockCartRepo) ClearCart(context.Context, string) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	deleted := int64(len(m.lines))
	m.lines = nil
	return deleted, nil
}

func (m *mockCartRepo) quantityOf(productID int64) int32 {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, line := range m.lines {
		if line.ProductID == productID {
			return line.Quantity
		}
	}
	return 0
}

type mockProductRepo struct {
	m        sync.RWMutex
	products map[int64]*domain.Product
	err      error
}

func (m *mockProductRepo) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) ListProducts(context.Context) ([]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Product
	for _, p := range m.products {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type mockCache struct {
	m    sync.RWMutex
	cart *domain.Cart
	err  error
}

func (m *mockCache) Get(context.Context, string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cache.ErrCacheMiss
	}
	return m.cart, nil
}

func (m *mockCache) Set(_ context.Context, _ string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = cart
	return m.err
}

func (m *mockCache) Delete(context.Context, string) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.cart = nil
	return m.err
}

func (m *mockCache) getCart() *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.cart
}
