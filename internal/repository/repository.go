package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository holds the per-user cart lines. One row per
// (user, product); writes are last-write-wins per line.
type CartRepository interface {
	GetCartLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	UpsertLine(ctx context.Context, userID string, productID int64, quantity int32) error
	RemoveLine(ctx context.Context, userID string, productID int64) error
	ClearCart(ctx context.Context, userID string) (int64, error)
}

// ProductRepository is the catalog lookup. Read-only to this subsystem.
type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
}

type OrderRepository interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string, page, limit int) ([]*domain.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus) error
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// CheckoutTx is the write scope handed to the order assembler: every
// read and write inside it belongs to one database transaction.
type CheckoutTx interface {
	GetCartLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertOutboxEvent(ctx context.Context, aggregateID, eventType string, payload []byte) error
	ClearCart(ctx context.Context, userID string) (int64, error)
}

// UnitOfWork runs fn inside a single transaction. fn returning an error
// rolls everything back; otherwise the transaction commits.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}
