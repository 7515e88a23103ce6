package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "../../migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func seedProduct(t *testing.T, repo *Repository, id int64, price string, stock int32) {
	query := `INSERT INTO products (id, name, description, price, stock, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())`
	_, err := repo.db.ExecContext(context.Background(), query,
		id, fmt.Sprintf("product-%d", id), "test product", price, stock)
	require.NoError(t, err)
}

func newTestOrder(userID string) *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		OrderNumber:   fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:9]),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Subtotal:      decimal.RequireFromString("39.98"),
		Tax:           decimal.RequireFromString("3.998"),
		Shipping:      decimal.RequireFromString("10"),
		Total:         decimal.RequireFromString("53.978"),
		ShippingAddress: domain.Address{
			FirstName:  "Ivan",
			LastName:   "Petrov",
			Address1:   "Lenina 1",
			City:       "Moscow",
			Country:    "RU",
			PostalCode: "101000",
		},
		Lines: []domain.OrderLine{
			{ProductID: 1, ProductName: "product-1", Quantity: 2,
				UnitPrice: decimal.RequireFromString("19.99"),
				LineTotal: decimal.RequireFromString("39.98")},
		},
	}
}

func insertTestOrder(t *testing.T, repo *Repository, order *domain.Order) {
	err := repo.WithinTx(context.Background(), func(tx CheckoutTx) error {
		return tx.InsertOrder(context.Background(), order)
	})
	require.NoError(t, err)
}

func TestGetProduct_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.GetProduct(context.Background(), 999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetProduct_Found(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	seedProduct(t, repo, 1, "19.99", 5)

	product, err := repo.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), product.ID)
	assert.True(t, product.Price.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, int32(5), product.Stock)
}

func TestUpsertLine_InsertThenUpdate(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedProduct(t, repo, 1, "19.99", 5)

	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 1))
	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 3))

	lines, err := repo.GetCartLines(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, lines, 1, "upsert must not duplicate the line")
	assert.Equal(t, int32(3), lines[0].Quantity)
}

func TestGetCartLines_IsolatedPerUser(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedProduct(t, repo, 1, "19.99", 5)
	seedProduct(t, repo, 2, "5.00", 5)

	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 2))
	require.NoError(t, repo.UpsertLine(ctx, "user-2", 2, 1))

	lines, err := repo.GetCartLines(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ProductID)
}

func TestClearCart_ReportsDeletedCount(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedProduct(t, repo, 1, "19.99", 5)
	seedProduct(t, repo, 2, "5.00", 5)
	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 2))
	require.NoError(t, repo.UpsertLine(ctx, "user-1", 2, 1))

	deleted, err := repo.ClearCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = repo.ClearCart(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "second clear finds nothing")
}

func TestWithinTx_OrderRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1")
	billing := order.ShippingAddress
	billing.City = "Kazan"
	order.BillingAddress = &billing
	insertTestOrder(t, repo, order)

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.Equal(t, order.UserID, got.UserID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.True(t, got.Subtotal.Equal(order.Subtotal))
	assert.True(t, got.Tax.Equal(order.Tax))
	assert.True(t, got.Total.Equal(order.Total))
	assert.Equal(t, order.ShippingAddress, got.ShippingAddress)
	require.NotNil(t, got.BillingAddress)
	assert.Equal(t, "Kazan", got.BillingAddress.City)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, order.Lines[0].ProductName, got.Lines[0].ProductName)
	assert.True(t, got.Lines[0].UnitPrice.Equal(order.Lines[0].UnitPrice))
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1")

	err := repo.WithinTx(ctx, func(tx CheckoutTx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err)

	_, err = repo.GetOrderByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound, "rolled back order must not exist")
}

func TestInsertOrder_DuplicateOrderNumber(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	first := newTestOrder("user-1")
	insertTestOrder(t, repo, first)

	second := newTestOrder("user-2")
	second.OrderNumber = first.OrderNumber

	err := repo.WithinTx(ctx, func(tx CheckoutTx) error {
		return tx.InsertOrder(ctx, second)
	})
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)
}

func TestCheckoutTx_FullPlacement(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedProduct(t, repo, 1, "19.99", 5)
	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 2))

	order := newTestOrder("user-1")
	err := repo.WithinTx(ctx, func(tx CheckoutTx) error {
		lines, err := tx.GetCartLines(ctx, "user-1")
		if err != nil {
			return err
		}
		require.Len(t, lines, 1)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		payload, _ := json.Marshal(map[string]string{"order_id": order.ID.String()})
		if err := tx.InsertOutboxEvent(ctx, order.ID.String(), "order.created", payload); err != nil {
			return err
		}

		deleted, err := tx.ClearCart(ctx, "user-1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), deleted)
		return nil
	})
	require.NoError(t, err)

	lines, err := repo.GetCartLines(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)
	assert.Equal(t, "order.created", events[0].EventType)
}

func TestWithinTx_ConcurrentCheckoutProducesOneOrder(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	seedProduct(t, repo, 1, "19.99", 5)
	require.NoError(t, repo.UpsertLine(ctx, "user-1", 1, 2))

	errCartGone := fmt.Errorf("cart already cleared")

	// Both transactions must read the cart before either deletes it,
	// so the race is decided by the delete, not by the read.
	var bothRead sync.WaitGroup
	bothRead.Add(2)

	checkout := func() error {
		return repo.WithinTx(ctx, func(tx CheckoutTx) error {
			lines, err := tx.GetCartLines(ctx, "user-1")
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return errCartGone
			}

			bothRead.Done()
			bothRead.Wait()

			if err := tx.InsertOrder(ctx, newTestOrder("user-1")); err != nil {
				return err
			}

			deleted, err := tx.ClearCart(ctx, "user-1")
			if err != nil {
				return err
			}
			if deleted == 0 {
				return errCartGone
			}
			return nil
		})
	}

	results := make(chan error, 2)
	go func() { results <- checkout() }()
	go func() { results <- checkout() }()

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		if err := <-results; err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, errCartGone)
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "exactly one checkout must win")
	assert.Equal(t, 1, conflicts, "the loser must roll back")

	var orderCount int
	require.NoError(t, repo.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, "user-1").Scan(&orderCount))
	assert.Equal(t, 1, orderCount)

	lines, err := repo.GetCartLines(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestListOrdersByUserID_Pagination(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		insertTestOrder(t, repo, newTestOrder("user-1"))
	}
	insertTestOrder(t, repo, newTestOrder("user-2"))

	page1, err := repo.ListOrdersByUserID(ctx, "user-1", 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := repo.ListOrdersByUserID(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	page3, err := repo.ListOrdersByUserID(ctx, "user-1", 3, 2)
	require.NoError(t, err)
	assert.Empty(t, page3)
}

func TestUpdateStatus_WritesOutboxEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1")
	insertTestOrder(t, repo, order)

	require.NoError(t, repo.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusProcessing, got.Status)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "order.status_changed", events[0].EventType)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.UpdateStatus(context.Background(), uuid.New(), domain.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdatePaymentStatus_WritesOutboxEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1")
	insertTestOrder(t, repo, order)

	require.NoError(t, repo.UpdatePaymentStatus(ctx, order.ID, domain.PaymentStatusPaid))

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
}

func TestMarkEventAsProcessed(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	order := newTestOrder("user-1")
	insertTestOrder(t, repo, order)
	require.NoError(t, repo.UpdateStatus(ctx, order.ID, domain.OrderStatusProcessing))

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
