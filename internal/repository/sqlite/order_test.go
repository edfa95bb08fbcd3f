package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rookgm/chatpesa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *OrderRepository {
	t.Helper()

	ctx := context.Background()
	db, err := New(ctx, MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())

	return NewOrderRepository(db)
}

func createOrder(t *testing.T, repo *OrderRepository, phone string, amount int64) *models.Order {
	t.Helper()

	order, err := repo.CreateOrder(context.Background(), &models.Order{
		Phone:        phone,
		CustomerName: "Wyckyaustin",
		Amount:       amount,
	})
	require.NoError(t, err)
	return order
}

func TestOrderRepository_CreateOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := createOrder(t, repo, "254722275271", 50)

	assert.Len(t, order.ID, 12)
	assert.Equal(t, models.OrderStatusAwaitingPayment, order.Status)
	assert.Equal(t, int64(50), order.Amount)
	assert.False(t, order.CreatedAt.IsZero())
	assert.Nil(t, order.PaidAt)

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(order, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderRepository_CreateOrderInvalidAmount(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, amount := range []int64{-1, 0, 1, 9} {
		_, err := repo.CreateOrder(ctx, &models.Order{Phone: "254722275271", Amount: amount})
		assert.ErrorIs(t, err, models.ErrInvalidAmount)
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	}

	orders, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestOrderRepository_GetOrderByIDNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.GetOrderByID(context.Background(), "CPUNKNOWN")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestOrderRepository_GetPendingByPhoneNewestWins(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// same timestamp for both orders, insertion order breaks the tie
	fixed := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	older := createOrder(t, repo, "254722275271", 50)
	newer := createOrder(t, repo, "254722275271", 100)
	createOrder(t, repo, "254700000000", 70)

	got, err := repo.GetPendingByPhone(ctx, "254722275271")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	_, err = repo.MarkPaid(ctx, newer.ID, "ABC123", "")
	require.NoError(t, err)

	got, err = repo.GetPendingByPhone(ctx, "254722275271")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = repo.GetPendingByPhone(ctx, "254799999999")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestOrderRepository_ListPendingByPhone(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := createOrder(t, repo, "254722275271", 50)
	second := createOrder(t, repo, "254722275271", 50)
	failed := createOrder(t, repo, "254722275271", 50)
	_, err := repo.MarkFailed(ctx, failed.ID, "cancelled")
	require.NoError(t, err)

	orders, err := repo.ListPendingByPhone(ctx, "254722275271")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}

func TestOrderRepository_MarkPaid(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := createOrder(t, repo, "254722275271", 50)

	paid, err := repo.MarkPaid(ctx, order.ID, "ABC123", "Jane Wanjiru")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
	assert.Equal(t, "ABC123", paid.Receipt)
	assert.Equal(t, "Jane Wanjiru", paid.CustomerName)
	require.NotNil(t, paid.PaidAt)

	_, err = repo.MarkPaid(ctx, order.ID, "XYZ999", "")
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	_, err = repo.MarkFailed(ctx, order.ID, "late failure")
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	got, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, got.Status)
	assert.Equal(t, "ABC123", got.Receipt)
	assert.Empty(t, got.FailureReason)
}

func TestOrderRepository_MarkPaidKeepsNameWithoutPayerName(t *testing.T) {
	repo := newTestRepository(t)

	order := createOrder(t, repo, "254722275271", 50)

	paid, err := repo.MarkPaid(context.Background(), order.ID, "ABC123", "")
	require.NoError(t, err)
	assert.Equal(t, "Wyckyaustin", paid.CustomerName)
}

func TestOrderRepository_MarkFailed(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := createOrder(t, repo, "254722275271", 50)

	failed, err := repo.MarkFailed(ctx, order.ID, "Request cancelled by user")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFailed, failed.Status)
	assert.Equal(t, "Request cancelled by user", failed.FailureReason)
	assert.Empty(t, failed.Receipt)

	_, err = repo.MarkPaid(ctx, order.ID, "ABC123", "")
	assert.ErrorIs(t, err, models.ErrAlreadyTerminal)

	_, err = repo.MarkFailed(ctx, "CPUNKNOWN", "x")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestOrderRepository_ConcurrentTransitionsSingleWinner(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := createOrder(t, repo, "254722275271", 50)

	const writers = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		terminal int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = repo.MarkPaid(ctx, order.ID, "ABC123", "")
			} else {
				_, err = repo.MarkFailed(ctx, order.ID, "failed")
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case assert.ErrorIs(t, err, models.ErrAlreadyTerminal):
				terminal++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, terminal)
}

func TestOrderRepository_CheckoutID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	order := createOrder(t, repo, "254722275271", 50)
	other := createOrder(t, repo, "254722275271", 60)

	require.NoError(t, repo.AttachCheckoutID(ctx, order.ID, "ws_CO_191220191020363925"))
	// already attached, left unchanged
	require.NoError(t, repo.AttachCheckoutID(ctx, order.ID, "ws_CO_other"))
	assert.ErrorIs(t, repo.AttachCheckoutID(ctx, other.ID, "ws_CO_191220191020363925"), models.ErrConflictData)

	got, err := repo.GetOrderByCheckoutID(ctx, "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, "ws_CO_191220191020363925", got.CheckoutRequestID)

	_, err = repo.GetOrderByCheckoutID(ctx, "ws_CO_other")
	assert.ErrorIs(t, err, models.ErrDataNotFound)
}

func TestOrderRepository_ListStalePending(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }
	stale := createOrder(t, repo, "254722275271", 50)
	stalePaid := createOrder(t, repo, "254722275271", 60)
	_, err := repo.MarkPaid(ctx, stalePaid.ID, "ABC123", "")
	require.NoError(t, err)

	repo.now = func() time.Time { return base.Add(time.Hour) }
	createOrder(t, repo, "254722275271", 70)

	orders, err := repo.ListStalePending(ctx, base.Add(30*time.Minute))
	require.NoError(t, err)

	want := []models.Order{*stale}
	if diff := cmp.Diff(want, orders, cmpopts.EquateApproxTime(time.Millisecond)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestOrderRepository_ListOrdersNewestFirst(t *testing.T) {
	repo := newTestRepository(t)

	first := createOrder(t, repo, "254722275271", 50)
	second := createOrder(t, repo, "254700000000", 100)

	orders, err := repo.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}
