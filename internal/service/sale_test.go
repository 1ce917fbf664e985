package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pharmapos/m/domain"
	"pharmapos/m/internal/store"
)

func TestProcessSale_Paracetamol(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		ctx := context.Background()

		tx, err := f.svc.ProcessSale(ctx, []domain.CartLine{{MedicineID: "p1", Quantity: 3}})
		require.NoError(t, err)

		assert.Equal(t, "id-1", tx.ID)
		assert.True(t, tx.CreatedAt.Equal(startTime))
		assert.True(t, tx.TotalAmount.Equal(decimal.RequireFromString("7.50")), "total %s", tx.TotalAmount)
		require.Len(t, tx.Lines, 1)
		assert.Equal(t, "p1", tx.Lines[0].MedicineID)
		assert.Equal(t, 3, tx.Lines[0].Quantity)
		assert.Equal(t, "Paracetamol", tx.Lines[0].NameSnapshot)
		assert.True(t, tx.Lines[0].PriceAtSale.Equal(decimal.RequireFromString("2.50")))

		assert.Equal(t, 97, f.stock(t, "p1"))

		stored, err := f.svc.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.True(t, stored.TotalAmount.Equal(tx.TotalAmount))
		require.Len(t, stored.Lines, 1)
		assert.Equal(t, "Paracetamol", stored.Lines[0].NameSnapshot)

		history, err := f.svc.ListTransactions(ctx, TransactionQuery{})
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, tx.ID, history[0].ID)
	})
}

func TestProcessSale_InsufficientStock(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		_, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{{MedicineID: "p2", Quantity: 6}})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "p2", stockErr.MedicineID)
		assert.Equal(t, 6, stockErr.Requested)
		assert.Equal(t, 5, stockErr.Available)
		assert.Equal(t, 1, stockErr.Shortfall())

		assert.Equal(t, before, f.snapshot(t))
		assert.Empty(t, f.pub.published())
	})
}

func TestProcessSale_WorkedExamples(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seed(t, domain.Medicine{ID: "med-1", Name: "Paracetamol", UnitPrice: decimal.RequireFromString("5.0"), Stock: 10})
		ctx := context.Background()

		_, err := f.svc.ProcessSale(ctx, []domain.CartLine{{MedicineID: "med-1", Quantity: 11}})
		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 11, stockErr.Requested)
		assert.Equal(t, 10, stockErr.Available)
		assert.Equal(t, 1, stockErr.Shortfall())
		assert.Equal(t, 10, f.stock(t, "med-1"))

		tx, err := f.svc.ProcessSale(ctx, []domain.CartLine{{MedicineID: "med-1", Quantity: 3}})
		require.NoError(t, err)
		assert.True(t, tx.TotalAmount.Equal(decimal.RequireFromString("15.0")), "total %s", tx.TotalAmount)
		require.Len(t, tx.Lines, 1)
		assert.True(t, tx.Lines[0].PriceAtSale.Equal(decimal.RequireFromString("5.0")))
		assert.Equal(t, 7, f.stock(t, "med-1"))
	})
}

func TestProcessSale_LostRaceReportsPositiveShortfall(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		_, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{{MedicineID: "p2", Quantity: 4}})
		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 4, stockErr.Requested)
		assert.Equal(t, 3, stockErr.Available)
		assert.Equal(t, 1, stockErr.Shortfall())
		assert.Equal(t, before, f.snapshot(t))
	}, withStoreWrapper(func(st store.Store) store.Store { return racingStore{st} }))
}

func TestProcessSale_LaterLineFailureLeavesEarlierLinesUntouched(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		_, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{
			{MedicineID: "p1", Quantity: 3},
			{MedicineID: "p2", Quantity: 6},
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		assert.Equal(t, before, f.snapshot(t))
		assert.Equal(t, 100, f.stock(t, "p1"))
	})
}

func TestProcessSale_UnknownMedicine(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		_, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{
			{MedicineID: "p1", Quantity: 1},
			{MedicineID: "ghost", Quantity: 1},
		})
		require.ErrorIs(t, err, domain.ErrUnknownMedicine)

		var unknown *domain.UnknownMedicineError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "ghost", unknown.MedicineID)
		assert.Equal(t, before, f.snapshot(t))
	})
}

func TestProcessSale_Validation(t *testing.T) {
	cases := []struct {
		name string
		cart []domain.CartLine
	}{
		{name: "empty cart", cart: nil},
		{name: "zero quantity", cart: []domain.CartLine{{MedicineID: "p1", Quantity: 0}}},
		{name: "negative quantity", cart: []domain.CartLine{{MedicineID: "p1", Quantity: -2}}},
		{name: "blank medicine id", cart: []domain.CartLine{{MedicineID: "  ", Quantity: 1}}},
		{name: "one bad line among good ones", cart: []domain.CartLine{
			{MedicineID: "p1", Quantity: 1},
			{MedicineID: "p2", Quantity: 0},
		}},
		{name: "repeated lines wrap to a small quantity", cart: []domain.CartLine{
			{MedicineID: "p1", Quantity: math.MaxInt},
			{MedicineID: "p1", Quantity: math.MaxInt},
			{MedicineID: "p1", Quantity: 4},
		}},
		{name: "repeated lines exceed max int", cart: []domain.CartLine{
			{MedicineID: "p1", Quantity: math.MaxInt},
			{MedicineID: "p1", Quantity: 1},
		}},
	}

	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.svc.ProcessSale(context.Background(), tc.cart)
				assert.ErrorIs(t, err, domain.ErrValidation)
				assert.Equal(t, before, f.snapshot(t))
			})
		}
	})
}

func TestProcessSale_MergesRepeatedMedicine(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		ctx := context.Background()

		_, err := f.svc.ProcessSale(ctx, []domain.CartLine{
			{MedicineID: "p2", Quantity: 3},
			{MedicineID: "p2", Quantity: 3},
		})
		var stockErr *domain.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, 6, stockErr.Requested)
		assert.Equal(t, 5, f.stock(t, "p2"))

		tx, err := f.svc.ProcessSale(ctx, []domain.CartLine{
			{MedicineID: "p1", Quantity: 2},
			{MedicineID: "p2", Quantity: 1},
			{MedicineID: "p1", Quantity: 1},
		})
		require.NoError(t, err)
		require.Len(t, tx.Lines, 2)
		assert.Equal(t, "p1", tx.Lines[0].MedicineID)
		assert.Equal(t, 3, tx.Lines[0].Quantity)
		assert.Equal(t, 97, f.stock(t, "p1"))
		assert.Equal(t, 4, f.stock(t, "p2"))
	})
}

func TestProcessSale_TotalIsSumOfLines(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		f.seed(t, domain.Medicine{ID: "p3", Name: "Ibuprofen", UnitPrice: decimal.RequireFromString("0.10"), Stock: 50})

		tx, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{
			{MedicineID: "p1", Quantity: 3},
			{MedicineID: "p2", Quantity: 2},
			{MedicineID: "p3", Quantity: 3},
		})
		require.NoError(t, err)

		// 7.50 + 24.00 + 0.30
		assert.True(t, tx.TotalAmount.Equal(decimal.RequireFromString("31.80")), "total %s", tx.TotalAmount)
		assert.True(t, tx.TotalAmount.Equal(tx.ComputeTotal()))

		stored, err := f.svc.GetTransaction(context.Background(), tx.ID)
		require.NoError(t, err)
		assert.True(t, stored.TotalAmount.Equal(stored.ComputeTotal()))
	})
}

func TestProcessSale_SnapshotSurvivesMedicineChanges(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		ctx := context.Background()

		tx, err := f.svc.ProcessSale(ctx, []domain.CartLine{{MedicineID: "p1", Quantity: 2}})
		require.NoError(t, err)

		name := "Paracetamol Extra"
		price := decimal.RequireFromString("9.99")
		_, err = f.svc.UpdateMedicine(ctx, "p1", domain.MedicinePatch{Name: &name, UnitPrice: &price})
		require.NoError(t, err)

		stored, err := f.svc.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, "Paracetamol", stored.Lines[0].NameSnapshot)
		assert.True(t, stored.Lines[0].PriceAtSale.Equal(decimal.RequireFromString("2.50")))

		require.NoError(t, f.svc.DeleteMedicine(ctx, "p1"))
		stored, err = f.svc.GetTransaction(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, "p1", stored.Lines[0].MedicineID)
		assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("5.00")))
	})
}

func TestProcessSale_PersistenceFailureRollsBack(t *testing.T) {
	wrap := withStoreWrapper(func(st store.Store) store.Store { return failingStore{st} })
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)
		before := f.snapshot(t)

		_, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{{MedicineID: "p1", Quantity: 3}})
		require.ErrorIs(t, err, domain.ErrPersistence)

		var persistErr *domain.PersistenceError
		require.ErrorAs(t, err, &persistErr)
		assert.EqualError(t, errors.Unwrap(persistErr), "disk full")

		assert.Equal(t, before, f.snapshot(t))
		assert.Empty(t, f.pub.published())
	}, wrap)
}

func TestProcessSale_ConcurrentSalesNeverOversell(t *testing.T) {
	const (
		quantity = 5
		buyers   = 10
	)
	forEachStore(t, func(t *testing.T, f *fixture) {
		// 2Q-1 units: only one of two buyers of Q can succeed
		f.seed(t, domain.Medicine{ID: "p1", Name: "Paracetamol", UnitPrice: decimal.NewFromInt(1), Stock: 2*quantity - 1})
		ctx := context.Background()

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			shortages int
		)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.ProcessSale(ctx, []domain.CartLine{{MedicineID: "p1", Quantity: quantity}})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, domain.ErrInsufficientStock):
					shortages++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, buyers-1, shortages)
		assert.Equal(t, quantity-1, f.stock(t, "p1"))

		history, err := f.svc.ListTransactions(ctx, TransactionQuery{})
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestProcessSale_ConcurrentSalesAcrossMedicines(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seed(t,
			domain.Medicine{ID: "p1", Name: "Paracetamol", UnitPrice: decimal.NewFromInt(1), Stock: 50},
			domain.Medicine{ID: "p2", Name: "Amoxicillin", UnitPrice: decimal.NewFromInt(2), Stock: 50},
		)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.ProcessSale(ctx, []domain.CartLine{
					{MedicineID: "p1", Quantity: 3},
					{MedicineID: "p2", Quantity: 2},
				})
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInsufficientStock)
				}
			}()
		}
		wg.Wait()

		history, err := f.svc.ListTransactions(ctx, TransactionQuery{})
		require.NoError(t, err)
		// p1 runs out after 16 sales
		assert.Len(t, history, 16)
		assert.Equal(t, 2, f.stock(t, "p1"))
		assert.Equal(t, 18, f.stock(t, "p2"))
	})
}

func TestProcessSale_PublishesEvent(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)

		tx, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{{MedicineID: "p1", Quantity: 3}})
		require.NoError(t, err)

		published := f.pub.published()
		require.Len(t, published, 1)
		assert.Equal(t, tx.ID, published[0].TransactionID)
		assert.Equal(t, 3, published[0].ItemCount)
		require.Len(t, published[0].Lines, 1)
		assert.Equal(t, 97, published[0].Lines[0].Remaining)
	})
}

func TestProcessSale_PublishFailureDoesNotFailSale(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	forEachStore(t, func(t *testing.T, f *fixture) {
		f.seedCatalogue(t)

		tx, err := f.svc.ProcessSale(context.Background(), []domain.CartLine{{MedicineID: "p1", Quantity: 1}})
		require.NoError(t, err)
		assert.Equal(t, 99, f.stock(t, "p1"))

		failures := logs.FilterMessage("failed to publish sale event").FilterField(zap.String("transaction_id", tx.ID))
		assert.Equal(t, 1, failures.Len())
		logs.TakeAll()
	}, withPublisher(failingPublisher{}), withLogger(zap.New(core)))
}

func TestMergeCart(t *testing.T) {
	merged, err := mergeCart([]domain.CartLine{
		{MedicineID: " p1 ", Quantity: 1},
		{MedicineID: "p2", Quantity: 2},
		{MedicineID: "p1", Quantity: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{
		{MedicineID: "p1", Quantity: 5},
		{MedicineID: "p2", Quantity: 2},
	}, merged)
}

func TestMergeCart_RejectsOverflowingQuantity(t *testing.T) {
	_, err := mergeCart([]domain.CartLine{
		{MedicineID: "p1", Quantity: math.MaxInt - 1},
		{MedicineID: "p1", Quantity: 1},
	})
	require.NoError(t, err)

	_, err = mergeCart([]domain.CartLine{
		{MedicineID: "p1", Quantity: math.MaxInt - 1},
		{MedicineID: "p1", Quantity: 2},
	})
	var valErr *domain.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "quantity", valErr.Field)
}
