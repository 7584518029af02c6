package grocery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"sustainplate/m/domain"
	"sustainplate/m/internal/apperr"
	"sustainplate/m/internal/database"
	"sustainplate/m/internal/migrations"
)

type fakeEstimator struct {
	days  map[string]int
	err   error
	calls []string
}

func (f *fakeEstimator) EstimateShelfLifeDays(_ context.Context, name string) (int, error) {
	f.calls = append(f.calls, name)
	if f.err != nil {
		return 0, f.err
	}
	return f.days[name], nil
}

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(db))
	return db
}

func countRows(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM groceries`))
	return n
}

func newTestStore(t *testing.T, est *fakeEstimator) (*Store, *sqlx.DB) {
	db := openTestDB(t)
	return NewStore(db, est, WithClock(func() time.Time { return fixedNow })), db
}

func TestCreateComputesExpiryAndRoundTrips(t *testing.T) {
	est := &fakeEstimator{days: map[string]int{"apples": 21}}
	store, _ := newTestStore(t, est)
	ctx := context.Background()

	item, err := store.Create(ctx, NewItem{Name: "apples", Quantity: 6})
	require.NoError(t, err)
	require.NotZero(t, item.ID)
	require.Equal(t, fixedNow.UnixMilli(), item.PurchaseDate)
	require.Equal(t, fixedNow.Add(21*24*time.Hour).UnixMilli(), item.EstimatedExpiryDate)
	require.GreaterOrEqual(t, item.EstimatedExpiryDate, item.PurchaseDate)
	require.Equal(t, []string{"apples"}, est.calls)

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.GroceryItem{item}, items)
}

func TestCreateAssignsFreshIDs(t *testing.T) {
	store, _ := newTestStore(t, &fakeEstimator{days: map[string]int{"milk": 7}})
	ctx := context.Background()

	seen := map[int64]bool{}
	var last int64
	for i := 0; i < 5; i++ {
		item, err := store.Create(ctx, NewItem{Name: "milk", Quantity: 1})
		require.NoError(t, err)
		require.False(t, seen[item.ID])
		require.Greater(t, item.ID, last)
		seen[item.ID] = true
		last = item.ID
	}

	// AUTOINCREMENT never reuses ids of deleted rows
	_, err := store.DeleteByID(ctx, last)
	require.NoError(t, err)
	next, err := store.Create(ctx, NewItem{Name: "milk", Quantity: 1})
	require.NoError(t, err)
	require.Greater(t, next.ID, last)
}

func TestCreateUsesInlineShelfLife(t *testing.T) {
	est := &fakeEstimator{err: errors.New("should not be called")}
	store, _ := newTestStore(t, est)
	days := 3

	item, err := store.Create(context.Background(), NewItem{Name: " yogurt ", Quantity: 2, ShelfLifeDays: &days})
	require.NoError(t, err)
	require.Equal(t, "yogurt", item.Name)
	require.Equal(t, item.PurchaseDate+3*domain.Day, item.EstimatedExpiryDate)
	require.Empty(t, est.calls)
}

func TestCreateValidatesBeforeAnySideEffect(t *testing.T) {
	est := &fakeEstimator{days: map[string]int{}}
	store, db := newTestStore(t, est)
	negative := -1
	centuries := 200_000_000_000

	for _, in := range []NewItem{
		{Name: "", Quantity: 1},
		{Name: "   ", Quantity: 1},
		{Name: "eggs", Quantity: 0},
		{Name: "eggs", Quantity: -4},
		{Name: "eggs", Quantity: 1, ShelfLifeDays: &negative},
		{Name: "salt", Quantity: 1, ShelfLifeDays: &centuries},
	} {
		_, err := store.Create(context.Background(), in)
		require.ErrorIs(t, err, apperr.ErrValidation, "input %+v", in)
	}
	require.Empty(t, est.calls)
	require.Zero(t, countRows(t, db))
}

func TestCreateWritesNothingWhenEstimationFails(t *testing.T) {
	est := &fakeEstimator{err: apperr.Upstream(errors.New("503"), "upstream service unavailable")}
	store, db := newTestStore(t, est)

	_, err := store.Create(context.Background(), NewItem{Name: "bread", Quantity: 1})
	require.ErrorIs(t, err, apperr.ErrUpstream)
	require.Zero(t, countRows(t, db))
}

func TestCreateRejectsOutOfRangeEstimates(t *testing.T) {
	for _, days := range []int{-1, domain.MaxShelfLifeDays + 1, 200_000_000_000} {
		est := &fakeEstimator{days: map[string]int{"salt": days}}
		store, db := newTestStore(t, est)

		_, err := store.Create(context.Background(), NewItem{Name: "salt", Quantity: 1})
		require.ErrorIs(t, err, apperr.ErrUpstream, "days %d", days)
		require.Zero(t, countRows(t, db))
	}
}

func TestCreateAcceptsLongestShelfLife(t *testing.T) {
	store, _ := newTestStore(t, &fakeEstimator{})
	days := domain.MaxShelfLifeDays

	item, err := store.Create(context.Background(), NewItem{Name: "honey", Quantity: 1, ShelfLifeDays: &days})
	require.NoError(t, err)
	require.Greater(t, item.EstimatedExpiryDate, item.PurchaseDate)
}

func TestCreateReportsStorageFailures(t *testing.T) {
	store, db := newTestStore(t, &fakeEstimator{days: map[string]int{"rice": 365}})
	require.NoError(t, db.Close())

	_, err := store.Create(context.Background(), NewItem{Name: "rice", Quantity: 1})
	require.ErrorIs(t, err, apperr.ErrStorage)
}

func TestDeleteByIDIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, &fakeEstimator{days: map[string]int{"kale": 5, "feta": 10}})
	ctx := context.Background()

	kale, err := store.Create(ctx, NewItem{Name: "kale", Quantity: 1})
	require.NoError(t, err)
	feta, err := store.Create(ctx, NewItem{Name: "feta", Quantity: 1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		msg, err := store.DeleteByID(ctx, kale.ID)
		require.NoError(t, err)
		require.Contains(t, msg, "deleted")
	}

	items, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.GroceryItem{feta}, items)

	_, err = store.DeleteByID(ctx, 9999)
	require.NoError(t, err)
}

func TestListAllOnEmptyTableReturnsEmptySlice(t *testing.T) {
	store, _ := newTestStore(t, &fakeEstimator{})

	items, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
}

func TestExpiringSelectsItemsInsideWindow(t *testing.T) {
	est := &fakeEstimator{days: map[string]int{"spinach": 2, "eggs": 7, "rice": 365}}
	store, db := newTestStore(t, est)
	ctx := context.Background()

	for _, name := range []string{"spinach", "eggs", "rice"} {
		_, err := store.Create(ctx, NewItem{Name: name, Quantity: 1})
		require.NoError(t, err)
	}
	_, err := db.Exec(`INSERT INTO groceries (name, quantity, purchase_date, estimated_expiry_date) VALUES (?, ?, ?, ?)`,
		"old milk", 1, fixedNow.Add(-10*24*time.Hour).UnixMilli(), fixedNow.Add(-3*24*time.Hour).UnixMilli())
	require.NoError(t, err)

	items, err := store.Expiring(ctx, DefaultExpiringWindow)
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	require.Equal(t, []string{"spinach", "eggs"}, names)

	items, err = store.Expiring(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "spinach", items[0].Name)
}
