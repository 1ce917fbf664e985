package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/database"
	"pharmapos/m/internal/database/databasetest"
	"pharmapos/m/internal/events"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/store"
	"pharmapos/m/internal/store/memstore"
	"pharmapos/m/internal/store/sqlstore"
)

var startTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

type storeFactory struct {
	name string
	open func(t *testing.T) store.Store
}

var storeFactories = []storeFactory{
	{name: "memory", open: func(t *testing.T) store.Store {
		return memstore.New()
	}},
	{name: "sqlite", open: func(t *testing.T) store.Store {
		db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		require.NoError(t, migrations.Run(db))
		return sqlstore.New(db)
	}},
	{name: "postgres", open: func(t *testing.T) store.Store {
		db := databasetest.Postgres(t)
		require.NoError(t, migrations.Run(db))
		return sqlstore.New(db)
	}},
}

type fixture struct {
	st    store.Store
	svc   *Service
	clock *testClock
	pub   *recordingPublisher
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	wrap   func(store.Store) store.Store
	pub    events.Publisher
	logger *zap.Logger
}

func withStoreWrapper(wrap func(store.Store) store.Store) fixtureOption {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func withPublisher(pub events.Publisher) fixtureOption {
	return func(c *fixtureConfig) { c.pub = pub }
}

func withLogger(logger *zap.Logger) fixtureOption {
	return func(c *fixtureConfig) { c.logger = logger }
}

// forEachStore runs fn against every store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture), opts ...fixtureOption) {
	for _, factory := range storeFactories {
		t.Run(factory.name, func(t *testing.T) {
			cfg := fixtureConfig{}
			for _, opt := range opts {
				opt(&cfg)
			}

			st := factory.open(t)
			t.Cleanup(func() { st.Close() })

			rec := &recordingPublisher{}
			var pub events.Publisher = rec
			if cfg.pub != nil {
				pub = cfg.pub
			}
			svcStore := st
			if cfg.wrap != nil {
				svcStore = cfg.wrap(st)
			}

			clock := &testClock{now: startTime}
			svc := New(svcStore, pub, cfg.logger, WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
			fn(t, &fixture{st: st, svc: svc, clock: clock, pub: rec})
		})
	}
}

// seed inserts medicines directly into the store with fixed ids.
func (f *fixture) seed(t *testing.T, medicines ...domain.Medicine) {
	for _, m := range medicines {
		m.CreatedAt = startTime
		m.UpdatedAt = startTime
		if m.Category == "" {
			m.Category = "General"
		}
		if m.ReorderThreshold == 0 {
			m.ReorderThreshold = domain.DefaultReorderThreshold
		}
		_, err := f.st.Inventory().Insert(context.Background(), m)
		require.NoError(t, err)
	}
}

func (f *fixture) seedCatalogue(t *testing.T) {
	f.seed(t,
		domain.Medicine{ID: "p1", Name: "Paracetamol", Category: "Pain Relief", UnitPrice: decimal.RequireFromString("2.50"), Stock: 100},
		domain.Medicine{ID: "p2", Name: "Amoxicillin", Category: "Antibiotic", UnitPrice: decimal.RequireFromString("12.00"), Stock: 5},
	)
}

func (f *fixture) stock(t *testing.T, id string) int {
	m, err := f.st.Inventory().Get(context.Background(), id)
	require.NoError(t, err)
	return m.Stock
}

type snapshot struct {
	stocks         map[string]int
	transactionIDs []string
}

func (f *fixture) snapshot(t *testing.T) snapshot {
	ctx := context.Background()
	medicines, err := f.st.Inventory().List(ctx)
	require.NoError(t, err)
	records, err := f.st.Transactions().List(ctx, store.TransactionFilter{})
	require.NoError(t, err)

	snap := snapshot{stocks: make(map[string]int, len(medicines)), transactionIDs: []string{}}
	for _, m := range medicines {
		snap.stocks[m.ID] = m.Stock
	}
	for _, rec := range records {
		snap.transactionIDs = append(snap.transactionIDs, rec.ID)
	}
	return snap
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.SaleCompletedEvent
}

func (p *recordingPublisher) PublishSaleCompleted(_ context.Context, event events.SaleCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []events.SaleCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.SaleCompletedEvent(nil), p.events...)
}

type failingPublisher struct{}

func (failingPublisher) PublishSaleCompleted(context.Context, events.SaleCompletedEvent) error {
	return errors.New("broker unavailable")
}

func (failingPublisher) Close() error { return nil }

// failingStore makes every transaction append inside WithinTx fail.
type failingStore struct {
	store.Store
}

func (s failingStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{tx})
	})
}

// racingStore reports every stock decrement as lost to a competing sale,
// while leaving the stored stock untouched.
type racingStore struct {
	store.Store
}

func (s racingStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(racingTx{tx})
	})
}

type racingTx struct {
	store.Tx
}

func (t racingTx) Inventory() store.Inventory {
	return racingInventory{t.Tx.Inventory()}
}

type racingInventory struct {
	store.Inventory
}

func (racingInventory) DecrementStock(context.Context, string, int) (int, error) {
	return 0, domain.ErrInsufficientStock
}

type failingTx struct {
	store.Tx
}

func (t failingTx) Transactions() store.Transactions {
	return failingTransactions{t.Tx.Transactions()}
}

type failingTransactions struct {
	store.Transactions
}

func (failingTransactions) Append(context.Context, domain.Transaction) (*domain.Transaction, error) {
	return nil, errors.New("disk full")
}
