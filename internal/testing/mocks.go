package testing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/swingsentinel/internal/domain"
)

// MockMarketDataProvider is a mock implementation of domain.MarketDataProvider
// and domain.VolatilityRegimeProvider.
type MockMarketDataProvider struct {
	mu        sync.Mutex
	bars      map[string]domain.Bars
	errs      map[string]error
	fx        map[string]float64
	regime    domain.MarketRegime
	volRegime domain.VolatilityRegime
	calls     map[string]int
}

// NewMockMarketDataProvider creates a provider with a SIDEWAYS / NORMAL market.
func NewMockMarketDataProvider() *MockMarketDataProvider {
	return &MockMarketDataProvider{
		bars:      make(map[string]domain.Bars),
		errs:      make(map[string]error),
		fx:        make(map[string]float64),
		regime:    domain.RegimeSideways,
		volRegime: domain.VolNormal,
		calls:     make(map[string]int),
	}
}

// SetBars sets the bars returned for ticker.
func (m *MockMarketDataProvider) SetBars(ticker string, bars domain.Bars) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[strings.ToUpper(ticker)] = bars
}

// SetError makes GetDailyBars fail for ticker.
func (m *MockMarketDataProvider) SetError(ticker string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[strings.ToUpper(ticker)] = err
}

// SetFXRate sets the rate for from->to.
func (m *MockMarketDataProvider) SetFXRate(from, to string, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fx[from+":"+to] = rate
}

// SetRegime sets both regimes.
func (m *MockMarketDataProvider) SetRegime(trend domain.MarketRegime, vol domain.VolatilityRegime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regime = trend
	m.volRegime = vol
}

// Calls returns how many times bars were requested for ticker.
func (m *MockMarketDataProvider) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[strings.ToUpper(ticker)]
}

// GetDailyBars mock implementation
func (m *MockMarketDataProvider) GetDailyBars(ctx context.Context, ticker string) (domain.Bars, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticker = strings.ToUpper(ticker)
	m.calls[ticker]++
	if err := m.errs[ticker]; err != nil {
		return nil, err
	}
	bars, ok := m.bars[ticker]
	if !ok {
		return nil, fmt.Errorf("no bars for %s", ticker)
	}
	return bars, nil
}

// GetFXRate mock implementation
func (m *MockMarketDataProvider) GetFXRate(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rate, ok := m.fx[from+":"+to]
	if !ok {
		return 0, fmt.Errorf("no rate for %s->%s", from, to)
	}
	return rate, nil
}

// GetMarketRegime mock implementation
func (m *MockMarketDataProvider) GetMarketRegime(ctx context.Context) (domain.MarketRegime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regime, nil
}

// GetVolatilityRegime mock implementation
func (m *MockMarketDataProvider) GetVolatilityRegime(ctx context.Context) (domain.VolatilityRegime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volRegime, nil
}

// MockPositionStore is an in-memory domain.PositionStore. UpdateProtection holds a
// store-wide lock across read, mutate and write, like a database transaction.
type MockPositionStore struct {
	mu        sync.Mutex
	positions map[int64]domain.Position
	history   map[int64][]domain.StopHistoryEntry
	nextID    int64
	err       error
}

// NewMockPositionStore creates an empty store.
func NewMockPositionStore() *MockPositionStore {
	return &MockPositionStore{
		positions: make(map[int64]domain.Position),
		history:   make(map[int64][]domain.StopHistoryEntry),
	}
}

// SetError makes every call fail with err.
func (m *MockPositionStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Add stores p and returns its id.
func (m *MockPositionStore) Add(p domain.Position) int64 {
	id, _ := m.Create(context.Background(), p)
	return id
}

// GetOpen mock implementation
func (m *MockPositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	all, err := m.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]domain.Position, 0, len(all))
	for _, p := range all {
		if p.Status == domain.PositionOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

// GetAll mock implementation
func (m *MockPositionStore) GetAll(ctx context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID mock implementation
func (m *MockPositionStore) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.positions[id]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return &p, nil
}

// Create mock implementation
func (m *MockPositionStore) Create(ctx context.Context, p domain.Position) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.nextID++
	p.ID = m.nextID
	if p.Status == "" {
		p.Status = domain.PositionOpen
	}
	m.positions[p.ID] = p
	return p.ID, nil
}

// Close mock implementation
func (m *MockPositionStore) Close(ctx context.Context, id int64, exitPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p, ok := m.positions[id]
	if !ok {
		return domain.ErrPositionNotFound
	}
	p.Status = domain.PositionClosed
	p.ExitPrice = &exitPrice
	m.positions[id] = p
	return nil
}

// UpdateProtection mock implementation
func (m *MockPositionStore) UpdateProtection(ctx context.Context, id int64, mutate domain.ProtectionMutation) (*domain.StopHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.positions[id]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}

	entry, err := mutate(p)
	if err != nil || entry == nil {
		return nil, err
	}

	p.Protection = domain.ProtectionState{Level: entry.Level, Stop: entry.NewStop}
	m.positions[id] = p
	m.history[id] = append(m.history[id], *entry)
	return entry, nil
}

// GetStopHistory mock implementation
func (m *MockPositionStore) GetStopHistory(ctx context.Context, positionID int64) ([]domain.StopHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.StopHistoryEntry(nil), m.history[positionID]...), nil
}

// MockExpectancyStore is an in-memory domain.ExpectancyStore.
type MockExpectancyStore struct {
	mu     sync.Mutex
	slices map[domain.ExpectancyKey]domain.ExpectancySlice
	err    error
}

// NewMockExpectancyStore creates an empty store.
func NewMockExpectancyStore() *MockExpectancyStore {
	return &MockExpectancyStore{slices: make(map[domain.ExpectancyKey]domain.ExpectancySlice)}
}

// SetSlice stores a slice under its key.
func (m *MockExpectancyStore) SetSlice(s domain.ExpectancySlice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slices[s.Key] = s
}

// SetError makes GetSlice fail.
func (m *MockExpectancyStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetSlice mock implementation
func (m *MockExpectancyStore) GetSlice(ctx context.Context, key domain.ExpectancyKey) (*domain.ExpectancySlice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.slices[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// ReplaceAll mock implementation
func (m *MockExpectancyStore) ReplaceAll(ctx context.Context, slices []domain.ExpectancySlice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.slices = make(map[domain.ExpectancyKey]domain.ExpectancySlice, len(slices))
	for _, s := range slices {
		m.slices[s.Key] = s
	}
	return nil
}

// MockSectorMomentumCache is an in-memory domain.SectorMomentumCache without TTL.
type MockSectorMomentumCache struct {
	mu      sync.RWMutex
	returns map[string]float64
}

// NewMockSectorMomentumCache creates an empty cache.
func NewMockSectorMomentumCache() *MockSectorMomentumCache {
	return &MockSectorMomentumCache{returns: make(map[string]float64)}
}

// Get mock implementation
func (m *MockSectorMomentumCache) Get(sector string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.returns[sector]
	return r, ok
}

// Set mock implementation
func (m *MockSectorMomentumCache) Set(sector string, twentyDayReturn float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returns[sector] = twentyDayReturn
	return nil
}

// Clear mock implementation
func (m *MockSectorMomentumCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returns = make(map[string]float64)
	return nil
}
