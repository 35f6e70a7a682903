package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront-backend/internal/domain"
	infracache "storefront-backend/internal/infrastructure/cache"
	"storefront-backend/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockShippingRepository struct {
	mock.Mock
}

var _ domain.ShippingRepository = (*MockShippingRepository)(nil)

func (m *MockShippingRepository) LoadCatalog(ctx context.Context) (*domain.Catalog, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Catalog), args.Error(1)
}

func (m *MockShippingRepository) ListZones(ctx context.Context) ([]domain.Zone, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Zone), args.Error(1)
}

func (m *MockShippingRepository) GetZone(ctx context.Context, id string) (*domain.Zone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Zone), args.Error(1)
}

func (m *MockShippingRepository) CreateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	args := m.Called(ctx, zone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Zone), args.Error(1)
}

func (m *MockShippingRepository) UpdateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	args := m.Called(ctx, zone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Zone), args.Error(1)
}

func (m *MockShippingRepository) DeleteZone(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockShippingRepository) CreateRule(ctx context.Context, rule *domain.ZoneRule) (*domain.ZoneRule, error) {
	args := m.Called(ctx, rule)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ZoneRule), args.Error(1)
}

func (m *MockShippingRepository) DeleteRule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockShippingRepository) CreateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	args := m.Called(ctx, rate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ZoneRate), args.Error(1)
}

func (m *MockShippingRepository) UpdateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	args := m.Called(ctx, rate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ZoneRate), args.Error(1)
}

func (m *MockShippingRepository) DeleteRate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockShippingRepository) GetFallback(ctx context.Context) (*domain.FallbackSettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FallbackSettings), args.Error(1)
}

func (m *MockShippingRepository) UpdateFallback(ctx context.Context, settings *domain.FallbackSettings) (*domain.FallbackSettings, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FallbackSettings), args.Error(1)
}

type MockSnapshotStorage struct {
	mock.Mock
}

func (m *MockSnapshotStorage) UploadBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

// inlineTx runs fn without a real transaction.
type inlineTx struct{ calls int }

func (t *inlineTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func ptr(f float64) *float64 { return &f }

func testCatalog() *domain.Catalog {
	return &domain.Catalog{
		Zones: []domain.Zone{
			{
				ID: "country", Name: "Canada", Priority: 0, Enabled: true,
				Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCountry, RuleValue: "CA"}},
				Rates: []domain.ZoneRate{{ID: "ca-std", MethodName: "Standard", RateAmount: 20, Enabled: true}},
			},
			{
				ID: "gta", Name: "GTA", Priority: 10, Enabled: true,
				Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCity, RuleValue: "TORONTO"}},
				Rates: []domain.ZoneRate{
					{ID: "gta-express", MethodName: "Express", RateAmount: 15, Enabled: true, DisplayOrder: 2},
					{ID: "gta-std", MethodName: "Standard", RateAmount: 8, FreeThreshold: ptr(60), Enabled: true, DisplayOrder: 1},
				},
			},
			{
				ID: "hidden", Name: "Hidden", Priority: 100, Enabled: false,
				Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCountry, RuleValue: "CA"}},
			},
		},
		Fallback: &domain.FallbackSettings{FallbackRate: 25, FallbackMethodName: "International", Enabled: true},
	}
}

func newTestUsecase(repo *MockShippingRepository, storage domain.SnapshotStorage) (*ShippingUsecase, *inlineTx) {
	store := infracache.NewMemoryCache(time.Minute, time.Minute)
	tx := &inlineTx{}
	var writable domain.ShippingRepository
	if repo != nil {
		writable = repo
	}
	uc := NewShippingUsecase(repo, writable, tx, infracache.NewMemoryCatalogCache(store, time.Minute), store, storage, time.Minute)
	return uc, tx
}

var toronto = domain.Address{City: "toronto", Province: "ON", Country: "CA"}

func TestQuote_MatchedZoneFromItems(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil).Once()
	uc, _ := newTestUsecase(repo, nil)

	res, err := uc.Quote(context.Background(), QuoteReq{
		Address: toronto,
		Items:   []domain.LineItem{{Quantity: 2, UnitPrice: 35}},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ResolutionMatched, res.Status)
	require.NotNil(t, res.MatchedZone)
	assert.Equal(t, "gta", res.MatchedZone.ID)
	require.Len(t, res.Rates, 2)
	assert.Equal(t, "gta-std", res.Rates[0].ID)
	assert.True(t, res.Rates[0].IsFree)
	assert.Equal(t, 0.0, res.Rates[0].RateAmount)
	assert.False(t, res.Rates[1].IsFree)

	// second call is served from the cached snapshot
	_, err = uc.Quote(context.Background(), QuoteReq{Address: toronto, Subtotal: ptr(10)})
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "LoadCatalog", 1)
}

func TestQuote_ExplicitSubtotalWins(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)
	uc, _ := newTestUsecase(repo, nil)

	res, err := uc.Quote(context.Background(), QuoteReq{
		Address:  toronto,
		Subtotal: ptr(40),
		Items:    []domain.LineItem{{Quantity: 10, UnitPrice: 100}},
	})
	require.NoError(t, err)
	assert.False(t, res.Rates[0].IsFree)
	assert.Equal(t, 8.0, res.Rates[0].RateAmount)
}

func TestQuoteReqSubtotal_SumsInCents(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.LineItem
		want  float64
	}{
		{"exact fifty", []domain.LineItem{{Quantity: 1, UnitPrice: 24.56}, {Quantity: 1, UnitPrice: 11.79}, {Quantity: 1, UnitPrice: 13.65}}, 50},
		{"repeated dimes", []domain.LineItem{{Quantity: 3, UnitPrice: 0.1}}, 0.3},
		{"quantity times price", []domain.LineItem{{Quantity: 2, UnitPrice: 19.99}}, 39.98},
		{"no items", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuoteReq{Items: tt.items}.subtotal())
		})
	}
}

func TestQuote_ItemsTotallingThresholdShipFree(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(&domain.Catalog{
		Zones: []domain.Zone{{
			ID: "ca", Name: "Canada", Enabled: true,
			Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCountry, RuleValue: "CA"}},
			Rates: []domain.ZoneRate{{ID: "ca-std", MethodName: "Standard", RateAmount: 8, FreeThreshold: ptr(50), Enabled: true}},
		}},
	}, nil)
	uc, _ := newTestUsecase(repo, nil)

	res, err := uc.Quote(context.Background(), QuoteReq{
		Address: domain.Address{Country: "CA"},
		Items: []domain.LineItem{
			{Quantity: 1, UnitPrice: 24.56},
			{Quantity: 1, UnitPrice: 11.79},
			{Quantity: 1, UnitPrice: 13.65},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Rates, 1)
	assert.True(t, res.Rates[0].IsFree)
	assert.Equal(t, 0.0, res.Rates[0].RateAmount)
}

func TestQuote_WarnsWhenMatchedZoneHasNoRates(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(&domain.Catalog{
		Zones: []domain.Zone{{
			ID: "ca", Name: "Canada", Enabled: true,
			Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCountry, RuleValue: "CA"}},
		}},
	}, nil)
	uc, _ := newTestUsecase(repo, nil)

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := logger.NewContext(context.Background(), &l)

	res, err := uc.Quote(ctx, QuoteReq{Address: domain.Address{Country: "CA"}})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionMatched, res.Status)
	assert.Empty(t, res.Rates)

	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"zone_id":"ca"`)
	assert.Contains(t, buf.String(), "Matched shipping zone has no enabled rates")
}

func TestQuote_Fallback(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)
	uc, _ := newTestUsecase(repo, nil)

	res, err := uc.Quote(context.Background(), QuoteReq{Address: domain.Address{Country: "US"}})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionFallback, res.Status)
	assert.True(t, res.FallbackUsed)
	require.Len(t, res.Rates, 1)
	assert.Equal(t, domain.FallbackRateID, res.Rates[0].ID)
	assert.Equal(t, 25.0, res.Rates[0].RateAmount)
}

func TestQuote_InvalidInput(t *testing.T) {
	repo := new(MockShippingRepository)
	uc, _ := newTestUsecase(repo, nil)

	_, err := uc.Quote(context.Background(), QuoteReq{Address: toronto, Subtotal: ptr(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = uc.Quote(context.Background(), QuoteReq{Address: toronto, Items: []domain.LineItem{{Quantity: -1, UnitPrice: 5}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	repo.AssertNotCalled(t, "LoadCatalog", mock.Anything)
}

func TestQuote_SourceErrors(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(nil, errors.New("connection refused")).Once()
	uc, _ := newTestUsecase(repo, nil)

	_, err := uc.Quote(context.Background(), QuoteReq{Address: toronto})
	assert.ErrorContains(t, err, "connection refused")

	repo.On("LoadCatalog", mock.Anything).Return(nil, nil).Once()
	_, err = uc.Quote(context.Background(), QuoteReq{Address: toronto})
	assert.ErrorIs(t, err, domain.ErrCatalogMissing)
}

func TestSelectRate(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)
	uc, _ := newTestUsecase(repo, nil)

	selected, err := uc.SelectRate(context.Background(), SelectRateReq{
		QuoteReq: QuoteReq{Address: toronto, Subtotal: ptr(70)},
		RateID:   "gta-std",
	})
	require.NoError(t, err)
	assert.Equal(t, "gta-std", selected.Rate.ID)
	assert.True(t, selected.Rate.IsFree)
	assert.Equal(t, "gta", selected.MatchedZone.ID)
	assert.Equal(t, 70.0, selected.Subtotal)

	// a rate from another zone is not offered for this address
	_, err = uc.SelectRate(context.Background(), SelectRateReq{
		QuoteReq: QuoteReq{Address: toronto, Subtotal: ptr(70)},
		RateID:   "ca-std",
	})
	assert.ErrorIs(t, err, domain.ErrRateNotAvailable)

	_, err = uc.SelectRate(context.Background(), SelectRateReq{QuoteReq: QuoteReq{Address: toronto}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	fb, err := uc.SelectRate(context.Background(), SelectRateReq{
		QuoteReq: QuoteReq{Address: domain.Address{Country: "FR"}},
		RateID:   domain.FallbackRateID,
	})
	require.NoError(t, err)
	assert.True(t, fb.FallbackUsed)
	assert.Nil(t, fb.MatchedZone)
}

func TestPublicConfig(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil).Once()
	uc, _ := newTestUsecase(repo, nil)

	cfg, err := uc.PublicConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.FallbackAvailable)
	assert.Equal(t, domain.RuleTypes, cfg.RuleTypes)
	// enabled zones only, priority order
	assert.Equal(t, []domain.ZoneRef{{ID: "gta", Name: "GTA"}, {ID: "country", Name: "Canada"}}, cfg.Zones)

	again, err := uc.PublicConfig(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, again)
}

func TestCatalog_LoadOverlappingAdminWriteIsNotCached(t *testing.T) {
	repo := new(MockShippingRepository)
	uc, _ := newTestUsecase(repo, nil)
	ctx := context.Background()

	repo.On("DeleteRule", mock.Anything, "r1").Return(nil)
	// the rule is deleted while the first snapshot is being read
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil).Once().Run(func(mock.Arguments) {
		require.NoError(t, uc.DeleteRule(ctx, "r1"))
	})
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)

	_, err := uc.PublicConfig(ctx)
	require.NoError(t, err)
	_, found := uc.cache.Get(publicConfigKey)
	assert.False(t, found)
	_, found = uc.catalogCache.Get(ctx)
	assert.False(t, found)

	// the next load is not overlapped and is cached as usual
	_, err = uc.Quote(ctx, QuoteReq{Address: toronto})
	require.NoError(t, err)
	_, err = uc.Quote(ctx, QuoteReq{Address: toronto})
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "LoadCatalog", 2)
}

func TestAdmin_ReadOnlyCatalog(t *testing.T) {
	store := infracache.NewMemoryCache(time.Minute, time.Minute)
	source := new(MockShippingRepository)
	uc := NewShippingUsecase(source, nil, &inlineTx{}, infracache.NewMemoryCatalogCache(store, time.Minute), store, nil, time.Minute)

	_, err := uc.ListZones(context.Background())
	assert.ErrorIs(t, err, domain.ErrReadOnlyCatalog)
	_, err = uc.CreateZone(context.Background(), &domain.Zone{Name: "X"})
	assert.ErrorIs(t, err, domain.ErrReadOnlyCatalog)
	assert.ErrorIs(t, uc.DeleteRate(context.Background(), "r1"), domain.ErrReadOnlyCatalog)
	_, err = uc.UpdateFallback(context.Background(), &domain.FallbackSettings{})
	assert.ErrorIs(t, err, domain.ErrReadOnlyCatalog)
}

func TestCreateZone(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)
	uc, tx := newTestUsecase(repo, nil)

	// warm the cache
	_, err := uc.Quote(context.Background(), QuoteReq{Address: toronto})
	require.NoError(t, err)

	zone := &domain.Zone{
		Name:    "Montreal",
		Enabled: true,
		Rules:   []domain.ZoneRule{{RuleType: domain.RuleTypeCity, RuleValue: "Montreal"}},
		Rates:   []domain.ZoneRate{{MethodName: "Standard", RateAmount: 9, Enabled: true}},
	}
	repo.On("CreateZone", mock.Anything, zone).Return(&domain.Zone{ID: "z-new", Name: "Montreal"}, nil)

	created, err := uc.CreateZone(context.Background(), zone)
	require.NoError(t, err)
	assert.Equal(t, "z-new", created.ID)
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, domain.RateTypeFlatRate, zone.Rates[0].RateType)

	// the mutation dropped the cached snapshot
	_, err = uc.Quote(context.Background(), QuoteReq{Address: toronto})
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "LoadCatalog", 2)
}

func TestCreateZone_Validation(t *testing.T) {
	repo := new(MockShippingRepository)
	uc, _ := newTestUsecase(repo, nil)

	tests := []struct {
		name string
		zone domain.Zone
	}{
		{"missing name", domain.Zone{}},
		{"unknown rule type", domain.Zone{Name: "Z", Rules: []domain.ZoneRule{{RuleType: "continent", RuleValue: "EU"}}}},
		{"empty rule value", domain.Zone{Name: "Z", Rules: []domain.ZoneRule{{RuleType: domain.RuleTypeCity}}}},
		{"negative rate", domain.Zone{Name: "Z", Rates: []domain.ZoneRate{{MethodName: "S", RateAmount: -1}}}},
		{"negative threshold", domain.Zone{Name: "Z", Rates: []domain.ZoneRate{{MethodName: "S", FreeThreshold: ptr(-5)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.CreateZone(context.Background(), &tt.zone)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
	repo.AssertNotCalled(t, "CreateZone", mock.Anything, mock.Anything)
}

func TestRuleAndRateMutations(t *testing.T) {
	repo := new(MockShippingRepository)
	uc, _ := newTestUsecase(repo, nil)
	ctx := context.Background()

	rule := &domain.ZoneRule{ZoneID: "z1", RuleType: domain.RuleTypePostalCodePattern, RuleValue: "M5V*"}
	repo.On("CreateRule", mock.Anything, rule).Return(&domain.ZoneRule{ID: "r1", ZoneID: "z1"}, nil)
	created, err := uc.AddRule(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, "r1", created.ID)

	repo.On("DeleteRule", mock.Anything, "missing").Return(domain.ErrNotFound)
	assert.ErrorIs(t, uc.DeleteRule(ctx, "missing"), domain.ErrNotFound)

	rate := &domain.ZoneRate{ID: "rate1", ZoneID: "z1", MethodName: "Express", RateType: domain.RateTypeFreeThreshold, RateAmount: 10, FreeThreshold: ptr(100)}
	repo.On("UpdateRate", mock.Anything, rate).Return(rate, nil)
	updated, err := uc.UpdateRate(ctx, rate)
	require.NoError(t, err)
	assert.Equal(t, "rate1", updated.ID)

	_, err = uc.AddRate(ctx, &domain.ZoneRate{ZoneID: "z1", MethodName: "X", RateType: "weight_based"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestUpdateFallback(t *testing.T) {
	repo := new(MockShippingRepository)
	uc, _ := newTestUsecase(repo, nil)

	_, err := uc.UpdateFallback(context.Background(), &domain.FallbackSettings{Enabled: true, FallbackRate: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "enabled fallback needs a method name")

	disabled := &domain.FallbackSettings{Enabled: false}
	repo.On("UpdateFallback", mock.Anything, disabled).Return(disabled, nil)
	got, err := uc.UpdateFallback(context.Background(), disabled)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestExportSnapshot(t *testing.T) {
	repo := new(MockShippingRepository)
	repo.On("LoadCatalog", mock.Anything).Return(testCatalog(), nil)
	storage := new(MockSnapshotStorage)
	storage.On("UploadBuffer", mock.Anything,
		mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "shipping/snapshots/") && strings.HasSuffix(key, ".json")
		}),
		mock.MatchedBy(func(data []byte) bool {
			return strings.Contains(string(data), `"GTA"`)
		}),
		"application/json",
	).Return("https://cdn.example.com/shipping/snapshots/x.json", nil)

	uc, _ := newTestUsecase(repo, storage)
	url, err := uc.ExportSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/shipping/snapshots/x.json", url)
	storage.AssertExpectations(t)

	noStorage, _ := newTestUsecase(repo, nil)
	_, err = noStorage.ExportSnapshot(context.Background())
	assert.Error(t, err)
}
