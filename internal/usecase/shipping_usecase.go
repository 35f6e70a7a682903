package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/shipping"
	"storefront-backend/pkg/cache"
	"storefront-backend/pkg/logger"
	"storefront-backend/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

const publicConfigKey = "shipping:config:public"

type QuoteReq struct {
	Address  domain.Address    `json:"address"`
	Subtotal *float64          `json:"subtotal" validate:"omitempty,gte=0"`
	Items    []domain.LineItem `json:"items" validate:"dive"`
}

// subtotal prefers the explicit value and falls back to the line items,
// summed in cents so a cart of exactly 50.00 compares equal to a 50 threshold.
func (r QuoteReq) subtotal() float64 {
	if r.Subtotal != nil {
		return *r.Subtotal
	}
	var cents int64
	for _, item := range r.Items {
		cents += int64(item.Quantity) * int64(math.Round(item.UnitPrice*100))
	}
	return float64(cents) / 100
}

type SelectRateReq struct {
	QuoteReq
	RateID string `json:"rate_id" validate:"required"`
}

// SelectedRate is the server-priced rate checkout persists onto the order.
type SelectedRate struct {
	Rate         domain.ResolvedRate `json:"rate"`
	MatchedZone  *domain.ZoneRef     `json:"matched_zone"`
	FallbackUsed bool                `json:"fallback_used"`
	Subtotal     float64             `json:"subtotal"`
}

type PublicShippingConfig struct {
	Zones             []domain.ZoneRef  `json:"zones"`
	RuleTypes         []domain.RuleType `json:"rule_types"`
	FallbackAvailable bool              `json:"fallback_available"`
}

type ShippingUsecase struct {
	source       domain.CatalogSource
	repo         domain.ShippingRepository
	txManager    domain.TransactionManager
	catalogCache domain.CatalogCache
	cache        cache.CacheService
	storage      domain.SnapshotStorage
	publicTTL    time.Duration
	validate     *validator.Validate

	// generation is bumped by every admin write. A load that started before
	// the bump must not repopulate the cache with its older snapshot.
	generation atomic.Uint64
}

// NewShippingUsecase wires the quote and admin flows. repo may be nil for a
// read-only catalog source, storage may be nil when snapshot export is off.
func NewShippingUsecase(
	source domain.CatalogSource,
	repo domain.ShippingRepository,
	txManager domain.TransactionManager,
	catalogCache domain.CatalogCache,
	cache cache.CacheService,
	storage domain.SnapshotStorage,
	publicTTL time.Duration,
) *ShippingUsecase {
	return &ShippingUsecase{
		source:       source,
		repo:         repo,
		txManager:    txManager,
		catalogCache: catalogCache,
		cache:        cache,
		storage:      storage,
		publicTTL:    publicTTL,
		validate:     validator.New(),
	}
}

// --- Checkout ---

func (uc *ShippingUsecase) Quote(ctx context.Context, req QuoteReq) (*domain.Resolution, error) {
	if err := uc.validateStruct(req); err != nil {
		return nil, err
	}

	start := time.Now()
	catalog, err := uc.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	subtotal := req.subtotal()
	res, err := shipping.Resolve(req.Address, subtotal, catalog)
	if err != nil {
		return nil, err
	}
	metrics.ObserveResolution(string(res.Status), time.Since(start))

	event := logger.WithContext(ctx).Debug().
		Str("status", string(res.Status)).
		Str("country", req.Address.Country).
		Float64("subtotal", subtotal).
		Int("rates", len(res.Rates))
	if res.MatchedZone != nil {
		event = event.Str("zone_id", res.MatchedZone.ID)
	}
	event.Msg("Shipping resolved")

	if !res.HasShippableRate() {
		warn := logger.WithContext(ctx).Warn().
			Str("status", string(res.Status)).
			Str("country", req.Address.Country).
			Str("province", req.Address.Province)
		if res.MatchedZone != nil {
			warn.Str("zone_id", res.MatchedZone.ID).Msg("Matched shipping zone has no enabled rates")
		} else {
			warn.Msg("No shipping zone matched and fallback is disabled")
		}
	}

	return res, nil
}

// SelectRate re-resolves server side and returns the chosen rate. Client
// supplied prices are never trusted.
func (uc *ShippingUsecase) SelectRate(ctx context.Context, req SelectRateReq) (*SelectedRate, error) {
	if err := uc.validateStruct(req); err != nil {
		return nil, err
	}

	res, err := uc.Quote(ctx, req.QuoteReq)
	if err != nil {
		return nil, err
	}

	rate, ok := res.FindRate(req.RateID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRateNotAvailable, req.RateID)
	}

	return &SelectedRate{
		Rate:         *rate,
		MatchedZone:  res.MatchedZone,
		FallbackUsed: res.FallbackUsed,
		Subtotal:     req.subtotal(),
	}, nil
}

// Catalog returns the cached snapshot, loading and caching a fresh one on a miss.
// Returned catalogs are shared and must not be mutated.
func (uc *ShippingUsecase) Catalog(ctx context.Context) (*domain.Catalog, error) {
	if catalog, found := uc.catalogCache.Get(ctx); found {
		metrics.CatalogLoad("cache", "hit")
		return catalog, nil
	}
	metrics.CatalogLoad("cache", "miss")

	gen := uc.generation.Load()
	catalog, err := uc.source.LoadCatalog(ctx)
	if err != nil {
		metrics.CatalogLoad("store", "error")
		logger.WithContext(ctx).Error().Err(err).Msg("Failed to load shipping catalog")
		return nil, fmt.Errorf("load shipping catalog: %w", err)
	}
	if catalog == nil {
		metrics.CatalogLoad("store", "error")
		return nil, domain.ErrCatalogMissing
	}
	metrics.CatalogLoad("store", "ok")

	prepared := prepareCatalog(catalog)
	if uc.generation.Load() == gen {
		uc.catalogCache.Set(ctx, prepared)
		// invalidate may have run between the check and the Set
		if uc.generation.Load() != gen {
			uc.catalogCache.Invalidate(ctx)
		}
	}
	return prepared, nil
}

// prepareCatalog orders zones for a reproducible tie-break without touching
// the loaded value.
func prepareCatalog(catalog *domain.Catalog) *domain.Catalog {
	return &domain.Catalog{
		Zones:    shipping.SortZones(catalog.Zones),
		Fallback: catalog.Fallback,
		LoadedAt: catalog.LoadedAt,
	}
}

func (uc *ShippingUsecase) PublicConfig(ctx context.Context) (*PublicShippingConfig, error) {
	if val, found := uc.cache.Get(publicConfigKey); found {
		if cfg, ok := val.(*PublicShippingConfig); ok {
			return cfg, nil
		}
	}

	gen := uc.generation.Load()
	catalog, err := uc.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &PublicShippingConfig{
		Zones:             make([]domain.ZoneRef, 0, len(catalog.Zones)),
		RuleTypes:         domain.RuleTypes,
		FallbackAvailable: catalog.Fallback != nil && catalog.Fallback.Enabled,
	}
	for _, z := range catalog.Zones {
		if z.Enabled {
			cfg.Zones = append(cfg.Zones, domain.ZoneRef{ID: z.ID, Name: z.Name})
		}
	}

	if uc.generation.Load() == gen {
		uc.cache.Set(publicConfigKey, cfg, uc.publicTTL)
		if uc.generation.Load() != gen {
			uc.cache.Delete(publicConfigKey)
		}
	}
	return cfg, nil
}

// --- Admin ---

func (uc *ShippingUsecase) ListZones(ctx context.Context) ([]domain.Zone, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	return repo.ListZones(ctx)
}

func (uc *ShippingUsecase) GetZone(ctx context.Context, id string) (*domain.Zone, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	return repo.GetZone(ctx, id)
}

func (uc *ShippingUsecase) CreateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	for i := range zone.Rates {
		defaultRateType(&zone.Rates[i])
	}
	if err := uc.validateStruct(zone); err != nil {
		return nil, err
	}

	var created *domain.Zone
	err = uc.txManager.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = repo.CreateZone(ctx, zone)
		return err
	})
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	logger.WithContext(ctx).Info().Str("zone_id", created.ID).Str("name", created.Name).Msg("Shipping zone created")
	return created, nil
}

// UpdateZone changes name, priority and enabled. Rules and rates have their own calls.
func (uc *ShippingUsecase) UpdateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	if err := uc.validate.StructPartial(zone, "Name"); err != nil {
		return nil, invalidInput(err)
	}

	updated, err := repo.UpdateZone(ctx, zone)
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	logger.WithContext(ctx).Info().Str("zone_id", updated.ID).Msg("Shipping zone updated")
	return updated, nil
}

func (uc *ShippingUsecase) DeleteZone(ctx context.Context, id string) error {
	repo, err := uc.writable()
	if err != nil {
		return err
	}
	if err := repo.DeleteZone(ctx, id); err != nil {
		return err
	}

	uc.invalidate(ctx)
	logger.WithContext(ctx).Info().Str("zone_id", id).Msg("Shipping zone deleted")
	return nil
}

func (uc *ShippingUsecase) AddRule(ctx context.Context, rule *domain.ZoneRule) (*domain.ZoneRule, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	if err := uc.validateStruct(rule); err != nil {
		return nil, err
	}

	created, err := repo.CreateRule(ctx, rule)
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	return created, nil
}

func (uc *ShippingUsecase) DeleteRule(ctx context.Context, id string) error {
	repo, err := uc.writable()
	if err != nil {
		return err
	}
	if err := repo.DeleteRule(ctx, id); err != nil {
		return err
	}

	uc.invalidate(ctx)
	return nil
}

func (uc *ShippingUsecase) AddRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	defaultRateType(rate)
	if err := uc.validateStruct(rate); err != nil {
		return nil, err
	}

	created, err := repo.CreateRate(ctx, rate)
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	return created, nil
}

func (uc *ShippingUsecase) UpdateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	defaultRateType(rate)
	if err := uc.validateStruct(rate); err != nil {
		return nil, err
	}

	updated, err := repo.UpdateRate(ctx, rate)
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	return updated, nil
}

func (uc *ShippingUsecase) DeleteRate(ctx context.Context, id string) error {
	repo, err := uc.writable()
	if err != nil {
		return err
	}
	if err := repo.DeleteRate(ctx, id); err != nil {
		return err
	}

	uc.invalidate(ctx)
	return nil
}

func (uc *ShippingUsecase) GetFallback(ctx context.Context) (*domain.FallbackSettings, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	return repo.GetFallback(ctx)
}

func (uc *ShippingUsecase) UpdateFallback(ctx context.Context, settings *domain.FallbackSettings) (*domain.FallbackSettings, error) {
	repo, err := uc.writable()
	if err != nil {
		return nil, err
	}
	if err := uc.validateStruct(settings); err != nil {
		return nil, err
	}

	updated, err := repo.UpdateFallback(ctx, settings)
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx)
	logger.WithContext(ctx).Info().
		Bool("enabled", updated.Enabled).
		Float64("rate", updated.FallbackRate).
		Msg("Shipping fallback updated")
	return updated, nil
}

// ExportSnapshot uploads the current catalog, bypassing the cache, and returns its URL.
func (uc *ShippingUsecase) ExportSnapshot(ctx context.Context) (string, error) {
	if uc.storage == nil {
		return "", errors.New("snapshot export is not configured")
	}

	catalog, err := uc.source.LoadCatalog(ctx)
	if err != nil {
		return "", fmt.Errorf("load shipping catalog: %w", err)
	}
	if catalog == nil {
		return "", domain.ErrCatalogMissing
	}

	data, err := json.MarshalIndent(prepareCatalog(catalog), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("shipping/snapshots/%s.json", time.Now().UTC().Format("20060102T150405Z"))
	url, err := uc.storage.UploadBuffer(ctx, key, data, "application/json")
	if err != nil {
		return "", err
	}

	logger.WithContext(ctx).Info().Str("key", key).Int("zones", len(catalog.Zones)).Msg("Shipping catalog snapshot exported")
	return url, nil
}

// --- Helpers ---

func (uc *ShippingUsecase) writable() (domain.ShippingRepository, error) {
	if uc.repo == nil {
		return nil, domain.ErrReadOnlyCatalog
	}
	return uc.repo, nil
}

func (uc *ShippingUsecase) invalidate(ctx context.Context) {
	uc.generation.Add(1)
	uc.catalogCache.Invalidate(ctx)
	uc.cache.Delete(publicConfigKey)
}

func (uc *ShippingUsecase) validateStruct(s any) error {
	if err := uc.validate.Struct(s); err != nil {
		return invalidInput(err)
	}
	return nil
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, err.Error())
}

func defaultRateType(rate *domain.ZoneRate) {
	if rate.RateType == "" {
		rate.RateType = domain.RateTypeFlatRate
	}
}
