package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-backend/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	selectZonesSQL = `
SELECT id, name, priority, enabled, created_at, updated_at
FROM shipping_zones
ORDER BY priority DESC, id`

	selectZoneByIDSQL = `
SELECT id, name, priority, enabled, created_at, updated_at
FROM shipping_zones
WHERE id = $1`

	selectRulesSQL = `
SELECT id, zone_id, rule_type, rule_value, position
FROM shipping_zone_rules
ORDER BY zone_id, position, created_at`

	selectRulesByZoneSQL = `
SELECT id, zone_id, rule_type, rule_value, position
FROM shipping_zone_rules
WHERE zone_id = $1
ORDER BY position, created_at`

	selectRatesSQL = `
SELECT id, zone_id, method_name, rate_type, rate_amount, free_threshold, enabled, display_order
FROM shipping_zone_rates
WHERE ($1::boolean IS FALSE OR enabled)
ORDER BY zone_id, display_order, created_at`

	selectRatesByZoneSQL = `
SELECT id, zone_id, method_name, rate_type, rate_amount, free_threshold, enabled, display_order
FROM shipping_zone_rates
WHERE zone_id = $1
ORDER BY display_order, created_at`

	selectSettingsSQL = `
SELECT fallback_rate, fallback_method_name, fallback_enabled, updated_at
FROM shipping_settings
WHERE id = 1`
)

type shippingRepository struct {
	db Pool
}

func NewShippingRepository(db Pool) domain.ShippingRepository {
	return &shippingRepository{db: db}
}

// LoadCatalog reads zones, rules, enabled rates and fallback settings inside a
// single read-only snapshot so concurrent admin edits never produce a torn catalog.
func (r *shippingRepository) LoadCatalog(ctx context.Context) (*domain.Catalog, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin catalog snapshot: %w", err)
	}

	catalog, err := readCatalog(ctx, tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return catalog, nil
}

func readCatalog(ctx context.Context, q DBTX) (*domain.Catalog, error) {
	zones, err := loadZones(ctx, q, true)
	if err != nil {
		return nil, err
	}

	// No settings row means the fallback was never configured.
	fallback, err := scanSettings(q.QueryRow(ctx, selectSettingsSQL))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load fallback settings: %w", err)
	}

	return &domain.Catalog{
		Zones:    zones,
		Fallback: fallback,
		LoadedAt: time.Now().UTC(),
	}, nil
}

func (r *shippingRepository) ListZones(ctx context.Context) ([]domain.Zone, error) {
	return loadZones(ctx, conn(ctx, r.db), false)
}

func (r *shippingRepository) GetZone(ctx context.Context, id string) (*domain.Zone, error) {
	zoneID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	q := conn(ctx, r.db)

	zone, err := scanZone(q.QueryRow(ctx, selectZoneByIDSQL, zoneID))
	if err != nil {
		return nil, mapNotFound(err)
	}

	rows, err := q.Query(ctx, selectRulesByZoneSQL, zoneID)
	if err != nil {
		return nil, err
	}
	zone.Rules, err = collectRules(rows)
	if err != nil {
		return nil, err
	}

	rows, err = q.Query(ctx, selectRatesByZoneSQL, zoneID)
	if err != nil {
		return nil, err
	}
	zone.Rates, err = collectRates(rows)
	if err != nil {
		return nil, err
	}

	return zone, nil
}

// CreateZone inserts the zone with its initial rules and rates. Callers wrap it
// in a TransactionManager so a failing child row rolls the zone back.
func (r *shippingRepository) CreateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	q := conn(ctx, r.db)

	created, err := scanZone(q.QueryRow(ctx, `
INSERT INTO shipping_zones (name, priority, enabled)
VALUES ($1, $2, $3)
RETURNING id, name, priority, enabled, created_at, updated_at`,
		zone.Name, zone.Priority, zone.Enabled,
	))
	if err != nil {
		return nil, err
	}

	for _, rule := range zone.Rules {
		rule.ZoneID = created.ID
		saved, err := r.CreateRule(ctx, &rule)
		if err != nil {
			return nil, err
		}
		created.Rules = append(created.Rules, *saved)
	}

	for _, rate := range zone.Rates {
		rate.ZoneID = created.ID
		saved, err := r.CreateRate(ctx, &rate)
		if err != nil {
			return nil, err
		}
		created.Rates = append(created.Rates, *saved)
	}

	return created, nil
}

func (r *shippingRepository) UpdateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	zoneID, err := parseID(zone.ID)
	if err != nil {
		return nil, err
	}

	_, err = scanZone(conn(ctx, r.db).QueryRow(ctx, `
UPDATE shipping_zones
SET name = $2, priority = $3, enabled = $4, updated_at = NOW()
WHERE id = $1
RETURNING id, name, priority, enabled, created_at, updated_at`,
		zoneID, zone.Name, zone.Priority, zone.Enabled,
	))
	if err != nil {
		return nil, mapNotFound(err)
	}

	return r.GetZone(ctx, zone.ID)
}

func (r *shippingRepository) DeleteZone(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM shipping_zones WHERE id = $1`, id)
}

func (r *shippingRepository) CreateRule(ctx context.Context, rule *domain.ZoneRule) (*domain.ZoneRule, error) {
	zoneID, err := parseID(rule.ZoneID)
	if err != nil {
		return nil, err
	}

	// New rules are appended; evaluation order is insertion order.
	rows, err := conn(ctx, r.db).Query(ctx, `
INSERT INTO shipping_zone_rules (zone_id, rule_type, rule_value, position)
VALUES ($1, $2, $3, COALESCE((SELECT MAX(position) + 1 FROM shipping_zone_rules WHERE zone_id = $1), 0))
RETURNING id, zone_id, rule_type, rule_value, position`,
		zoneID, string(rule.RuleType), rule.RuleValue,
	)
	if err != nil {
		return nil, mapForeignKey(err)
	}
	rules, err := collectRules(rows)
	if err != nil {
		return nil, mapForeignKey(err)
	}
	if len(rules) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rules[0], nil
}

func (r *shippingRepository) DeleteRule(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM shipping_zone_rules WHERE id = $1`, id)
}

func (r *shippingRepository) CreateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	zoneID, err := parseID(rate.ZoneID)
	if err != nil {
		return nil, err
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
INSERT INTO shipping_zone_rates (zone_id, method_name, rate_type, rate_amount, free_threshold, enabled, display_order)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, zone_id, method_name, rate_type, rate_amount, free_threshold, enabled, display_order`,
		zoneID, rate.MethodName, string(rate.RateType),
		float64ToNumeric(rate.RateAmount), float64PtrToNumeric(rate.FreeThreshold),
		rate.Enabled, rate.DisplayOrder,
	)
	if err != nil {
		return nil, mapForeignKey(err)
	}
	rates, err := collectRates(rows)
	if err != nil {
		return nil, mapForeignKey(err)
	}
	if len(rates) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rates[0], nil
}

func (r *shippingRepository) UpdateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	rateID, err := parseID(rate.ID)
	if err != nil {
		return nil, err
	}

	rows, err := conn(ctx, r.db).Query(ctx, `
UPDATE shipping_zone_rates
SET method_name = $2, rate_type = $3, rate_amount = $4, free_threshold = $5,
    enabled = $6, display_order = $7, updated_at = NOW()
WHERE id = $1
RETURNING id, zone_id, method_name, rate_type, rate_amount, free_threshold, enabled, display_order`,
		rateID, rate.MethodName, string(rate.RateType),
		float64ToNumeric(rate.RateAmount), float64PtrToNumeric(rate.FreeThreshold),
		rate.Enabled, rate.DisplayOrder,
	)
	if err != nil {
		return nil, err
	}
	rates, err := collectRates(rows)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rates[0], nil
}

func (r *shippingRepository) DeleteRate(ctx context.Context, id string) error {
	return r.deleteByID(ctx, `DELETE FROM shipping_zone_rates WHERE id = $1`, id)
}

func (r *shippingRepository) GetFallback(ctx context.Context) (*domain.FallbackSettings, error) {
	return scanSettings(conn(ctx, r.db).QueryRow(ctx, selectSettingsSQL))
}

func (r *shippingRepository) UpdateFallback(ctx context.Context, settings *domain.FallbackSettings) (*domain.FallbackSettings, error) {
	return scanSettings(conn(ctx, r.db).QueryRow(ctx, `
INSERT INTO shipping_settings (id, fallback_rate, fallback_method_name, fallback_enabled, updated_at)
VALUES (1, $1, $2, $3, NOW())
ON CONFLICT (id) DO UPDATE
SET fallback_rate = EXCLUDED.fallback_rate,
    fallback_method_name = EXCLUDED.fallback_method_name,
    fallback_enabled = EXCLUDED.fallback_enabled,
    updated_at = EXCLUDED.updated_at
RETURNING fallback_rate, fallback_method_name, fallback_enabled, updated_at`,
		float64ToNumeric(settings.FallbackRate), settings.FallbackMethodName, settings.Enabled,
	))
}

func (r *shippingRepository) deleteByID(ctx context.Context, sql, id string) error {
	pgID, err := parseID(id)
	if err != nil {
		return err
	}
	tag, err := conn(ctx, r.db).Exec(ctx, sql, pgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// --- Loaders & scanners ---

func loadZones(ctx context.Context, q DBTX, enabledRatesOnly bool) ([]domain.Zone, error) {
	rows, err := q.Query(ctx, selectZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}
	zones, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Zone, error) {
		z, err := scanZone(row)
		if err != nil {
			return domain.Zone{}, err
		}
		return *z, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load zones: %w", err)
	}

	index := make(map[string]int, len(zones))
	for i := range zones {
		index[zones[i].ID] = i
	}

	rows, err = q.Query(ctx, selectRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	rules, err := collectRules(rows)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	for _, rule := range rules {
		if i, ok := index[rule.ZoneID]; ok {
			zones[i].Rules = append(zones[i].Rules, rule)
		}
	}

	rows, err = q.Query(ctx, selectRatesSQL, enabledRatesOnly)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	rates, err := collectRates(rows)
	if err != nil {
		return nil, fmt.Errorf("load rates: %w", err)
	}
	for _, rate := range rates {
		if i, ok := index[rate.ZoneID]; ok {
			zones[i].Rates = append(zones[i].Rates, rate)
		}
	}

	return zones, nil
}

func scanZone(row pgx.Row) (*domain.Zone, error) {
	var (
		id                   pgtype.UUID
		z                    domain.Zone
		createdAt, updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &z.Name, &z.Priority, &z.Enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	z.ID = uuidToString(id)
	z.CreatedAt = pgtimeToTime(createdAt)
	z.UpdatedAt = pgtimeToTime(updatedAt)
	return &z, nil
}

func collectRules(rows pgx.Rows) ([]domain.ZoneRule, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ZoneRule, error) {
		var (
			id, zoneID pgtype.UUID
			ruleType   string
			rule       domain.ZoneRule
		)
		if err := row.Scan(&id, &zoneID, &ruleType, &rule.RuleValue, &rule.Position); err != nil {
			return rule, err
		}
		rule.ID = uuidToString(id)
		rule.ZoneID = uuidToString(zoneID)
		rule.RuleType = domain.RuleType(ruleType)
		return rule, nil
	})
}

func collectRates(rows pgx.Rows) ([]domain.ZoneRate, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ZoneRate, error) {
		var (
			id, zoneID        pgtype.UUID
			rateType          string
			amount, threshold pgtype.Numeric
			rate              domain.ZoneRate
		)
		if err := row.Scan(&id, &zoneID, &rate.MethodName, &rateType, &amount, &threshold, &rate.Enabled, &rate.DisplayOrder); err != nil {
			return rate, err
		}
		rate.ID = uuidToString(id)
		rate.ZoneID = uuidToString(zoneID)
		rate.RateType = domain.RateType(rateType)
		rate.RateAmount = numericToFloat64(amount)
		rate.FreeThreshold = numericToFloat64Ptr(threshold)
		return rate, nil
	})
}

func scanSettings(row pgx.Row) (*domain.FallbackSettings, error) {
	var (
		s         domain.FallbackSettings
		amount    pgtype.Numeric
		updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&amount, &s.FallbackMethodName, &s.Enabled, &updatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	s.FallbackRate = numericToFloat64(amount)
	s.UpdatedAt = pgtimeToTime(updatedAt)
	return &s, nil
}

// mapForeignKey reports inserts against a missing zone as not found.
func mapForeignKey(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.ErrNotFound
	}
	return err
}
