package domain

import (
	"context"
)

// CatalogSource supplies full shipping configuration snapshots.
type CatalogSource interface {
	LoadCatalog(ctx context.Context) (*Catalog, error)
}

// ShippingRepository is the writable configuration store used by the admin API.
type ShippingRepository interface {
	CatalogSource

	ListZones(ctx context.Context) ([]Zone, error)
	GetZone(ctx context.Context, id string) (*Zone, error)
	CreateZone(ctx context.Context, zone *Zone) (*Zone, error)
	UpdateZone(ctx context.Context, zone *Zone) (*Zone, error)
	DeleteZone(ctx context.Context, id string) error

	CreateRule(ctx context.Context, rule *ZoneRule) (*ZoneRule, error)
	DeleteRule(ctx context.Context, id string) error

	CreateRate(ctx context.Context, rate *ZoneRate) (*ZoneRate, error)
	UpdateRate(ctx context.Context, rate *ZoneRate) (*ZoneRate, error)
	DeleteRate(ctx context.Context, id string) error

	GetFallback(ctx context.Context) (*FallbackSettings, error)
	UpdateFallback(ctx context.Context, settings *FallbackSettings) (*FallbackSettings, error)
}

// CatalogCache holds the most recent catalog snapshot for a short time.
type CatalogCache interface {
	Get(ctx context.Context) (*Catalog, bool)
	Set(ctx context.Context, catalog *Catalog)
	Invalidate(ctx context.Context)
}

// SnapshotStorage persists exported catalog snapshots.
type SnapshotStorage interface {
	UploadBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type TransactionManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
