// Package filerepo serves a read-only shipping catalog from a YAML file.
package filerepo

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"storefront-backend/internal/domain"

	"gopkg.in/yaml.v3"
)

// catalogFile mirrors the on-disk layout. Enabled flags are pointers so an
// omitted flag means enabled.
type catalogFile struct {
	Fallback *struct {
		Enabled    *bool   `yaml:"enabled"`
		Rate       float64 `yaml:"rate"`
		MethodName string  `yaml:"method_name"`
	} `yaml:"fallback"`
	Zones []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Priority int    `yaml:"priority"`
		Enabled  *bool  `yaml:"enabled"`
		Rules    []struct {
			Type  string `yaml:"type"`
			Value string `yaml:"value"`
		} `yaml:"rules"`
		Rates []struct {
			ID            string   `yaml:"id"`
			MethodName    string   `yaml:"method_name"`
			RateType      string   `yaml:"rate_type"`
			RateAmount    float64  `yaml:"rate_amount"`
			FreeThreshold *float64 `yaml:"free_threshold"`
			Enabled       *bool    `yaml:"enabled"`
			DisplayOrder  int      `yaml:"display_order"`
		} `yaml:"rates"`
	} `yaml:"zones"`
}

type catalogRepository struct {
	path string
}

// NewCatalogRepository reads the file on every load so edits are picked up
// once the cached snapshot expires.
func NewCatalogRepository(path string) domain.CatalogSource {
	return &catalogRepository{path: path}
}

func (r *catalogRepository) LoadCatalog(_ context.Context) (*domain.Catalog, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Zone and rate ids default to positional ids
// when omitted so resolutions stay reproducible.
func Parse(data []byte) (*domain.Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	catalog := &domain.Catalog{
		Zones:    make([]domain.Zone, 0, len(f.Zones)),
		LoadedAt: time.Now().UTC(),
	}

	if f.Fallback != nil {
		catalog.Fallback = &domain.FallbackSettings{
			FallbackRate:       f.Fallback.Rate,
			FallbackMethodName: f.Fallback.MethodName,
			Enabled:            boolOr(f.Fallback.Enabled, true),
		}
	}

	seen := make(map[string]bool, len(f.Zones))
	for i, z := range f.Zones {
		zoneID := strings.TrimSpace(z.ID)
		if zoneID == "" {
			zoneID = fmt.Sprintf("zone-%d", i+1)
		}
		if seen[zoneID] {
			return nil, fmt.Errorf("parse catalog file: duplicate zone id %q", zoneID)
		}
		seen[zoneID] = true

		zone := domain.Zone{
			ID:       zoneID,
			Name:     z.Name,
			Priority: z.Priority,
			Enabled:  boolOr(z.Enabled, true),
			Rules:    make([]domain.ZoneRule, 0, len(z.Rules)),
			Rates:    make([]domain.ZoneRate, 0, len(z.Rates)),
		}

		for j, rule := range z.Rules {
			zone.Rules = append(zone.Rules, domain.ZoneRule{
				ID:        fmt.Sprintf("%s-rule-%d", zoneID, j+1),
				ZoneID:    zoneID,
				RuleType:  domain.RuleType(rule.Type),
				RuleValue: rule.Value,
				Position:  j,
			})
		}

		for j, rate := range z.Rates {
			rateID := strings.TrimSpace(rate.ID)
			if rateID == "" {
				rateID = fmt.Sprintf("%s-rate-%d", zoneID, j+1)
			}
			rateType := domain.RateType(rate.RateType)
			if rateType == "" {
				rateType = domain.RateTypeFlatRate
			}
			zone.Rates = append(zone.Rates, domain.ZoneRate{
				ID:            rateID,
				ZoneID:        zoneID,
				MethodName:    rate.MethodName,
				RateType:      rateType,
				RateAmount:    rate.RateAmount,
				FreeThreshold: rate.FreeThreshold,
				Enabled:       boolOr(rate.Enabled, true),
				DisplayOrder:  rate.DisplayOrder,
			})
		}

		catalog.Zones = append(catalog.Zones, zone)
	}

	return catalog, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
