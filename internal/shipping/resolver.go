// Package shipping picks the shipping zone for a destination address and prices its rates.
//
// Everything here is a pure function of its arguments: callers load a catalog snapshot,
// pass it in, and get a fresh Resolution back. Nothing is cached, logged or mutated.
package shipping

import (
	"sort"
	"strings"

	"storefront-backend/internal/domain"
)

// Specificity weights break ties between zones of equal priority in favour of the
// more precise geographic match.
var specificity = map[domain.RuleType]int{
	domain.RuleTypePostalCodePattern: 400,
	domain.RuleTypeCity:              300,
	domain.RuleTypeProvince:          200,
	domain.RuleTypeCountry:           100,
}

// Specificity returns the weight of a rule type; ok is false for unknown types.
func Specificity(t domain.RuleType) (int, bool) {
	w, ok := specificity[domain.RuleType(strings.ToLower(strings.TrimSpace(string(t))))]
	return w, ok
}

// RuleMatches tests a single rule against the address. Unknown rule types and
// missing address fields never match.
func RuleMatches(rule domain.ZoneRule, addr domain.Address) bool {
	if _, ok := Specificity(rule.RuleType); !ok {
		return false
	}

	var field string
	switch domain.RuleType(strings.ToLower(strings.TrimSpace(string(rule.RuleType)))) {
	case domain.RuleTypeCountry:
		field = addr.Country
	case domain.RuleTypeProvince:
		field = addr.Province
	case domain.RuleTypeCity:
		field = addr.City
	case domain.RuleTypePostalCodePattern:
		return MatchPostalPattern(addr.PostalCode, rule.RuleValue)
	}

	field = NormalizeText(field)
	if field == "" {
		return false
	}
	return field == NormalizeText(rule.RuleValue)
}

// zoneScore returns priority plus the weight of the first rule that matches.
// The first match is used, not the most specific one.
func zoneScore(zone domain.Zone, addr domain.Address) (int, bool) {
	for _, rule := range zone.Rules {
		if !RuleMatches(rule, addr) {
			continue
		}
		w, _ := Specificity(rule.RuleType)
		return zone.Priority + w, true
	}
	return 0, false
}

// SelectZone returns the best matching zone, or nil. Ties go to the zone seen first.
func SelectZone(addr domain.Address, zones []domain.Zone) *domain.Zone {
	var (
		best      *domain.Zone
		bestScore int
	)
	for i := range zones {
		zone := &zones[i]
		if !zone.Enabled || len(zone.Rules) == 0 {
			continue
		}
		score, ok := zoneScore(*zone, addr)
		if !ok {
			continue
		}
		if best == nil || score > bestScore {
			best = zone
			bestScore = score
		}
	}
	return best
}

// Resolve maps an address and order subtotal to the applicable shipping rates.
// The only error is a missing catalog; configuration problems degrade to "no match".
func Resolve(addr domain.Address, subtotal float64, catalog *domain.Catalog) (*domain.Resolution, error) {
	if catalog == nil {
		return nil, domain.ErrCatalogMissing
	}

	if zone := SelectZone(addr, catalog.Zones); zone != nil {
		return &domain.Resolution{
			Status:      domain.ResolutionMatched,
			MatchedZone: &domain.ZoneRef{ID: zone.ID, Name: zone.Name},
			Rates:       PriceRates(zone.Rates, subtotal),
		}, nil
	}

	fb := catalog.Fallback
	if fb == nil || !fb.Enabled {
		return &domain.Resolution{
			Status: domain.ResolutionNoRate,
			Rates:  []domain.ResolvedRate{},
		}, nil
	}

	return &domain.Resolution{
		Status: domain.ResolutionFallback,
		Rates: []domain.ResolvedRate{{
			ID:         domain.FallbackRateID,
			MethodName: fb.FallbackMethodName,
			RateAmount: fb.FallbackRate,
		}},
		FallbackUsed: true,
	}, nil
}

// PriceRates applies free-threshold logic to the enabled rates, ordered by display order.
func PriceRates(rates []domain.ZoneRate, subtotal float64) []domain.ResolvedRate {
	out := make([]domain.ResolvedRate, 0, len(rates))
	for _, rate := range rates {
		if !rate.Enabled {
			continue
		}
		free := IsFree(rate, subtotal)
		amount := rate.RateAmount
		if free {
			amount = 0
		}
		out = append(out, domain.ResolvedRate{
			ID:           rate.ID,
			MethodName:   rate.MethodName,
			RateAmount:   amount,
			IsFree:       free,
			DisplayOrder: rate.DisplayOrder,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// IsFree reports whether subtotal reaches the rate's free threshold, regardless of rate type.
func IsFree(rate domain.ZoneRate, subtotal float64) bool {
	return rate.FreeThreshold != nil && subtotal >= *rate.FreeThreshold
}

// SortZones returns a copy ordered by priority descending, then id, so that
// Resolve's first-seen tie-break is reproducible.
func SortZones(zones []domain.Zone) []domain.Zone {
	sorted := make([]domain.Zone, len(zones))
	copy(sorted, zones)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
