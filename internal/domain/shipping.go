package domain

import "time"

// RuleType names the address field a zone rule is compared against.
type RuleType string

const (
	RuleTypeCountry           RuleType = "country"
	RuleTypeProvince          RuleType = "province"
	RuleTypeCity              RuleType = "city"
	RuleTypePostalCodePattern RuleType = "postal_code_pattern"
)

var RuleTypes = []RuleType{
	RuleTypeCountry,
	RuleTypeProvince,
	RuleTypeCity,
	RuleTypePostalCodePattern,
}

// RateType is informational. Free shipping is driven by FreeThreshold being set.
type RateType string

const (
	RateTypeFlatRate      RateType = "flat_rate"
	RateTypeFreeThreshold RateType = "free_threshold"
)

// FallbackRateID is the id of the synthetic rate emitted when no zone matches.
const FallbackRateID = "fallback"

type Zone struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name" validate:"required,max=255"`
	Priority  int        `json:"priority" yaml:"priority"`
	Enabled   bool       `json:"enabled" yaml:"enabled"`
	Rules     []ZoneRule `json:"rules" yaml:"rules" validate:"dive"`
	Rates     []ZoneRate `json:"rates" yaml:"rates" validate:"dive"`
	CreatedAt time.Time  `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time  `json:"updatedAt" yaml:"-"`
}

type ZoneRule struct {
	ID        string   `json:"id" yaml:"id"`
	ZoneID    string   `json:"zoneId" yaml:"-"`
	RuleType  RuleType `json:"ruleType" yaml:"type" validate:"required,oneof=country province city postal_code_pattern"`
	RuleValue string   `json:"ruleValue" yaml:"value" validate:"required,max=255"`
	Position  int      `json:"position" yaml:"-"`
}

type ZoneRate struct {
	ID            string   `json:"id" yaml:"id"`
	ZoneID        string   `json:"zoneId" yaml:"-"`
	MethodName    string   `json:"methodName" yaml:"method_name" validate:"required,max=255"`
	RateType      RateType `json:"rateType" yaml:"rate_type" validate:"required,oneof=flat_rate free_threshold"`
	RateAmount    float64  `json:"rateAmount" yaml:"rate_amount" validate:"gte=0"`
	FreeThreshold *float64 `json:"freeThreshold" yaml:"free_threshold" validate:"omitempty,gte=0"`
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	DisplayOrder  int      `json:"displayOrder" yaml:"display_order"`
}

// FallbackSettings is the singleton default offered when no zone matches.
type FallbackSettings struct {
	FallbackRate       float64   `json:"fallbackRate" yaml:"rate" validate:"gte=0"`
	FallbackMethodName string    `json:"fallbackMethodName" yaml:"method_name" validate:"required_if=Enabled true,max=255"`
	Enabled            bool      `json:"enabled" yaml:"enabled"`
	UpdatedAt          time.Time `json:"updatedAt" yaml:"-"`
}

// Address is the destination as supplied by checkout. Every field is optional.
type Address struct {
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	Country    string `json:"country,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

type LineItem struct {
	ProductID string  `json:"productId,omitempty"`
	Quantity  int     `json:"quantity" validate:"gte=0"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
}

// Catalog is a point-in-time snapshot of the shipping configuration.
type Catalog struct {
	Zones    []Zone            `json:"zones"`
	Fallback *FallbackSettings `json:"fallback"`
	LoadedAt time.Time         `json:"loadedAt"`
}

type ResolutionStatus string

const (
	ResolutionMatched  ResolutionStatus = "matched"
	ResolutionFallback ResolutionStatus = "fallback"
	ResolutionNoRate   ResolutionStatus = "no_rate"
)

type ZoneRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ResolvedRate struct {
	ID           string  `json:"id"`
	MethodName   string  `json:"method_name"`
	RateAmount   float64 `json:"rate_amount"`
	IsFree       bool    `json:"is_free"`
	DisplayOrder int     `json:"display_order"`
}

type Resolution struct {
	Status       ResolutionStatus `json:"status"`
	MatchedZone  *ZoneRef         `json:"matched_zone"`
	Rates        []ResolvedRate   `json:"rates"`
	FallbackUsed bool             `json:"fallback_used"`
}

// HasShippableRate is false both for no_rate and for a matched zone without rates.
func (r *Resolution) HasShippableRate() bool {
	return r != nil && len(r.Rates) > 0
}

// FindRate returns the resolved rate with the given id.
func (r *Resolution) FindRate(id string) (*ResolvedRate, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Rates {
		if r.Rates[i].ID == id {
			return &r.Rates[i], true
		}
	}
	return nil, false
}
