package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAdminShippingService struct {
	mock.Mock
}

var _ AdminShippingService = (*MockAdminShippingService)(nil)

func (m *MockAdminShippingService) ListZones(ctx context.Context) ([]domain.Zone, error) {
	args := m.Called(ctx)
	zones, _ := args.Get(0).([]domain.Zone)
	return zones, args.Error(1)
}

func (m *MockAdminShippingService) GetZone(ctx context.Context, id string) (*domain.Zone, error) {
	args := m.Called(ctx, id)
	zone, _ := args.Get(0).(*domain.Zone)
	return zone, args.Error(1)
}

func (m *MockAdminShippingService) CreateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	args := m.Called(ctx, zone)
	created, _ := args.Get(0).(*domain.Zone)
	return created, args.Error(1)
}

func (m *MockAdminShippingService) UpdateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error) {
	args := m.Called(ctx, zone)
	updated, _ := args.Get(0).(*domain.Zone)
	return updated, args.Error(1)
}

func (m *MockAdminShippingService) DeleteZone(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminShippingService) AddRule(ctx context.Context, rule *domain.ZoneRule) (*domain.ZoneRule, error) {
	args := m.Called(ctx, rule)
	created, _ := args.Get(0).(*domain.ZoneRule)
	return created, args.Error(1)
}

func (m *MockAdminShippingService) DeleteRule(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminShippingService) AddRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	args := m.Called(ctx, rate)
	created, _ := args.Get(0).(*domain.ZoneRate)
	return created, args.Error(1)
}

func (m *MockAdminShippingService) UpdateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error) {
	args := m.Called(ctx, rate)
	updated, _ := args.Get(0).(*domain.ZoneRate)
	return updated, args.Error(1)
}

func (m *MockAdminShippingService) DeleteRate(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminShippingService) GetFallback(ctx context.Context) (*domain.FallbackSettings, error) {
	args := m.Called(ctx)
	settings, _ := args.Get(0).(*domain.FallbackSettings)
	return settings, args.Error(1)
}

func (m *MockAdminShippingService) UpdateFallback(ctx context.Context, settings *domain.FallbackSettings) (*domain.FallbackSettings, error) {
	args := m.Called(ctx, settings)
	updated, _ := args.Get(0).(*domain.FallbackSettings)
	return updated, args.Error(1)
}

func (m *MockAdminShippingService) ExportSnapshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func adminRequest(method, path, id, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if id != "" {
		req.SetPathValue("id", id)
	}
	return req
}

func TestAdminListZones_EmptyIsArray(t *testing.T) {
	svc := new(MockAdminShippingService)
	svc.On("ListZones", mock.Anything).Return(nil, nil)
	h := NewAdminShippingHandler(svc)

	rec := httptest.NewRecorder()
	h.ListZones(rec, adminRequest(http.MethodGet, "/api/v1/admin/shipping/zones", "", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdminCreateZone(t *testing.T) {
	svc := new(MockAdminShippingService)
	svc.On("CreateZone", mock.Anything, mock.MatchedBy(func(z *domain.Zone) bool {
		return z.Name == "GTA" && z.Priority == 10 && len(z.Rules) == 1 && z.Rules[0].RuleType == domain.RuleTypeCity
	})).Return(&domain.Zone{ID: "z1", Name: "GTA", Priority: 10}, nil)
	h := NewAdminShippingHandler(svc)

	rec := httptest.NewRecorder()
	h.CreateZone(rec, adminRequest(http.MethodPost, "/api/v1/admin/shipping/zones", "",
		`{"name":"GTA","priority":10,"enabled":true,"rules":[{"ruleType":"city","ruleValue":"Toronto"}]}`))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"z1"`)
	svc.AssertExpectations(t)
}

func TestAdminUpdateZone_UsesPathID(t *testing.T) {
	svc := new(MockAdminShippingService)
	svc.On("UpdateZone", mock.Anything, mock.MatchedBy(func(z *domain.Zone) bool {
		return z.ID == "z9"
	})).Return(nil, domain.ErrNotFound)
	h := NewAdminShippingHandler(svc)

	rec := httptest.NewRecorder()
	h.UpdateZone(rec, adminRequest(http.MethodPut, "/api/v1/admin/shipping/zones/z9", "z9", `{"id":"ignored","name":"X"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}

func TestAdminRulesAndRates(t *testing.T) {
	svc := new(MockAdminShippingService)
	svc.On("AddRule", mock.Anything, mock.MatchedBy(func(r *domain.ZoneRule) bool {
		return r.ZoneID == "z1" && r.RuleValue == "M5V*"
	})).Return(&domain.ZoneRule{ID: "r1", ZoneID: "z1"}, nil)
	svc.On("AddRate", mock.Anything, mock.MatchedBy(func(r *domain.ZoneRate) bool {
		return r.ZoneID == "z1" && r.FreeThreshold != nil && *r.FreeThreshold == 50
	})).Return(&domain.ZoneRate{ID: "rate1"}, nil)
	svc.On("DeleteRate", mock.Anything, "rate1").Return(nil)
	svc.On("DeleteRule", mock.Anything, "r1").Return(domain.ErrReadOnlyCatalog)
	h := NewAdminShippingHandler(svc)

	rec := httptest.NewRecorder()
	h.AddRule(rec, adminRequest(http.MethodPost, "/api/v1/admin/shipping/zones/z1/rules", "z1",
		`{"ruleType":"postal_code_pattern","ruleValue":"M5V*"}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.AddRate(rec, adminRequest(http.MethodPost, "/api/v1/admin/shipping/zones/z1/rates", "z1",
		`{"methodName":"Standard","rateAmount":8,"freeThreshold":50,"enabled":true}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteRate(rec, adminRequest(http.MethodDelete, "/api/v1/admin/shipping/rates/rate1", "rate1", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.DeleteRule(rec, adminRequest(http.MethodDelete, "/api/v1/admin/shipping/rules/r1", "r1", ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.AssertExpectations(t)
}

func TestAdminFallbackAndExport(t *testing.T) {
	svc := new(MockAdminShippingService)
	svc.On("UpdateFallback", mock.Anything, &domain.FallbackSettings{FallbackRate: 12, FallbackMethodName: "Standard", Enabled: true}).
		Return(&domain.FallbackSettings{FallbackRate: 12, FallbackMethodName: "Standard", Enabled: true}, nil)
	svc.On("ExportSnapshot", mock.Anything).Return("https://cdn.example.com/shipping/snapshots/a.json", nil)
	h := NewAdminShippingHandler(svc)

	rec := httptest.NewRecorder()
	h.UpdateFallback(rec, adminRequest(http.MethodPut, "/api/v1/admin/shipping/fallback", "",
		`{"fallbackRate":12,"fallbackMethodName":"Standard","enabled":true}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ExportSnapshot(rec, adminRequest(http.MethodPost, "/api/v1/admin/shipping/export", "", ""))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"url":"https://cdn.example.com/shipping/snapshots/a.json"}`, rec.Body.String())

	svc.AssertExpectations(t)
}
