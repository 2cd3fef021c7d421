package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

type fakeDatasets struct {
	health    services.HealthReport
	reloadErr error
	reloads   int
}

func (f *fakeDatasets) Stats() map[string]int64 {
	return map[string]int64{"customers": 10, "orders": 30}
}

func (f *fakeDatasets) Info() services.DatasetsInfo {
	return services.DatasetsInfo{
		Datasets: []services.DatasetInfo{
			{Name: "customers", Rows: 10, Columns: 4, SampleColumns: []string{"id", "name", "city", "revenue"}},
		},
		TotalRows: 10,
		Status:    "loaded",
		Backend:   "sqlite",
	}
}

func (f *fakeDatasets) Health(context.Context) services.HealthReport { return f.health }

func (f *fakeDatasets) Reload(context.Context) (*models.SchemaDescriptor, error) {
	f.reloads++
	if f.reloadErr != nil {
		return nil, f.reloadErr
	}
	return models.NewSchemaDescriptor([]models.SchemaTable{
		{Name: "customers", RowCount: 10},
		{Name: "orders", RowCount: 30},
	}), nil
}

func newDatasetMux(ds services.DatasetService) *http.ServeMux {
	mux := http.NewServeMux()
	NewDatasetHandler(ds, zap.NewNop()).RegisterRoutes(mux)
	NewHealthHandler(ds, nil, "v1.2.3", "test", zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestDatasetHandler_Stats(t *testing.T) {
	rec := httptest.NewRecorder()
	newDatasetMux(&fakeDatasets{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"customers":10,"orders":30}`, rec.Body.String())
}

func TestDatasetHandler_Info(t *testing.T) {
	rec := httptest.NewRecorder()
	newDatasetMux(&fakeDatasets{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/datasets-info", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"datasets": [{"name":"customers","rows":10,"columns":4,"sample_columns":["id","name","city","revenue"]}],
		"totalRows": 10,
		"status": "loaded",
		"backend": "sqlite"
	}`, rec.Body.String())
}

func TestDatasetHandler_Reload(t *testing.T) {
	ds := &fakeDatasets{}
	mux := newDatasetMux(ds)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/schema/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tables":2,"totalRows":40}`, rec.Body.String())
	assert.Equal(t, 1, ds.reloads)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schema/reload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDatasetHandler_ReloadFailureIsSanitized(t *testing.T) {
	ds := &fakeDatasets{reloadErr: errors.New("connect postgres://app:hunter2@db:5432/sales: refused")}

	rec := httptest.NewRecorder()
	newDatasetMux(ds).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/schema/reload", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Contains(t, rec.Body.String(), "schema_reload_failed")
}

func TestHealthHandler_Health(t *testing.T) {
	tests := []struct {
		name   string
		report services.HealthReport
		want   int
	}{
		{"healthy", services.HealthReport{Status: "healthy", StoreConnected: true}, http.StatusOK},
		{"degraded", services.HealthReport{Status: "degraded", StoreConnected: true}, http.StatusOK},
		{"unhealthy", services.HealthReport{Status: "unhealthy", StoreError: "refused"}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newDatasetMux(&fakeDatasets{health: tt.report}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.want, rec.Code)
			var got services.HealthReport
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
			assert.Equal(t, tt.report.Status, got.Status)
		})
	}
}

type fixedModelStatus map[string]string

func (f fixedModelStatus) Status() map[string]string { return f }

func TestHealthHandler_OpenCircuitDegrades(t *testing.T) {
	mux := http.NewServeMux()
	ds := &fakeDatasets{health: services.HealthReport{Status: "healthy", StoreConnected: true}}
	NewHealthHandler(ds, fixedModelStatus{"primary": "open", "secondary": "closed"}, "v1", "test", zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got services.HealthReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "open", got.Models["primary"])
}

func TestHealthHandler_LiveAndPing(t *testing.T) {
	mux := newDatasetMux(&fakeDatasets{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	var ping PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ping))
	assert.Equal(t, "v1.2.3", ping.Version)
	assert.Equal(t, "ekaya-analyst", ping.Service)
	assert.Equal(t, "test", ping.Environment)
}
