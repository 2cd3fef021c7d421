package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// sampleColumnCount is how many column names datasets-info lists per table.
const sampleColumnCount = 5

// DatasetInfo describes one table for introspection.
type DatasetInfo struct {
	Name          string   `json:"name"`
	Rows          int64    `json:"rows"`
	Columns       int      `json:"columns"`
	SampleColumns []string `json:"sample_columns"`
}

// DatasetsInfo is the datasets-info document.
type DatasetsInfo struct {
	Datasets  []DatasetInfo `json:"datasets"`
	TotalRows int64         `json:"totalRows"`
	Status    string        `json:"status"`
	Backend   string        `json:"backend"`
}

// HealthReport is the health document.
type HealthReport struct {
	Status         string            `json:"status"`
	StoreConnected bool              `json:"store_connected"`
	StoreError     string            `json:"store_error,omitempty"`
	Backend        string            `json:"backend"`
	SchemaLoaded   bool              `json:"schema_loaded"`
	Tables         map[string]int64  `json:"tables"`
	Models         map[string]string `json:"models,omitempty"`
}

// DatasetService answers read-only questions about the loaded dataset. It
// never runs generated SQL.
type DatasetService interface {
	// Stats returns row counts per table from the current schema.
	Stats() map[string]int64

	// Info lists tables with their sizes and leading column names.
	Info() DatasetsInfo

	// Health checks store connectivity and reports per-table counts.
	Health(ctx context.Context) HealthReport

	// Reload rediscovers the schema. Sessions already running keep the
	// descriptor they started with.
	Reload(ctx context.Context) (*models.SchemaDescriptor, error)
}

type datasetService struct {
	schema  SchemaContextService
	tester  datasource.ConnectionTester
	backend string
	logger  *zap.Logger
}

// NewDatasetService creates the introspection service. backend names the
// store type (sqlite, postgres, mssql).
func NewDatasetService(schema SchemaContextService, tester datasource.ConnectionTester, backend string, logger *zap.Logger) DatasetService {
	return &datasetService{
		schema:  schema,
		tester:  tester,
		backend: backend,
		logger:  logger.Named("datasets"),
	}
}

var _ DatasetService = (*datasetService)(nil)

func (s *datasetService) Stats() map[string]int64 {
	stats := make(map[string]int64)
	for _, t := range s.schema.Current().Tables() {
		stats[t.Name] = t.RowCount
	}
	return stats
}

func (s *datasetService) Info() DatasetsInfo {
	desc := s.schema.Current()
	info := DatasetsInfo{Datasets: []DatasetInfo{}, Backend: s.backend, Status: "not_loaded"}
	if desc == nil {
		return info
	}

	for _, t := range desc.Tables() {
		names := t.ColumnNames()
		if len(names) > sampleColumnCount {
			names = names[:sampleColumnCount]
		}
		info.Datasets = append(info.Datasets, DatasetInfo{
			Name:          t.Name,
			Rows:          t.RowCount,
			Columns:       len(t.Columns),
			SampleColumns: names,
		})
	}
	info.TotalRows = desc.TotalRows()
	info.Status = "loaded"
	return info
}

func (s *datasetService) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	report := HealthReport{
		Status:       "healthy",
		Backend:      s.backend,
		SchemaLoaded: s.schema.Current() != nil,
		Tables:       s.Stats(),
	}
	if err := s.tester.TestConnection(ctx); err != nil {
		report.Status = "unhealthy"
		report.StoreError = logging.SanitizeError(fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err))
		s.logger.Warn("Store connectivity check failed", zap.String("error", report.StoreError))
		return report
	}
	report.StoreConnected = true
	if !report.SchemaLoaded {
		report.Status = "degraded"
	}
	return report
}

func (s *datasetService) Reload(ctx context.Context) (*models.SchemaDescriptor, error) {
	return s.schema.Load(ctx)
}
