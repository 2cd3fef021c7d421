package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/typeinfer"
)

// sampleSize is how many values per column are read to infer a semantic type
// when the declared type is not conclusive.
const sampleSize = 20

// SchemaContextService owns the read-only schema descriptor. Sessions take the
// current handle when they start and keep it; a reload swaps in a new one.
type SchemaContextService interface {
	// Load discovers the store's schema and makes it current.
	Load(ctx context.Context) (*models.SchemaDescriptor, error)

	// Current returns the active descriptor, or nil before the first Load.
	Current() *models.SchemaDescriptor
}

type schemaContextService struct {
	discoverer datasource.SchemaDiscoverer
	current    atomic.Pointer[models.SchemaDescriptor]
	logger     *zap.Logger
}

// NewSchemaContextService creates a schema context over a discoverer.
func NewSchemaContextService(discoverer datasource.SchemaDiscoverer, logger *zap.Logger) SchemaContextService {
	return &schemaContextService{
		discoverer: discoverer,
		logger:     logger.Named("schema-context"),
	}
}

var _ SchemaContextService = (*schemaContextService)(nil)

func (s *schemaContextService) Load(ctx context.Context) (*models.SchemaDescriptor, error) {
	tables, err := s.discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}

	schemaTables := make([]models.SchemaTable, 0, len(tables))
	for _, t := range tables {
		cols, err := s.discoverer.DiscoverColumns(ctx, t.SchemaName, t.TableName)
		if err != nil {
			return nil, fmt.Errorf("discover columns of %s: %w", t.QualifiedName(), err)
		}

		table := models.SchemaTable{Name: t.TableName, Schema: t.SchemaName, RowCount: t.RowCount}
		for _, c := range cols {
			table.Columns = append(table.Columns, models.SchemaColumn{
				Name:         c.ColumnName,
				DataType:     c.DataType,
				SemanticType: s.inferSemanticType(ctx, t, c),
				IsNullable:   c.IsNullable,
			})
		}
		schemaTables = append(schemaTables, table)
	}

	desc := models.NewSchemaDescriptor(schemaTables)
	s.current.Store(desc)

	s.logger.Info("Schema loaded",
		zap.Int("tables", desc.TableCount()),
		zap.Int64("total_rows", desc.TotalRows()))

	return desc, nil
}

// inferSemanticType trusts a conclusive declared type and otherwise samples
// values. A failed sample degrades to categorical rather than failing the load.
func (s *schemaContextService) inferSemanticType(ctx context.Context, t datasource.TableMetadata, c datasource.ColumnMetadata) models.SemanticType {
	if st, ok := typeinfer.FromDeclaredType(c.DataType); ok {
		return st
	}
	values, err := s.discoverer.SampleValues(ctx, t.SchemaName, t.TableName, c.ColumnName, sampleSize)
	if err != nil {
		s.logger.Warn("Failed to sample column values",
			zap.String("table", t.QualifiedName()),
			zap.String("column", c.ColumnName),
			zap.Error(err))
		return models.SemanticCategorical
	}
	return typeinfer.FromValues(values)
}

func (s *schemaContextService) Current() *models.SchemaDescriptor {
	return s.current.Load()
}
