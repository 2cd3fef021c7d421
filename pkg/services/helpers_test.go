package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-analyst/pkg/llm"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/testhelpers"
)

// openFixtureStore opens the customers/orders fixture read-only.
func openFixtureStore(t *testing.T) datasource.Store {
	t.Helper()
	cfg, err := sqlite.FromMap(map[string]any{"path": testhelpers.NewSQLiteFixture(t)})
	require.NoError(t, err)

	store, err := sqlite.NewAdapter(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// loadFixtureSchema returns a schema context already loaded from store.
func loadFixtureSchema(t *testing.T, store datasource.Store) SchemaContextService {
	t.Helper()
	sc := NewSchemaContextService(store, zap.NewNop())
	_, err := sc.Load(context.Background())
	require.NoError(t, err)
	return sc
}

// fixedSchema is a descriptor for tests that never touch a store.
func fixedSchema() *models.SchemaDescriptor {
	return models.NewSchemaDescriptor([]models.SchemaTable{
		{
			Name:     "customers",
			RowCount: 10,
			Columns: []models.SchemaColumn{
				{Name: "id", DataType: "INTEGER", SemanticType: models.SemanticNumeric},
				{Name: "name", DataType: "TEXT", SemanticType: models.SemanticCategorical},
				{Name: "city", DataType: "TEXT", SemanticType: models.SemanticCategorical},
				{Name: "revenue", DataType: "NUMERIC", SemanticType: models.SemanticNumeric},
			},
		},
		{
			Name:     "orders",
			RowCount: 30,
			Columns: []models.SchemaColumn{
				{Name: "id", DataType: "INTEGER", SemanticType: models.SemanticNumeric},
				{Name: "customer_id", DataType: "INTEGER", SemanticType: models.SemanticNumeric},
				{Name: "amount", DataType: "NUMERIC", SemanticType: models.SemanticNumeric},
				{Name: "placed_at", DataType: "DATE", SemanticType: models.SemanticDate},
			},
		},
	})
}

// staticSchema is a SchemaContextService over a fixed descriptor.
type staticSchema struct {
	desc *models.SchemaDescriptor
}

func (s *staticSchema) Load(context.Context) (*models.SchemaDescriptor, error) { return s.desc, nil }
func (s *staticSchema) Current() *models.SchemaDescriptor                     { return s.desc }

func singleTier(client llm.LLMClient) *llm.Tiers {
	return &llm.Tiers{Primary: client}
}

const topCustomersResponse = "Here is the query you asked for:\n```json\n" + `{
  "sql": "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3",
  "answer": "The top customers by revenue are listed.",
  "charts": [{"type": "bar", "title": "Top customers", "x_field": "name", "y_field": "revenue"}],
  "recommendations": ["Focus account management on the top 3"]
}` + "\n```\nLet me know if you need more."
