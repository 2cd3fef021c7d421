package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:          "mssql",
			DisplayName:   "Microsoft SQL Server",
			Description:   "Connect to SQL Server 2019+, Azure SQL Database",
			MaxParameters: MaxParameters,
		},
		Factory: func(ctx context.Context, config map[string]any, logger *zap.Logger) (datasource.Store, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, logger)
		},
	})
}
