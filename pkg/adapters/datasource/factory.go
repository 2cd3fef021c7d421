package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
)

// DatasourceAdapterFactory creates stores from the registry.
type DatasourceAdapterFactory interface {
	// NewStore opens a store of the given type.
	NewStore(ctx context.Context, dsType string, config map[string]any) (Store, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(logger *zap.Logger) DatasourceAdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewStore(ctx context.Context, dsType string, config map[string]any) (Store, error) {
	reg, ok := lookup(dsType)
	if !ok {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedStore, dsType)
	}
	logger := f.logger.Named("datasource").With(zap.String("type", reg.Info.Type))
	store, err := reg.Factory(ctx, config, logger)
	if err != nil {
		// Driver errors can echo the DSN back.
		logger.Warn("Failed to open store", zap.String("error", logging.SanitizeConnectionString(err.Error())))
		return nil, fmt.Errorf("%w: open %s store: %w", apperrors.ErrStoreUnavailable, dsType, err)
	}
	logger.Info("Store opened",
		zap.String("adapter", reg.Info.DisplayName),
		zap.Int("max_parameters", store.Dialect().MaxParameters))
	return store, nil
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

var _ DatasourceAdapterFactory = (*registryFactory)(nil)
