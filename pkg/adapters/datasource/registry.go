package datasource

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DatasourceAdapterInfo describes a registered store type.
type DatasourceAdapterInfo struct {
	Type          string `json:"type"`
	DisplayName   string `json:"display_name"`
	Description   string `json:"description"`
	MaxParameters int    `json:"max_parameters"`
}

// StoreFactory opens a store from a generic config map.
type StoreFactory func(ctx context.Context, config map[string]any, logger *zap.Logger) (Store, error)

// DatasourceAdapterRegistration pairs an adapter's info with its factory.
type DatasourceAdapterRegistration struct {
	Info    DatasourceAdapterInfo
	Factory StoreFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register adds a store type. Adapters call it from init(); registering the
// same type twice, or without a factory, panics.
func Register(reg DatasourceAdapterRegistration) {
	if reg.Info.Type == "" || reg.Factory == nil {
		panic("datasource: Register requires a type and a factory")
	}
	key := strings.ToLower(reg.Info.Type)

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("datasource: Register called twice for %q", key))
	}
	registry[key] = reg
}

// RegisteredAdapters returns the info of every compiled-in store type,
// ordered by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	registryMu.RUnlock()

	slices.SortFunc(result, func(a, b DatasourceAdapterInfo) int { return strings.Compare(a.Type, b.Type) })
	return result
}

// IsRegistered reports whether dsType was compiled in.
func IsRegistered(dsType string) bool {
	_, ok := lookup(dsType)
	return ok
}

func lookup(dsType string) (DatasourceAdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[strings.ToLower(dsType)]
	return reg, ok
}
