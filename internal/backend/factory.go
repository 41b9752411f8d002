package backend

import (
	"fmt"

	"github.com/docvector/docvector/internal/config"
)

// New constructs the configured backend. The provider set is closed:
// adding a backend means extending this switch.
func New(cfg config.BackendConfig, dimensions int) (SearchBackend, error) {
	switch cfg.Provider {
	case config.BackendCloud:
		return NewCloudBackend(cfg.ServiceName, cfg.IndexName, cfg.APIKey)
	case config.BackendLocal:
		return NewLocalBackend(cfg.DataDir, cfg.Collection, dimensions)
	default:
		return nil, fmt.Errorf("unknown backend provider %q (expected cloud or local)", cfg.Provider)
	}
}
