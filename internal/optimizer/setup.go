package optimizer

import (
	"fmt"

	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/catalog"
	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/flightsim"
	"github.com/iwvelando/airframe-optimizer/internal/stability"
	"go.uber.org/zap"
)

// FromConfig loads the airframe and preset catalog named by cfg and builds
// an optimizer backed by the reference simulator and stability calculator.
func FromConfig(logger *zap.Logger, cfg *config.Configuration, opts ...Option) (*Optimizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	repo := airframe.NewRepository(logger)
	design, err := repo.Load(cfg.Airframe.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load airframe: %w", err)
	}

	presets := catalog.New(nil)
	if cfg.Catalog.Path != "" {
		presets, err = catalog.Load(logger, cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load parachute catalog: %w", err)
		}
	}

	return New(logger, cfg, Dependencies{
		Airframe:   design,
		Repository: repo,
		Simulator:  flightsim.New(logger),
		Stability:  stability.NewCalculator(logger),
		Catalog:    presets,
	}, opts...)
}
