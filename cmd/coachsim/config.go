package main

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"collegead.ai/internal/sim/catalogs"
	"collegead.ai/internal/sim/roster"
	"collegead.ai/internal/sim/tuning"
)

type envConfig struct {
	ConfigDir string `env:"COACHSIM_CONFIG_DIR" envDefault:"./configs"`
	DataDir   string `env:"COACHSIM_DATA_DIR" envDefault:"./data"`
	Seed      uint64 `env:"COACHSIM_SEED" envDefault:"424242"`
	Workers   int    `env:"COACHSIM_WORKERS" envDefault:"0"`
}

func loadEnvConfig() (envConfig, error) {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// inputs is everything read from the config directory.
type inputs struct {
	tuning     tuning.Tuning
	catalogs   *catalogs.Catalogs
	prototypes []roster.Prototype
}

func loadInputs(configDir string) (*inputs, error) {
	tu, err := tuning.Load(filepath.Join(configDir, "tuning.yaml"))
	if err != nil {
		return nil, err
	}
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return nil, err
	}
	protos, err := roster.LoadPrototypes(filepath.Join(configDir, roster.File))
	if err != nil {
		return nil, err
	}
	for _, p := range protos {
		if _, ok := cats.Anchors.Table.Lookup(p.Archetype); !ok {
			return nil, fmt.Errorf("%s: prototype %s: unknown archetype %q", roster.File, p.ID, p.Archetype)
		}
	}
	return &inputs{tuning: tu, catalogs: cats, prototypes: protos}, nil
}
