package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	r := require.New(t)

	cfg, err := Load()
	r.NoError(err)

	r.Equal(8001, cfg.Server.Port)
	r.Equal(int64(100*1024*1024), cfg.Server.BodyLimit)
	r.Contains(cfg.Server.AllowedOrigins, "http://localhost:3000")
	r.Equal("info", cfg.Logging.Level)
	r.True(cfg.Storage.Enabled)
	r.False(cfg.Cache.Enabled)
	r.Equal(3600, cfg.Cache.TTLSec)
	r.Equal("disable", cfg.Postgres.SSLMode)
	r.Equal("http://localhost:8000/api", cfg.Trainer.BaseURL)
	r.Equal(3, cfg.Trainer.MaxAttempts)
	r.Equal("stdout", cfg.Logging.Output)
	r.Equal(int64(42), cfg.Preprocessing.RandomSeed)
	r.InDelta(1.0, cfg.Preprocessing.TrainSplit+cfg.Preprocessing.ValidationSplit+cfg.Preprocessing.TestSplit, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	r := require.New(t)

	t.Setenv("DATASET_ENGINE_SERVER_PORT", "9100")
	t.Setenv("DATASET_ENGINE_CACHE_ENABLED", "true")
	t.Setenv("DATASET_ENGINE_PREPROCESSING_RANDOMSEED", "7")
	t.Setenv("DATASET_ENGINE_TRAINER_MAXATTEMPTS", "5")

	cfg, err := Load()
	r.NoError(err)
	r.Equal(9100, cfg.Server.Port)
	r.True(cfg.Cache.Enabled)
	r.Equal(int64(7), cfg.Preprocessing.RandomSeed)
	r.Equal(5, cfg.Trainer.MaxAttempts)
}
