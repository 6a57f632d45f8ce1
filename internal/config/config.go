package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Storage       StorageConfig
	Cache         CacheConfig
	Postgres      PostgresConfig
	Trainer       TrainerConfig
	Preprocessing PreprocessingDefaults
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int64
	AllowedOrigins []string
}

type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

type StorageConfig struct {
	Enabled bool
	Path    string
}

type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxRows  int
}

// TrainerConfig points at the remote trainer. MaxAttempts counts the first
// call, so 1 disables retries.
type TrainerConfig struct {
	BaseURL     string
	TimeoutSec  int
	MaxAttempts int
}

// PreprocessingDefaults seed the config of newly loaded datasets
type PreprocessingDefaults struct {
	RandomSeed      int64
	TrainSplit      float64
	ValidationSplit float64
	TestSplit       float64
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/dataset-engine")

	v.SetEnvPrefix("DATASET_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 100*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.path", "./data/datasets.db")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttlSec", 3600)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslMode", "disable")
	v.SetDefault("postgres.maxRows", 100000)

	v.SetDefault("trainer.baseURL", "http://localhost:8000/api")
	v.SetDefault("trainer.timeoutSec", 30)
	v.SetDefault("trainer.maxAttempts", 3)

	v.SetDefault("preprocessing.randomSeed", 42)
	v.SetDefault("preprocessing.trainSplit", 0.7)
	v.SetDefault("preprocessing.validationSplit", 0.15)
	v.SetDefault("preprocessing.testSplit", 0.15)
}
