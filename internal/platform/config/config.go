package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	SweepInterval  time.Duration
	SweepBatchSize int

	EnableDeferredCloseWorker bool
	EnableDelegationSweep     bool
	EnableOutboxRelay         bool
}

// Load reads an optional config.yaml from the working directory and lets
// environment variables override every key.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service_name", "concord-governance")
	v.SetDefault("http_port", "8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("sweep_interval", "15s")
	v.SetDefault("sweep_batch_size", 100)
	v.SetDefault("enable_deferred_close_worker", true)
	v.SetDefault("enable_delegation_sweep", true)
	v.SetDefault("enable_outbox_relay", true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	brokers := make([]string, 0)
	for _, value := range strings.Split(v.GetString("kafka_brokers"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	return Config{
		ServiceName:  v.GetString("service_name"),
		HTTPPort:     v.GetString("http_port"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		KafkaBrokers: brokers,

		SweepInterval:  v.GetDuration("sweep_interval"),
		SweepBatchSize: v.GetInt("sweep_batch_size"),

		EnableDeferredCloseWorker: v.GetBool("enable_deferred_close_worker"),
		EnableDelegationSweep:     v.GetBool("enable_delegation_sweep"),
		EnableOutboxRelay:         v.GetBool("enable_outbox_relay"),
	}, nil
}
