// Package config loads the backbone configuration from a file, BACKBONE_
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/moontrade/backbone/logger"
	"github.com/moontrade/backbone/message"
	"github.com/spf13/viper"
)

const (
	DriverRedigo  = "redigo"
	DriverGoRedis = "goredis"
)

type Config struct {
	Redis        RedisConfig        `mapstructure:"redis"`
	Producer     ProducerConfig     `mapstructure:"producer"`
	Consumer     ConsumerConfig     `mapstructure:"consumer"`
	Backpressure BackpressureConfig `mapstructure:"backpressure"`
	Latency      LatencyConfig      `mapstructure:"latency"`
	Pairs        PairsConfig        `mapstructure:"pairs"`
	Coordinator  CoordinatorConfig  `mapstructure:"coordinator"`
	Log          LogConfig          `mapstructure:"log"`
}

type RedisConfig struct {
	// Driver is the client library, redigo or goredis.
	Driver string `mapstructure:"driver"`
	Addr   string `mapstructure:"addr"`
	// Addrs and MasterName select cluster or sentinel mode with goredis.
	Addrs       []string      `mapstructure:"addrs"`
	MasterName  string        `mapstructure:"master_name"`
	Auth        string        `mapstructure:"auth"`
	TLSCert     string        `mapstructure:"tls_cert"`
	TLSKey      string        `mapstructure:"tls_key"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxActive   int           `mapstructure:"max_active"`
}

type ProducerConfig struct {
	MaxBatchSize  int           `mapstructure:"max_batch_size"`
	MaxLinger     time.Duration `mapstructure:"max_linger"`
	MaxLength     int64         `mapstructure:"max_length"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	Codec         string        `mapstructure:"codec"`
	CompressAbove int           `mapstructure:"compress_above"`
}

type ConsumerConfig struct {
	Group string `mapstructure:"group"`
	// Name is the consumer identity. Keep it stable across restarts to
	// recover pending entries; empty generates one.
	Name          string        `mapstructure:"name"`
	Block         time.Duration `mapstructure:"block"`
	Count         int64         `mapstructure:"count"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type BackpressureConfig struct {
	HighWaterMark int `mapstructure:"high_water_mark"`
	LowWaterMark  int `mapstructure:"low_water_mark"`
}

type LatencyConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type PairsConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type CoordinatorConfig struct {
	Streams          []string      `mapstructure:"streams"`
	ActiveTTL        time.Duration `mapstructure:"active_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	DedupeSize       int           `mapstructure:"dedupe_size"`
	QueueSize        int           `mapstructure:"queue_size"`
	RepublishStream  string        `mapstructure:"republish_stream"`
	QuarantineStream string        `mapstructure:"quarantine_stream"`
	// StatsInterval logs a snapshot periodically. Zero disables it.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads path, when not empty, over the defaults. BACKBONE_ variables
// override both, e.g. BACKBONE_REDIS_ADDR.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("backbone")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default is the configuration Load produces with no file and no
// environment.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.driver", DriverRedigo)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.auth", "")
	v.SetDefault("redis.tls_cert", "")
	v.SetDefault("redis.tls_key", "")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.max_idle", 8)
	v.SetDefault("redis.max_active", 0)

	v.SetDefault("producer.max_batch_size", 100)
	v.SetDefault("producer.max_linger", 5*time.Millisecond)
	v.SetDefault("producer.max_length", 100000)
	v.SetDefault("producer.retry_attempts", 0)
	v.SetDefault("producer.retry_backoff", 50*time.Millisecond)
	v.SetDefault("producer.codec", "")
	v.SetDefault("producer.compress_above", 1024)

	v.SetDefault("consumer.group", "backbone")
	v.SetDefault("consumer.name", "")
	v.SetDefault("consumer.block", time.Second)
	v.SetDefault("consumer.count", 10)
	v.SetDefault("consumer.claim_min_idle", 30*time.Second)
	v.SetDefault("consumer.claim_interval", 0)

	v.SetDefault("backpressure.high_water_mark", 768)
	v.SetDefault("backpressure.low_water_mark", 256)
	v.SetDefault("latency.capacity", 1024)
	v.SetDefault("pairs.capacity", 4096)

	v.SetDefault("coordinator.streams", []string{
		"md:prices", "md:opportunities", "md:alerts", "md:swaps", "md:volume", "md:health",
	})
	v.SetDefault("coordinator.active_ttl", 5*time.Minute)
	v.SetDefault("coordinator.sweep_interval", 30*time.Second)
	v.SetDefault("coordinator.dedupe_size", 10000)
	v.SetDefault("coordinator.queue_size", 1024)
	v.SetDefault("coordinator.republish_stream", "")
	v.SetDefault("coordinator.quarantine_stream", "md:quarantine")
	v.SetDefault("coordinator.stats_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Redis.Driver {
	case DriverRedigo, DriverGoRedis:
	default:
		errs = append(errs, fmt.Errorf("redis.driver must be %s or %s, got %q",
			DriverRedigo, DriverGoRedis, c.Redis.Driver))
	}
	if c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if len(c.Redis.Addrs) > 0 && c.Redis.Driver != DriverGoRedis {
		errs = append(errs, errors.New("redis.addrs requires redis.driver=goredis"))
	}
	if (c.Redis.TLSCert == "") != (c.Redis.TLSKey == "") {
		errs = append(errs, errors.New("redis.tls_cert and redis.tls_key go together"))
	}
	if c.Producer.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("producer.max_batch_size must be positive"))
	}
	if c.Producer.MaxLinger <= 0 {
		errs = append(errs, errors.New("producer.max_linger must be positive"))
	}
	if c.Producer.RetryAttempts < 0 {
		errs = append(errs, errors.New("producer.retry_attempts is negative"))
	}
	if _, err := message.ParseCodec(c.Producer.Codec); err != nil {
		errs = append(errs, fmt.Errorf("producer.codec: %w", err))
	}
	if c.Consumer.Group == "" {
		errs = append(errs, errors.New("consumer.group is required"))
	}
	if c.Consumer.Block < 0 || c.Consumer.Count < 0 {
		errs = append(errs, errors.New("consumer.block and consumer.count must not be negative"))
	}
	if c.Backpressure.LowWaterMark < 0 || c.Backpressure.HighWaterMark <= c.Backpressure.LowWaterMark {
		errs = append(errs, fmt.Errorf("backpressure water marks need high > low >= 0, got %d/%d",
			c.Backpressure.HighWaterMark, c.Backpressure.LowWaterMark))
	}
	if c.Coordinator.QueueSize <= 0 {
		errs = append(errs, errors.New("coordinator.queue_size must be positive"))
	} else if c.Backpressure.HighWaterMark > c.Coordinator.QueueSize {
		errs = append(errs, errors.New("backpressure.high_water_mark exceeds coordinator.queue_size"))
	}
	if c.Latency.Capacity <= 0 || c.Pairs.Capacity <= 0 {
		errs = append(errs, errors.New("latency.capacity and pairs.capacity must be positive"))
	}
	if len(c.Coordinator.Streams) == 0 {
		errs = append(errs, errors.New("coordinator.streams is empty"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
