package rescache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys recognized by FromEnv.
const (
	EnvAddr           = "RESCACHE_ADDR"
	EnvClusterAddrs   = "RESCACHE_CLUSTER_ADDRS" // comma-separated; wins over RESCACHE_ADDR
	EnvFallback       = "RESCACHE_FALLBACK"      // "false" disables fallback
	EnvMaxRetries     = "RESCACHE_MAX_RETRIES"
	EnvRetryDelayMS   = "RESCACHE_RETRY_DELAY_MS"
	EnvConnectTimeout = "RESCACHE_CONNECT_TIMEOUT_MS"
	EnvCommandTimeout = "RESCACHE_COMMAND_TIMEOUT_MS"
)

// FromEnv builds Options from the process environment. Unset keys keep
// their defaults; unparsable numeric values are an error rather than a
// silent misconfiguration.
func FromEnv() (Options, error) {
	var opts Options
	opts.Addr = os.Getenv(EnvAddr)
	if v := os.Getenv(EnvClusterAddrs); v != "" {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				opts.ClusterAddrs = append(opts.ClusterAddrs, a)
			}
		}
	}
	if v := os.Getenv(EnvFallback); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("rescache: %s: %w", EnvFallback, err)
		}
		opts.DisableFallback = !b
	}
	var err error
	if opts.MaxRetries, err = envInt(EnvMaxRetries); err != nil {
		return Options{}, err
	}
	if opts.RetryDelay, err = envMillis(EnvRetryDelayMS); err != nil {
		return Options{}, err
	}
	if opts.ConnectTimeout, err = envMillis(EnvConnectTimeout); err != nil {
		return Options{}, err
	}
	if opts.CommandTimeout, err = envMillis(EnvCommandTimeout); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("rescache: %s: %w", key, err)
	}
	return n, nil
}

func envMillis(key string) (time.Duration, error) {
	n, err := envInt(key)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

// fileConfig is the YAML shape accepted by LoadFile.
type fileConfig struct {
	Addr             string   `yaml:"addr"`
	ClusterAddrs     []string `yaml:"cluster_addrs"`
	DisableFallback  bool     `yaml:"disable_fallback"`
	MaxRetries       int      `yaml:"max_retries"`
	RetryDelayMS     int      `yaml:"retry_delay_ms"`
	ConnectTimeoutMS int      `yaml:"connect_timeout_ms"`
	CommandTimeoutMS int      `yaml:"command_timeout_ms"`
	Fallback         struct {
		Capacity   int `yaml:"capacity"`
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"fallback"`
}

// LoadFile reads Options from a YAML file. Missing fields keep their
// defaults, matching FromEnv.
func LoadFile(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("rescache: read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Options{}, fmt.Errorf("rescache: parse config: %w", err)
	}
	return Options{
		Addr:             fc.Addr,
		ClusterAddrs:     fc.ClusterAddrs,
		DisableFallback:  fc.DisableFallback,
		MaxRetries:       fc.MaxRetries,
		RetryDelay:       time.Duration(fc.RetryDelayMS) * time.Millisecond,
		ConnectTimeout:   time.Duration(fc.ConnectTimeoutMS) * time.Millisecond,
		CommandTimeout:   time.Duration(fc.CommandTimeoutMS) * time.Millisecond,
		FallbackCapacity: fc.Fallback.Capacity,
		FallbackTTL:      time.Duration(fc.Fallback.TTLSeconds) * time.Second,
	}, nil
}
