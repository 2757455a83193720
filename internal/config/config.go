// Package config defines the generator's run configuration, its defaults
// and validation, and loading it from YAML or JSON files.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Default values, matching the long-standing command line defaults.
const (
	DefaultURL           = "http://localhost:8080/events"
	DefaultRPS           = 50
	DefaultDuration      = time.Minute
	DefaultDuplicateRate = 0.1
	DefaultBadRate       = 0.05
	DefaultTimeout       = 5 * time.Second
	DefaultConcurrency   = 1
	DefaultProgressEvery = 10
	DefaultKeyPoolSize   = 100
)

// Config is the complete configuration of one generator run.
type Config struct {
	// URL is the ingestion endpoint events are POSTed to
	URL string `json:"url" yaml:"url"`

	// RPS is the target request rate per second
	RPS int `json:"rps" yaml:"rps"`

	// Duration is how long the generator runs
	Duration Duration `json:"duration" yaml:"duration"`

	// DuplicateRate is the probability a request replays a recent idempotency key
	DuplicateRate float64 `json:"duplicateRate" yaml:"duplicateRate"`

	// BadRate is the probability a request carries a malformed event
	BadRate float64 `json:"badRate" yaml:"badRate"`

	// Tenants are chosen uniformly for each request
	Tenants []string `json:"tenants" yaml:"tenants"`

	// APIKeys maps tenant names to the credential sent in X-API-Key
	APIKeys map[string]string `json:"apiKeys" yaml:"apiKeys"`

	// Timeout bounds each request
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// Insecure skips TLS certificate verification of the target
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`

	// DisableKeepAlives opens a new connection for every request
	DisableKeepAlives bool `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`

	// Seed makes a run reproducible; 0 picks a seed from the clock
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Concurrency caps in-flight requests; 1 dispatches sequentially
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// ProgressEvery is the number of ticks between progress reports
	ProgressEvery int `json:"progressEvery" yaml:"progressEvery"`

	// KeyPoolSize is the number of recent idempotency keys kept for replay
	KeyPoolSize int `json:"keyPoolSize" yaml:"keyPoolSize"`

	// Output controls reporting
	Output OutputConfig `json:"output" yaml:"output"`

	// Log controls structured logging
	Log LogConfig `json:"log" yaml:"log"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	// JSONFile receives the final summary as JSON when set
	JSONFile string `json:"jsonFile,omitempty" yaml:"jsonFile,omitempty"`

	// HTMLFile receives the final summary as an HTML page when set
	HTMLFile string `json:"htmlFile,omitempty" yaml:"htmlFile,omitempty"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9102"
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	// Quiet suppresses console progress updates
	Quiet bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`

	// NoColor disables colored console output
	NoColor bool `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Defaults returns a configuration with every field at its default.
func Defaults() *Config {
	return &Config{
		URL:           DefaultURL,
		RPS:           DefaultRPS,
		Duration:      Duration(DefaultDuration),
		DuplicateRate: DefaultDuplicateRate,
		BadRate:       DefaultBadRate,
		Tenants:       []string{"tenant_a", "tenant_b"},
		APIKeys: map[string]string{
			"tenant_a": "key_a",
			"tenant_b": "key_b",
		},
		Timeout:       Duration(DefaultTimeout),
		Concurrency:   DefaultConcurrency,
		ProgressEvery: DefaultProgressEvery,
		KeyPoolSize:   DefaultKeyPoolSize,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Credentials returns the API keys of the configured tenants only.
func (c *Config) Credentials() map[string]string {
	creds := make(map[string]string, len(c.Tenants))
	for _, tenant := range c.Tenants {
		if key, ok := c.APIKeys[tenant]; ok {
			creds[tenant] = key
		}
	}
	return creds
}

// ParseTenants splits a comma-separated tenant list, dropping blanks.
func ParseTenants(s string) []string {
	var tenants []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// ParseAPIKeys parses "tenant:key,tenant:key" into a credential map.
func ParseAPIKeys(s string) (map[string]string, error) {
	keys := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		tenant, key, ok := strings.Cut(pair, ":")
		tenant = strings.TrimSpace(tenant)
		key = strings.TrimSpace(key)
		if !ok || tenant == "" || key == "" {
			return nil, fmt.Errorf("invalid api key entry %q: expected tenant:key", pair)
		}
		keys[tenant] = key
	}
	return keys, nil
}

// FormatAPIKeys renders a credential map in the ParseAPIKeys format with
// tenants sorted.
func FormatAPIKeys(keys map[string]string) string {
	tenants := make([]string, 0, len(keys))
	for t := range keys {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	parts := make([]string, len(tenants))
	for i, t := range tenants {
		parts[i] = t + ":" + keys[t]
	}
	return strings.Join(parts, ",")
}
