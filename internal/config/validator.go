package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether field has at least one error.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"console": true, "json": true}
)

// Validate checks the whole configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateURL(c.URL, errs)

	if c.RPS <= 0 {
		errs.Add("rps", fmt.Sprintf("must be greater than 0, got %d", c.RPS))
	}
	if c.Duration <= 0 {
		errs.Add("duration", fmt.Sprintf("must be greater than 0, got %s", c.Duration))
	}
	validateRate("duplicateRate", c.DuplicateRate, errs)
	validateRate("badRate", c.BadRate, errs)

	validateTenants(c.Tenants, c.APIKeys, errs)

	if c.Timeout <= 0 {
		errs.Add("timeout", fmt.Sprintf("must be greater than 0, got %s", c.Timeout))
	}
	if c.Concurrency < 1 {
		errs.Add("concurrency", fmt.Sprintf("must be at least 1, got %d", c.Concurrency))
	}
	if c.ProgressEvery < 1 {
		errs.Add("progressEvery", fmt.Sprintf("must be at least 1, got %d", c.ProgressEvery))
	}
	if c.KeyPoolSize < 1 {
		errs.Add("keyPoolSize", fmt.Sprintf("must be at least 1, got %d", c.KeyPoolSize))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs.Add("log.level", fmt.Sprintf("unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs.Add("log.format", fmt.Sprintf("unknown format %q (valid: console, json)", c.Log.Format))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(raw string, errs *ValidationErrors) {
	if raw == "" {
		errs.Add("url", "is required")
		return
	}

	u, err := url.Parse(raw)
	if err != nil {
		errs.Add("url", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("url", fmt.Sprintf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("url", "host is required")
	}
}

func validateRate(field string, v float64, errs *ValidationErrors) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		errs.Add(field, fmt.Sprintf("must be between 0 and 1, got %v", v))
	}
}

func validateTenants(tenants []string, keys map[string]string, errs *ValidationErrors) {
	if len(tenants) == 0 {
		errs.Add("tenants", "at least one tenant is required")
		return
	}

	seen := make(map[string]bool, len(tenants))
	for i, tenant := range tenants {
		field := fmt.Sprintf("tenants[%d]", i)
		if strings.TrimSpace(tenant) == "" {
			errs.Add(field, "tenant name is empty")
			continue
		}
		if seen[tenant] {
			errs.Add(field, fmt.Sprintf("duplicate tenant %q", tenant))
			continue
		}
		seen[tenant] = true

		if key, ok := keys[tenant]; !ok || key == "" {
			errs.Add("apiKeys."+tenant, "no API key configured for tenant")
		}
	}
}
