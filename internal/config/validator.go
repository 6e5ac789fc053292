package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/mailgraph/internal/errors"
)

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextValidate - mailgraph validate requires credentials only
	ValidationContextValidate ValidationContext = "validate"
	// ValidationContextIngest - mailgraph ingest requires credentials, mailbox scope and a store
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextValidate:
		c.validateGraph(result)
	case ValidationContextIngest:
		c.validateGraph(result)
		c.validateExchange(result)
		c.validateStorage(result)
		c.validateNeo4j(result)
		c.validateRedis(result)
	case ValidationContextAll:
		c.validateGraph(result)
		c.validateExchange(result)
		c.validateStorage(result)
		c.validateNeo4j(result)
		c.validateRedis(result)
		c.validateLog(result)
	}

	return result
}

// RequireCredentials fails unless every Graph credential is present. It runs
// before any network call.
func (c *Config) RequireCredentials() error {
	if c.Graph.ClientID == "" || c.Graph.ClientSecret == "" || c.Graph.DirectoryID == "" {
		return errors.ConfigError("configuration requires all of {clientId, clientSecret, directoryId}")
	}
	return nil
}

// RequireExchange fails unless the mailbox and its date window are set
func (c *Config) RequireExchange() error {
	e := c.Exchange
	if e.UserID == "" || e.StartDate == "" || e.EndDate == "" {
		return errors.ConfigError("exchange ingestion requires all of {exchangeUserId, exchangeStartDate, exchangeEndDate}")
	}
	_, _, err := e.Window()
	return err
}

func (c *Config) validateGraph(result *ValidationResult) {
	if c.Graph.ClientID == "" {
		result.AddError("AZURE_CLIENT_ID is required but not set")
	}
	if c.Graph.ClientSecret == "" {
		result.AddError("AZURE_CLIENT_SECRET is required but not set (or run: mailgraph config set-secret)")
	}
	if c.Graph.DirectoryID == "" {
		result.AddError("AZURE_TENANT_ID is required but not set")
	}
	validateURL(result, "graph.authority_url", c.Graph.AuthorityURL)
	validateURL(result, "graph.base_url", c.Graph.BaseURL)

	if c.Graph.RateLimit < 0 {
		result.AddError("graph.rate_limit must not be negative, got %v", c.Graph.RateLimit)
	}
	if c.Graph.MaxAttempts < 1 {
		result.AddWarning("graph.max_attempts is %d, a single attempt will be made", c.Graph.MaxAttempts)
	}
}

func (c *Config) validateExchange(result *ValidationResult) {
	if c.Exchange.UserID == "" {
		result.AddError("EXCHANGE_USER_ID is required but not set")
	}
	if c.Exchange.StartDate == "" {
		result.AddError("EXCHANGE_START_DATE is required but not set")
	}
	if c.Exchange.EndDate == "" {
		result.AddError("EXCHANGE_END_DATE is required but not set")
	}
	if _, _, err := c.Exchange.Window(); err != nil {
		result.AddError("%v", err)
	}
	if c.Exchange.PageSize > 1000 {
		result.AddWarning("exchange.page_size %d exceeds the Graph maximum of 1000", c.Exchange.PageSize)
	}
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Backend {
	case "memory":
		result.AddWarning("memory storage does not persist; every run re-ingests the whole window")
	case "sqlite", "bolt":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for the %s backend", c.Storage.Backend)
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		result.AddError("unknown storage backend %q (expected memory, sqlite, postgres or bolt)", c.Storage.Backend)
	}
}

func (c *Config) validateNeo4j(result *ValidationResult) {
	if !c.Neo4j.Enabled {
		return
	}
	if c.Neo4j.URI == "" {
		result.AddError("NEO4J_URI is required when neo4j is enabled")
		return
	}
	u, err := url.Parse(c.Neo4j.URI)
	if err != nil {
		result.AddError("NEO4J_URI is invalid: %v", err)
		return
	}
	switch u.Scheme {
	case "bolt", "bolt+s", "bolt+ssc", "neo4j", "neo4j+s", "neo4j+ssc":
	default:
		result.AddError("NEO4J_URI has unsupported scheme %q", u.Scheme)
	}
	if c.Neo4j.Password == "" {
		result.AddWarning("NEO4J_PASSWORD is empty")
	}
}

func (c *Config) validateRedis(result *ValidationResult) {
	if !c.Redis.Enabled {
		return
	}
	if c.Redis.Addr == "" {
		result.AddError("REDIS_ADDR is required when redis is enabled")
	}
	if c.Redis.TTL <= 0 {
		result.AddWarning("redis.ttl is not positive, cached keys never expire")
	}
}

func (c *Config) validateLog(result *ValidationResult) {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.AddWarning("unknown log level %q, defaulting to info", c.Log.Level)
	}
}

func validateURL(result *ValidationResult, name, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("%s is not a valid URL: %q", name, raw)
	}
}
