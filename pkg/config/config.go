// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the controller's configuration from environment
// variables into one Config value at startup. Nothing in this module
// keeps configuration in a package-level global; FromEnv returns a
// *Config that the front-end commands hand to wiring, and Controller and
// JobFactory receive the individual values taken from it at construction
// time.
package config

import (
	"os"
	"strconv"
	"time"
)

// ToolPaths names the external binaries CommandRunner invokes, each
// resolved via PATH unless an absolute override is given.
type ToolPaths struct {
	CeSubmit       string
	CeStatus       string
	CeCancel       string
	CeFetchOutput  string
	CePurge        string
	ProxyInit      string
	MyProxyInit    string
	CredentialLogon string
	StorageCopy    string
	StorageRename  string
	StorageStat    string
	StorageMkdir   string
}

// Config is the controller's immutable, environment-derived configuration.
type Config struct {
	// Catalog connection.
	CatalogHost     string
	CatalogPort     int
	CatalogUser     string
	CatalogPassword string
	CatalogDatabase string

	// CatalogReconnectMax/CatalogReconnectDelay bound Catalog's transparent
	// reconnection before an operation fails with Unavailable.
	CatalogReconnectMax   int
	CatalogReconnectDelay time.Duration

	// WorkingRoot is the on-disk root under which prod/<version>/<name>/
	// trees are created; interpreted relative to the controller's current
	// directory if not absolute.
	WorkingRoot string

	Tools ToolPaths

	// CredentialLocator is the long-lived credential's locator (proxy file
	// path or credential-store handle), process-wide default unless a
	// production overrides it.
	CredentialLocator string

	// Delegated-credential lifecycle.
	DelegatedCredentialValidity time.Duration
	RenewalThreshold            time.Duration

	// Remote credential-store coordinates (optional variant).
	CredentialStoreServer     string
	CredentialStorePort       int
	CredentialStoreName       string
	CredentialStorePassphrase string

	// CeAdapter retry budgets.
	SubmissionMax   int
	SubmissionDelay time.Duration
	RetriesMax      int
	RetriesDelay    time.Duration

	// StorageAdapter retry budget.
	StorageRetriesMax int

	// JobFSM resubmission policy.
	ResubmitMax       int
	ResubmitCancelled bool

	// Controller sweep cadence.
	SweepDelay  time.Duration
	SweepJitter time.Duration
	QuitDelay   time.Duration

	// UndefEscalatorThreshold is the number of consecutive sweeps with
	// Undef > 0 that triggers quitProduction.
	UndefEscalatorThreshold int

	// WorkerPoolSize bounds how many JobFSM.Update calls run concurrently
	// within one sweep.
	WorkerPoolSize int

	Debug bool
}

// FromEnv builds a Config from environment variables, falling back to
// the documented default for each field wherever a variable is unset.
func FromEnv() (*Config, error) {
	c := &Config{
		CatalogHost:     getEnvOrDefault("PADME_CATALOG_HOST", "localhost"),
		CatalogPort:     getEnvIntOrDefault("PADME_CATALOG_PORT", 5432),
		CatalogUser:     getEnvOrDefault("PADME_CATALOG_USER", "padme"),
		CatalogPassword: os.Getenv("PADME_CATALOG_PASSWORD"),
		CatalogDatabase: getEnvOrDefault("PADME_CATALOG_DATABASE", "padmeprod"),

		CatalogReconnectMax:   getEnvIntOrDefault("PADME_CATALOG_RECONNECT_MAX", 100),
		CatalogReconnectDelay: getEnvDurationOrDefault("PADME_CATALOG_RECONNECT_DELAY", 10*time.Second),

		WorkingRoot: getEnvOrDefault("PADME_WORKING_ROOT", "prod"),

		Tools: ToolPaths{
			CeSubmit:        getEnvOrDefault("PADME_TOOL_CE_SUBMIT", "ce-submit"),
			CeStatus:        getEnvOrDefault("PADME_TOOL_CE_STATUS", "ce-status"),
			CeCancel:        getEnvOrDefault("PADME_TOOL_CE_CANCEL", "ce-cancel"),
			CeFetchOutput:   getEnvOrDefault("PADME_TOOL_CE_FETCH_OUTPUT", "ce-fetch-output"),
			CePurge:         getEnvOrDefault("PADME_TOOL_CE_PURGE", "ce-purge"),
			ProxyInit:       getEnvOrDefault("PADME_TOOL_PROXY_INIT", "voms-proxy-init"),
			MyProxyInit:     getEnvOrDefault("PADME_TOOL_MYPROXY_INIT", "myproxy-init"),
			CredentialLogon: getEnvOrDefault("PADME_TOOL_CREDENTIAL_LOGON", "myproxy-logon"),
			StorageCopy:     getEnvOrDefault("PADME_TOOL_STORAGE_COPY", "gfal-copy"),
			StorageRename:   getEnvOrDefault("PADME_TOOL_STORAGE_RENAME", "gfal-rename"),
			StorageStat:     getEnvOrDefault("PADME_TOOL_STORAGE_STAT", "gfal-stat"),
			StorageMkdir:    getEnvOrDefault("PADME_TOOL_STORAGE_MKDIR", "gfal-mkdir"),
		},

		CredentialLocator: os.Getenv("PADME_CREDENTIAL_LOCATOR"),

		DelegatedCredentialValidity: getEnvDurationOrDefault("PADME_CREDENTIAL_VALIDITY", 24*time.Hour),
		RenewalThreshold:            getEnvDurationOrDefault("PADME_CREDENTIAL_THRESHOLD", 1*time.Hour),

		CredentialStoreServer:     os.Getenv("PADME_CREDENTIAL_STORE_SERVER"),
		CredentialStorePort:       getEnvIntOrDefault("PADME_CREDENTIAL_STORE_PORT", 7512),
		CredentialStoreName:       os.Getenv("PADME_CREDENTIAL_STORE_NAME"),
		CredentialStorePassphrase: os.Getenv("PADME_CREDENTIAL_STORE_PASSPHRASE"),

		SubmissionMax:   getEnvIntOrDefault("PADME_SUBMISSION_MAX", 5),
		SubmissionDelay: getEnvDurationOrDefault("PADME_SUBMISSION_DELAY", 30*time.Second),
		RetriesMax:      getEnvIntOrDefault("PADME_RETRIES_MAX", 3),
		RetriesDelay:    getEnvDurationOrDefault("PADME_RETRIES_DELAY", 10*time.Second),

		StorageRetriesMax: getEnvIntOrDefault("PADME_STORAGE_RETRIES_MAX", 3),

		ResubmitMax:       getEnvIntOrDefault("PADME_RESUBMIT_MAX", 1000),
		ResubmitCancelled: getEnvBoolOrDefault("PADME_RESUBMIT_CANCELLED", true),

		SweepDelay:  getEnvDurationOrDefault("PADME_SWEEP_DELAY", 180*time.Second),
		SweepJitter: getEnvDurationOrDefault("PADME_SWEEP_JITTER", 120*time.Second),
		QuitDelay:   getEnvDurationOrDefault("PADME_QUIT_DELAY", 60*time.Second),

		UndefEscalatorThreshold: getEnvIntOrDefault("PADME_UNDEF_ESCALATOR_THRESHOLD", 10),

		WorkerPoolSize: getEnvIntOrDefault("PADME_WORKER_POOL_SIZE", 16),

		Debug: getEnvBoolOrDefault("PADME_DEBUG", false),
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.CatalogHost == "" {
		return ErrMissingCatalogHost
	}
	if c.WorkingRoot == "" {
		return ErrMissingWorkingRoot
	}
	if c.CatalogReconnectMax <= 0 {
		return ErrInvalidReconnectMax
	}
	if c.ResubmitMax <= 0 {
		return ErrInvalidResubmitMax
	}
	if c.WorkerPoolSize <= 0 {
		return ErrInvalidWorkerPoolSize
	}
	if c.SweepDelay <= 0 {
		return ErrInvalidSweepDelay
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
