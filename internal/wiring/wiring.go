// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package wiring assembles the concrete adapters (catalog, CE, storage,
// credential) a front-end command needs from a config.Config, the way
// cmd/slurm-cli's createClient builds one slurm.SlurmClient from flags
// and environment. Every front-end command in cmd/ calls into this
// package rather than constructing adapters itself, so flavor selection
// and retry-budget plumbing live in one place.
package wiring

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/catalog/pg"
	"github.com/padme-exp/prodctl/internal/ceadapter"
	"github.com/padme-exp/prodctl/internal/ceadapter/cli"
	"github.com/padme-exp/prodctl/internal/ceadapter/htcondor"
	"github.com/padme-exp/prodctl/internal/credential"
	"github.com/padme-exp/prodctl/internal/credential/local"
	"github.com/padme-exp/prodctl/internal/credential/remote"
	"github.com/padme-exp/prodctl/internal/runner"
	"github.com/padme-exp/prodctl/internal/storageadapter"
	"github.com/padme-exp/prodctl/internal/storageadapter/exec"
	pctx "github.com/padme-exp/prodctl/pkg/context"
	"github.com/padme-exp/prodctl/pkg/config"
	"github.com/padme-exp/prodctl/pkg/logging"
	"github.com/padme-exp/prodctl/pkg/pclock"
)

// CeFlavor selects which ceadapter.CeAdapter implementation backs an
// endpoint. PADME's own CEs speak the generic CLI submit/status/cancel
// protocol; Condor-direct sites are the exception, not the default.
type CeFlavor string

const (
	CeFlavorCLI      CeFlavor = "cli"
	CeFlavorHTCondor CeFlavor = "htcondor"
)

// OpenCatalog connects to the catalog named by cfg. Callers must Close
// the returned *pg.Catalog once done.
func OpenCatalog(ctx context.Context, cfg *config.Config) (*pg.Catalog, error) {
	return pg.Open(ctx, pg.Config{
		Host:           cfg.CatalogHost,
		Port:           cfg.CatalogPort,
		User:           cfg.CatalogUser,
		Password:       cfg.CatalogPassword,
		Database:       cfg.CatalogDatabase,
		ReconnectMax:   cfg.CatalogReconnectMax,
		ReconnectDelay: cfg.CatalogReconnectDelay,
	})
}

// NewLogger builds the process-wide Logger, named component, at the
// level cfg.Debug selects.
func NewLogger(cfg *config.Config, component string) logging.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:     level,
		Format:    logging.FormatText,
		Output:    os.Stdout,
		Component: component,
	})
}

// NewCommandRunner builds the shared CommandRunner every adapter drives
// external tools through, tagging every invocation it logs through log.
func NewCommandRunner(log logging.Logger) runner.CommandRunner {
	return runner.NewExec(pctx.DefaultOperationTimeouts(), log)
}

// NewCredentialManager builds a local (proxy re-issuance) or remote
// (credential-store fetch) Manager depending on whether cfg names a
// credential-store server.
func NewCredentialManager(cfg *config.Config, r runner.CommandRunner, clock pclock.Clock, delegatedPath string) credential.Manager {
	if cfg.CredentialStoreServer != "" {
		return remote.New(r, clock, cfg.Tools.CredentialLogon, delegatedPath, cfg.DelegatedCredentialValidity,
			remote.StoreCoordinates{
				Server:     cfg.CredentialStoreServer,
				Port:       cfg.CredentialStorePort,
				Name:       cfg.CredentialStoreName,
				Passphrase: cfg.CredentialStorePassphrase,
			})
	}
	return local.New(r, clock, cfg.Tools.ProxyInit, cfg.CredentialLocator, delegatedPath, cfg.DelegatedCredentialValidity)
}

// NewStorageAdapter builds the exec-backed StorageAdapter used against
// grid storage elements.
func NewStorageAdapter(cfg *config.Config, r runner.CommandRunner) storageadapter.StorageAdapter {
	return exec.New(
		exec.ToolPaths{
			Mkdir: cfg.Tools.StorageMkdir,
			Stat:  cfg.Tools.StorageStat,
			Move:  cfg.Tools.StorageRename,
			Copy:  cfg.Tools.StorageCopy,
		},
		r,
		exec.RetryBudget{RetriesMax: cfg.StorageRetriesMax, RetriesDelay: cfg.SubmissionDelay},
	)
}

// NewCeAdapters builds one CeAdapter per endpoint in ceList, all of the
// same flavor.
func NewCeAdapters(cfg *config.Config, r runner.CommandRunner, ceList []string, flavor CeFlavor) ([]ceadapter.CeAdapter, error) {
	if len(ceList) == 0 {
		return nil, fmt.Errorf("wiring: at least one CE endpoint is required")
	}

	adapters := make([]ceadapter.CeAdapter, 0, len(ceList))
	for _, endpoint := range ceList {
		switch flavor {
		case CeFlavorHTCondor:
			adapters = append(adapters, htcondor.New(endpoint,
				htcondor.ToolPaths{
					Submit:       cfg.Tools.CeSubmit,
					Query:        cfg.Tools.CeStatus,
					Remove:       cfg.Tools.CeCancel,
					TransferData: cfg.Tools.CeFetchOutput,
					History:      cfg.Tools.CePurge,
				},
				r,
				htcondor.RetryBudget{
					SubmissionMax:   cfg.SubmissionMax,
					SubmissionDelay: cfg.SubmissionDelay,
					RetriesMax:      cfg.RetriesMax,
					RetriesDelay:    cfg.RetriesDelay,
				}))
		case CeFlavorCLI, "":
			adapters = append(adapters, cli.New(endpoint,
				cli.ToolPaths{
					Submit:      cfg.Tools.CeSubmit,
					Status:      cfg.Tools.CeStatus,
					Cancel:      cfg.Tools.CeCancel,
					FetchOutput: cfg.Tools.CeFetchOutput,
					Purge:       cfg.Tools.CePurge,
				},
				r,
				cli.RetryBudget{
					SubmissionMax:   cfg.SubmissionMax,
					SubmissionDelay: cfg.SubmissionDelay,
					RetriesMax:      cfg.RetriesMax,
					RetriesDelay:    cfg.RetriesDelay,
				}))
		default:
			return nil, fmt.Errorf("wiring: unknown CE flavor %q", flavor)
		}
	}
	return adapters, nil
}

// EnsureProductionExists is a small convenience used by commands that
// operate on an already-created production by name.
func EnsureProductionExists(ctx context.Context, cat catalog.Catalog, name string) (int64, error) {
	exists, err := cat.ProductionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("wiring: check production %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("wiring: production %q does not exist", name)
	}
	return cat.GetProductionID(ctx, name)
}
