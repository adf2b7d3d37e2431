// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command delete-production retires a production by renaming it rather
// than destroying it outright: the catalog row, the on-disk production
// directory and any storage-side output all move to a
// "<name>_deleted_NN" name, trying successive suffixes until one is
// free. -f runs the same collision search and prints what would happen
// without renaming anything.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/storageadapter"
	"github.com/padme-exp/prodctl/internal/wiring"
	"github.com/padme-exp/prodctl/pkg/config"
)

const maxDeleteSuffix = 100

var (
	productions []string
	listFile    string
	fake        bool
)

var rootCmd = &cobra.Command{
	Use:   "delete-production",
	Short: "Retire one or more productions under a _deleted_NN name",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&productions, "production", "p", nil, "production name, repeatable")
	f.StringVarP(&listFile, "list", "L", "", "path to a file of production names")
	f.BoolVarP(&fake, "fake", "f", false, "report the rename that would happen without performing it")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("delete-production: load config: %w", err)
	}

	names, err := collectNames()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("delete-production: no productions named via -p or -L")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cat, err := wiring.OpenCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("delete-production: open catalog: %w", err)
	}
	defer cat.Close()

	logger := wiring.NewLogger(cfg, "delete-production")
	r := wiring.NewCommandRunner(logger)
	storage := wiring.NewStorageAdapter(cfg, r)

	for _, name := range names {
		if err := deleteOne(ctx, cat, storage, cfg.WorkingRoot, name); err != nil {
			fmt.Fprintf(os.Stderr, "delete-production: %s: %v\n", name, err)
		}
	}
	return nil
}

func deleteOne(ctx context.Context, cat catalog.Catalog, storage storageadapter.StorageAdapter, workingRoot, name string) error {
	id, err := cat.GetProductionID(ctx, name)
	if err != nil {
		return fmt.Errorf("find production: %w", err)
	}
	prod, err := cat.GetProductionInfo(ctx, id)
	if err != nil {
		return fmt.Errorf("load production: %w", err)
	}

	prodDir := prod.WorkingDir
	if prodDir == "" {
		prodDir = filepath.Join(workingRoot, prod.Version, prod.Name)
	}

	newName, ok := resolveDeletedName(ctx, cat, storage, prodDir, prod.StorageDir, name)
	if !ok {
		return fmt.Errorf("exhausted %d _deleted_NN suffixes", maxDeleteSuffix)
	}

	if fake {
		fmt.Printf("would rename production %s -> %s (dir %s)\n", name, newName, prodDir)
		return nil
	}

	if err := cat.RenameProduction(ctx, id, newName); err != nil {
		return fmt.Errorf("rename catalog row: %w", err)
	}

	newDir := filepath.Join(filepath.Dir(prodDir), newName)
	if _, err := os.Stat(prodDir); err == nil {
		if err := os.Rename(prodDir, newDir); err != nil {
			return fmt.Errorf("rename on-disk directory: %w", err)
		}
	}

	if prod.StorageDir != "" {
		newStorageDir := filepath.Join(filepath.Dir(prod.StorageDir), newName)
		if exists, err := storage.Stat(ctx, prod.StorageDir); err == nil && exists {
			if err := storage.Rename(ctx, prod.StorageDir, newStorageDir); err != nil {
				return fmt.Errorf("rename storage-side directory: %w", err)
			}
		}
	}

	fmt.Printf("renamed production %s -> %s\n", name, newName)
	return nil
}

// resolveDeletedName finds the first "<name>_deleted_NN" that collides
// with none of the catalog, on-disk, or storage-side namespaces.
func resolveDeletedName(ctx context.Context, cat catalog.Catalog, storage storageadapter.StorageAdapter, prodDir, storageDir, name string) (string, bool) {
	for n := 0; n < maxDeleteSuffix; n++ {
		candidate := fmt.Sprintf("%s_deleted_%02d", name, n)

		if exists, err := cat.ProductionExists(ctx, candidate); err != nil || exists {
			continue
		}

		candidateDir := filepath.Join(filepath.Dir(prodDir), candidate)
		if _, err := os.Stat(candidateDir); err == nil {
			continue
		}

		if storageDir != "" {
			candidateStorageDir := filepath.Join(filepath.Dir(storageDir), candidate)
			if exists, err := storage.Stat(ctx, candidateStorageDir); err == nil && exists {
				continue
			}
		}

		return candidate, true
	}
	return "", false
}

func collectNames() ([]string, error) {
	names := append([]string(nil), productions...)
	if listFile != "" {
		f, err := os.Open(listFile)
		if err != nil {
			return nil, fmt.Errorf("delete-production: read list %s: %w", listFile, err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				names = append(names, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	return names, nil
}
