// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command reco-production creates a reconstruction production: its
// Production and Job catalog rows chunked by filesPerJob, on-disk job
// directories, and launches prodctl detached to drive it.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/internal/jobfactory/reco"
	"github.com/padme-exp/prodctl/internal/wiring"
	"github.com/padme-exp/prodctl/pkg/config"
)

// levelFromVerbosity maps the --verbosity flag onto cfg.Debug, the knob
// wiring.NewLogger already understands.
func levelFromVerbosity(cfg *config.Config, verbosity string) *config.Config {
	if verbosity == "debug" {
		clone := *cfg
		clone.Debug = true
		return &clone
	}
	return cfg
}

var (
	runName        string
	version        string
	filesPerJob    int
	year           string
	name           string
	submissionSite string
	sourceURI      string
	ceNode         string
	cePort         int
	storageSite    string
	description    string
	payloadPath    string
	credentialFile string
	inputListPath  string
	verbosity      string
)

var rootCmd = &cobra.Command{
	Use:   "reco-production",
	Short: "Launch a reconstruction production",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&runName, "runName", "", "run to reconstruct (required)")
	f.StringVar(&version, "version", "", "production version (required)")
	f.IntVar(&filesPerJob, "filesPerJob", reco.DefaultFilesPerJob, "raw files per job (max 1000)")
	f.StringVar(&year, "year", "", "data-taking year")
	f.StringVar(&name, "name", "", "production name, defaults to runName")
	f.StringVar(&submissionSite, "submissionSite", "", "CE site name")
	f.StringVar(&sourceURI, "sourceUri", "", "raw-data source URI")
	f.StringVar(&ceNode, "ceNode", "", "CE endpoint host")
	f.IntVar(&cePort, "cePort", 0, "CE endpoint port")
	f.StringVar(&storageSite, "storageSite", "", "archival storage URI")
	f.StringVar(&description, "description", "", "free-text description")
	f.StringVar(&payloadPath, "payload", "", "path to the reconstruction payload script")
	f.StringVar(&credentialFile, "credentialFile", "", "long-lived credential to copy into each job")
	f.StringVar(&inputListPath, "inputList", "", "path to the run's raw input file list, one URI per line (required)")
	f.StringVar(&verbosity, "verbosity", "info", "log verbosity")
	rootCmd.MarkFlagRequired("runName")
	rootCmd.MarkFlagRequired("version")
	rootCmd.MarkFlagRequired("inputList")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("reco-production: load config: %w", err)
	}

	if name == "" {
		name = runName
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg = levelFromVerbosity(cfg, verbosity)
	logger := wiring.NewLogger(cfg, "reco-production")

	cat, err := wiring.OpenCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("reco-production: open catalog: %w", err)
	}
	defer cat.Close()

	prodDir := filepath.Join(cfg.WorkingRoot, version, name)
	logger.Debug("resolved production directory", "prodDir", prodDir)

	var ceList []string
	if ceNode != "" {
		ceList = []string{fmt.Sprintf("%s:%d", ceNode, cePort)}
	} else if submissionSite != "" {
		ceList = []string{submissionSite}
	}

	inputFiles, err := readInputList(inputListPath, sourceURI, year, runName)
	if err != nil {
		return fmt.Errorf("reco-production: read input list: %w", err)
	}
	logger.Debug("loaded input list", "files", len(inputFiles))

	payload, err := readPayloadOrDefault(payloadPath)
	if err != nil {
		return fmt.Errorf("reco-production: read payload: %w", err)
	}

	factory, err := reco.New(cat, reco.Spec{
		RunName:        runName,
		Year:           year,
		Name:           name,
		Version:        version,
		Description:    description,
		FilesPerJob:    filesPerJob,
		CeList:         ceList,
		StorageURI:     storageSite,
		CredentialFile: credentialFile,
		PayloadScript:  payload,
		InputFiles:     inputFiles,
		ProdDir:        prodDir,
	})
	if err != nil {
		return fmt.Errorf("reco-production: %w", err)
	}

	if _, err := factory.CreateProduction(ctx); err != nil {
		return fmt.Errorf("reco-production: create production: %w", err)
	}

	logger.Info("production created", "name", name, "inputFiles", len(inputFiles), "prodDir", prodDir)
	return launchController(name)
}

// readInputList reads, deduplicates and sorts the run's raw file list,
// matching reco-submit's own list-file handling. An entry that is
// already a URI (contains "://") is kept as-is; a bare filename is
// resolved against sourceURI/year/runName, the same rawdata layout
// PadmeRecoProd.py builds with "%s/daq/%s/rawdata/%s/%s".
func readInputList(path, sourceURI, year, runName string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		files = append(files, resolveSourceURI(line, sourceURI, year, runName))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func resolveSourceURI(entry, sourceURI, year, runName string) string {
	if sourceURI == "" || strings.Contains(entry, "://") {
		return entry
	}
	return fmt.Sprintf("%s/daq/%s/rawdata/%s/%s", strings.TrimSuffix(sourceURI, "/"), year, runName, entry)
}

func readPayloadOrDefault(path string) ([]byte, error) {
	if path == "" {
		return []byte("#!/bin/sh\nexit 0\n"), nil
	}
	return os.ReadFile(path)
}

func launchController(production string) error {
	self, err := exec.LookPath("prodctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "reco-production: prodctl not found on PATH, start it manually: prodctl --production %s\n", production)
		return nil
	}
	c := exec.Command(self, "--production", production)
	return c.Start()
}
