// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command mc-production creates a simulation production: its Production
// and Job catalog rows, on-disk job directories, and launches prodctl
// detached to drive it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/internal/jobfactory/mc"
	"github.com/padme-exp/prodctl/internal/wiring"
	"github.com/padme-exp/prodctl/pkg/config"
	"github.com/padme-exp/prodctl/pkg/pclock"
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
	name            string
	nJobs           int
	version         string
	macro           string
	submissionSite  string
	ceNode          string
	cePort          int
	storageSite     string
	description     string
	user            string
	eventsRequested int64
	seedListPath    string
	payloadPath     string
	credentialFile  string
	verbosity       string
)

var rootCmd = &cobra.Command{
	Use:   "mc-production",
	Short: "Launch a simulation production",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&name, "name", "", "production name (required)")
	f.IntVar(&nJobs, "nJobs", 0, "number of jobs (required)")
	f.StringVar(&version, "version", "", "production version (required)")
	f.StringVar(&macro, "macro", "", "path to the G4 macro template")
	f.StringVar(&submissionSite, "submissionSite", "", "CE site name")
	f.StringVar(&ceNode, "ceNode", "", "CE endpoint host")
	f.IntVar(&cePort, "cePort", 0, "CE endpoint port")
	f.StringVar(&storageSite, "storageSite", "", "archival storage URI")
	f.StringVar(&description, "description", "", "free-text description")
	f.StringVar(&user, "user", "", "requesting user")
	f.Int64Var(&eventsRequested, "eventsRequested", 0, "total events requested")
	f.StringVar(&seedListPath, "seedList", "", "path to a file of <seed1>,<seed2> pairs, one per line")
	f.StringVar(&payloadPath, "payload", "", "path to the simulation payload script")
	f.StringVar(&credentialFile, "credentialFile", "", "long-lived credential to copy into each job")
	f.StringVar(&verbosity, "verbosity", "info", "log verbosity")
	rootCmd.MarkFlagRequired("name")
	rootCmd.MarkFlagRequired("nJobs")
	rootCmd.MarkFlagRequired("version")
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
		return fmt.Errorf("mc-production: load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg = levelFromVerbosity(cfg, verbosity)
	logger := wiring.NewLogger(cfg, "mc-production")

	cat, err := wiring.OpenCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mc-production: open catalog: %w", err)
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

	seedList, err := readSeedList(seedListPath)
	if err != nil {
		return fmt.Errorf("mc-production: read seed list: %w", err)
	}
	logger.Debug("loaded seed list", "pairs", len(seedList))

	payload, err := readPayloadOrDefault(payloadPath)
	if err != nil {
		return fmt.Errorf("mc-production: read payload: %w", err)
	}

	factory, err := mc.New(cat, pclock.NewRandom(time.Now().UnixNano()), mc.Spec{
		Name:            name,
		Description:     description,
		User:            user,
		EventsRequested: eventsRequested,
		Version:         version,
		NJobs:           nJobs,
		CeList:          ceList,
		StorageURI:      storageSite,
		CredentialFile:  credentialFile,
		MacroPath:       macro,
		PayloadScript:   payload,
		SeedList:        seedList,
		ProdDir:         prodDir,
	})
	if err != nil {
		return fmt.Errorf("mc-production: %w", err)
	}

	if _, err := factory.CreateProduction(ctx); err != nil {
		return fmt.Errorf("mc-production: create production: %w", err)
	}

	logger.Info("production created", "name", name, "jobs", nJobs, "prodDir", prodDir)
	return launchController(name)
}

func readSeedList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pairs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			pairs = append(pairs, line)
		}
	}
	return pairs, nil
}

func readPayloadOrDefault(path string) ([]byte, error) {
	if path == "" {
		return []byte("#!/bin/sh\nexit 0\n"), nil
	}
	return os.ReadFile(path)
}

// launchController starts prodctl detached from this process so
// mc-production can exit once the production is registered.
func launchController(production string) error {
	self, err := exec.LookPath("prodctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mc-production: prodctl not found on PATH, start it manually: prodctl --production %s\n", production)
		return nil
	}
	c := exec.Command(self, "--production", production)
	c.Stdout = nil
	c.Stderr = nil
	return c.Start()
}
