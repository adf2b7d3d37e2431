// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command reco-submit is a batch wrapper over reco-production: it
// accepts a run name, a list file of run names (either or both,
// repeatable), deduplicates and sorts the resulting run list, then
// invokes reco-production once per run with an inter-submission delay.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultDelay = 60 * time.Second
	maxDelay     = 3600 * time.Second
)

var (
	runNames      []string
	listFiles     []string
	delaySeconds  int
	extraArgs     []string
)

var rootCmd = &cobra.Command{
	Use:   "reco-submit",
	Short: "Submit reconstruction productions for a batch of runs",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&runNames, "run", "r", nil, "run name, repeatable")
	f.StringArrayVarP(&listFiles, "list", "L", nil, "path to a file of run names, repeatable")
	f.IntVar(&delaySeconds, "delay", int(defaultDelay.Seconds()), "seconds to wait between submissions (max 3600)")
	f.StringArrayVar(&extraArgs, "reco-arg", nil, "extra flag passed through to reco-production, repeatable")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(cmd *cobra.Command, args []string) error {
	delay := time.Duration(delaySeconds) * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = defaultDelay
	}

	runs, err := collectRuns()
	if err != nil {
		return fmt.Errorf("reco-submit: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("reco-submit: no runs named via --run or --list")
	}

	recoProduction, err := exec.LookPath("reco-production")
	if err != nil {
		return fmt.Errorf("reco-submit: reco-production not found on PATH: %w", err)
	}

	for i, run := range runs {
		submitArgs := append([]string{"--runName", run}, extraArgs...)
		c := exec.Command(recoProduction, submitArgs...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "reco-submit: run %s failed: %v\n", run, err)
			continue
		}
		if i < len(runs)-1 {
			time.Sleep(delay)
		}
	}
	return nil
}

func collectRuns() ([]string, error) {
	seen := make(map[string]bool)
	var runs []string

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		runs = append(runs, name)
	}

	for _, r := range runNames {
		add(r)
	}
	for _, path := range listFiles {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read list %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			add(scanner.Text())
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read list %s: %w", path, err)
		}
	}

	sort.Strings(runs)
	return runs, nil
}
