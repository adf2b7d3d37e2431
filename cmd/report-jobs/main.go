// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Command report-jobs prints job status across productions: -F lists
// one line per job (production, name, status, worker node), and the
// default prints a per-CE-endpoint summary table of job counts by
// status. -S filters by CE endpoint (repeatable, ALL disables the
// filter); -O filters by requesting owner the same way; -A restricts
// the report to every production (closed or open), -P to open
// productions only.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/padme-exp/prodctl/internal/catalog"
	"github.com/padme-exp/prodctl/internal/wiring"
	"github.com/padme-exp/prodctl/pkg/config"
)

var (
	sites      []string
	owners     []string
	allProds   bool
	openOnly   bool
	fullDetail bool
	watchURL   string
)

var rootCmd = &cobra.Command{
	Use:   "report-jobs",
	Short: "Report job status across productions",
	RunE:  run,
}

func init() {
	f := rootCmd.Flags()
	f.StringArrayVarP(&sites, "site", "S", []string{"ALL"}, "CE endpoint to include, repeatable, ALL for every endpoint")
	f.StringArrayVarP(&owners, "owner", "O", []string{"ALL"}, "requesting user to include, repeatable, ALL for every owner")
	f.BoolVarP(&allProds, "all", "A", false, "include closed productions as well as open ones")
	f.BoolVarP(&openOnly, "open", "P", false, "restrict the report to open productions")
	f.BoolVarP(&fullDetail, "full", "F", false, "print one line per job instead of a per-endpoint summary")
	f.StringVar(&watchURL, "watch", "", "ws:// URL of a prodctl --status-addr stream to follow instead of a one-shot catalog query")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type jobRow struct {
	production string
	job        string
	site       string
	status     catalog.JobStatus
	node       string
}

func run(cmd *cobra.Command, args []string) error {
	if watchURL != "" {
		return watchSweeps(watchURL)
	}

	if allProds == openOnly {
		return fmt.Errorf("report-jobs: exactly one of -A or -P is required")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("report-jobs: load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cat, err := wiring.OpenCatalog(ctx, cfg)
	if err != nil {
		return fmt.Errorf("report-jobs: open catalog: %w", err)
	}
	defer cat.Close()

	rows, err := collectRows(ctx, cat)
	if err != nil {
		return err
	}

	if fullDetail {
		printDetail(rows)
	} else {
		printSummary(rows)
	}
	return nil
}

// collectRows walks every production the owner/open-closed filters
// admit and every job within it. The catalog does not persist which CE
// endpoint a job's submissions actually ran on, only the production's
// CE list; a job's site is reported as the first entry of its
// production's CeList (round-robin assignment happens at Controller
// construction time and is not itself durable state).
func collectRows(ctx context.Context, cat catalog.Catalog) ([]jobRow, error) {
	prodIDs, err := cat.ListProductionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("report-jobs: list productions: %w", err)
	}

	var rows []jobRow
	for _, prodID := range prodIDs {
		prod, err := cat.GetProductionInfo(ctx, prodID)
		if err != nil {
			return nil, fmt.Errorf("report-jobs: load production %d: %w", prodID, err)
		}
		if !matches(owners, prod.User) {
			continue
		}
		if !allProds && !prod.Open() {
			continue
		}

		site := "unknown"
		if len(prod.CeList) > 0 {
			site = prod.CeList[0]
		}
		if !matches(sites, site) {
			continue
		}

		jobIDs, err := cat.ListJobIDs(ctx, prodID)
		if err != nil {
			return nil, fmt.Errorf("report-jobs: list jobs of %s: %w", prod.Name, err)
		}
		for _, jobID := range jobIDs {
			job, err := cat.GetJob(ctx, jobID)
			if err != nil {
				return nil, fmt.Errorf("report-jobs: load job %d: %w", jobID, err)
			}
			node := ""
			if sub, err := cat.GetLatestSubmission(ctx, jobID); err == nil && sub != nil {
				node = sub.WorkerNode
			}
			rows = append(rows, jobRow{
				production: prod.Name,
				job:        job.Name,
				site:       site,
				status:     job.Status,
				node:       node,
			})
		}
	}
	return rows, nil
}

func matches(values []string, name string) bool {
	for _, v := range values {
		if v == "ALL" || v == name {
			return true
		}
	}
	return false
}

// sweepEvent mirrors the JSON envelope pkg/statusstream.Hub broadcasts;
// kept as a local, narrower copy rather than importing that package so
// this one-shot/streaming CLI doesn't pull in a WebSocket server.
type sweepEvent struct {
	Type         string `json:"type"`
	ProductionID int64  `json:"production_id"`
	Created      int    `json:"created"`
	Active       int    `json:"active"`
	Successful   int    `json:"successful"`
	Failed       int    `json:"failed"`
	Undef        int    `json:"undef"`
	Quit         bool   `json:"quit"`
	Time         string `json:"time"`
}

// watchSweeps connects to a running prodctl's status-stream endpoint and
// prints one line per sweep event until the connection closes or the
// process is interrupted.
func watchSweeps(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("report-jobs: connect to %s: %w", url, err)
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("report-jobs: stream closed: %w", err)
		}
		var ev sweepEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		fmt.Printf("%s production=%d created=%d active=%d ok=%d fail=%d undef=%d quit=%v\n",
			ev.Time, ev.ProductionID, ev.Created, ev.Active, ev.Successful, ev.Failed, ev.Undef, ev.Quit)
	}
}

func printDetail(rows []jobRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCTION\tJOB\tSITE\tSTATUS\tNODE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.production, r.job, r.site, r.status, r.node)
	}
	w.Flush()
}

func printSummary(rows []jobRow) {
	type key struct {
		site   string
		status catalog.JobStatus
	}
	counts := make(map[key]int)
	for _, r := range rows {
		counts[key{r.site, r.status}]++
	}

	keys := make([]key, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].site != keys[j].site {
			return keys[i].site < keys[j].site
		}
		return keys[i].status < keys[j].status
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tSTATUS\tCOUNT")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%d\n", k.site, k.status, counts[k])
	}
	w.Flush()
}
