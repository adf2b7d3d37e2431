// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package outputparser extracts structured facts from the captured
// stdout/stderr of a finished job: worker-node identity, wall-clock and
// payload-program timestamps, reconstruction/simulation summary
// counters, and produced-file records. It is tolerant by construction —
// every field is optional, and unparseable content never aborts the
// scan — mirroring the line-at-a-time regex scan a payload script's own
// log consumer performs.
package outputparser

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var (
	workerNodeRe = regexp.MustCompile(`^Job running on node (\S+) as user (\S+) in dir (\S+)\s*$`)
	jobStartRe   = regexp.MustCompile(`^Job starting at (.*) \(UTC\)$`)
	jobEndRe     = regexp.MustCompile(`^Job ending at (.*) \(UTC\)$`)
	progStartRe  = regexp.MustCompile(`^Program starting at (.*) \(UTC\)$`)
	progEndRe    = regexp.MustCompile(`^Program ending at (.*) \(UTC\)$`)

	recoInfoRe      = regexp.MustCompile(`^RecoInfo - .*$`)
	recoProcessedRe = regexp.MustCompile(`^.*Processed Events\s+(\d+)\s*$`)

	mcInfoRe     = regexp.MustCompile(`^PadmeMCInfo - .*$`)
	mcTotalRe    = regexp.MustCompile(`^.*Total Events\s+(\d+)\s*$`)

	fileRecordRe = regexp.MustCompile(`^(\S+) file (\S+) with size (\d+) and adler32 (\S+) copied.*$`)

	runtimeProblemRe = regexp.MustCompile(`Error in <TNetXNGFile::Open>: \[ERROR\]`)
)

// FileRecord is one produced-artifact line extracted from stdout.
type FileRecord struct {
	Type    string
	Name    string
	Size    int64
	Adler32 string
}

// Summary holds everything the parser was able to extract. Every field
// is optional; a zero value means "not present in the scanned output",
// not "present and zero".
type Summary struct {
	WorkerNode string
	WnUser     string
	WnDir      string

	JobStart string
	JobEnd   string

	ProgStart string
	ProgEnd   string

	// ProcessedEvents is the first "Processed Events"/"Total Events"
	// integer found in a RecoInfo-/PadmeMCInfo- line, whichever flavor
	// the payload happens to be.
	ProcessedEvents    int64
	HasProcessedEvents bool

	Files []FileRecord

	// RuntimeProblem is set when stderr matched the xrootd open-failure
	// pattern, independent of the job's reported exit code.
	RuntimeProblem bool
}

// Parse scans stdout line by line, extracting every recognized pattern.
// It never returns an error: unmatched or malformed lines are simply
// skipped.
func Parse(stdout io.Reader) Summary {
	var s Summary
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := workerNodeRe.FindStringSubmatch(line); m != nil {
			s.WorkerNode, s.WnUser, s.WnDir = m[1], m[2], m[3]
			continue
		}
		if m := jobStartRe.FindStringSubmatch(line); m != nil {
			s.JobStart = m[1]
			continue
		}
		if m := jobEndRe.FindStringSubmatch(line); m != nil {
			s.JobEnd = m[1]
			continue
		}
		if m := progStartRe.FindStringSubmatch(line); m != nil {
			s.ProgStart = m[1]
			continue
		}
		if m := progEndRe.FindStringSubmatch(line); m != nil {
			s.ProgEnd = m[1]
			continue
		}
		if recoInfoRe.MatchString(line) {
			if m := recoProcessedRe.FindStringSubmatch(line); m != nil && !s.HasProcessedEvents {
				if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					s.ProcessedEvents, s.HasProcessedEvents = n, true
				}
			}
			continue
		}
		if mcInfoRe.MatchString(line) {
			if m := mcTotalRe.FindStringSubmatch(line); m != nil && !s.HasProcessedEvents {
				if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					s.ProcessedEvents, s.HasProcessedEvents = n, true
				}
			}
			continue
		}
		if m := fileRecordRe.FindStringSubmatch(line); m != nil {
			size, err := strconv.ParseInt(m[3], 10, 64)
			if err != nil {
				continue
			}
			s.Files = append(s.Files, FileRecord{
				Type: m[1], Name: m[2], Size: size, Adler32: m[4],
			})
			continue
		}
	}
	return s
}

// ScanStderr reports whether stderr carries the xrootd open-failure
// pattern that marks a job "runtime-problem" even on exit code zero.
func ScanStderr(stderr io.Reader) bool {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if runtimeProblemRe.MatchString(strings.TrimRight(scanner.Text(), "\r\n")) {
			return true
		}
	}
	return false
}
