// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements extractctl, a thin CLI demonstrating job
// submission against the in-process extraction core. It is not a
// server: every job it submits runs and completes within the same
// process invocation, since pkg/jobmgr keeps no state across process
// boundaries.
//
// Usage:
//
//	extractctl submit --source <path|url> --ops <op-string> [options]
//	extractctl plugins --manifest <path>
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ingestlabs/extractcore/internal/output"
	"github.com/ingestlabs/extractcore/internal/ui"
	"github.com/ingestlabs/extractcore/internal/xerrors"
	"github.com/ingestlabs/extractcore/pkg/acquire"
	"github.com/ingestlabs/extractcore/pkg/jobmgr"
	"github.com/ingestlabs/extractcore/pkg/pipeline"
	"github.com/ingestlabs/extractcore/pkg/registry"
	"github.com/ingestlabs/extractcore/pkg/throttle"
	"github.com/ingestlabs/extractcore/pkg/types"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are the flags recognized before the subcommand name.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

func main() {
	var globals GlobalFlags
	var showVersion bool
	var manifestPath string

	flags := pflag.NewFlagSet("extractctl", pflag.ExitOnError)
	flags.BoolVar(&globals.JSON, "json", false, "Output as JSON")
	flags.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	flags.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flags.CountVarP(&globals.Verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	flags.StringVar(&manifestPath, "manifest", "", "Path to a plugin descriptor manifest (YAML)")
	flags.BoolVar(&showVersion, "version", false, "Show version and exit")
	flags.Usage = usage

	_ = flags.Parse(os.Args[1:])
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	if showVersion {
		fmt.Printf("extractctl version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(xerrors.ExitSuccess)
	}

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(xerrors.ExitInput)
	}

	logger := newLogger(globals)

	switch args[0] {
	case "submit":
		runSubmit(logger, globals, manifestPath, args[1:])
	case "bulk":
		runBulk(logger, globals, manifestPath, args[1:])
	case "plugins":
		runPlugins(globals, manifestPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flags.Usage()
		os.Exit(xerrors.ExitInput)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `extractctl - document/media ingestion engine CLI

Usage:
  extractctl submit --source <path|url> --ops <op-string> [options]
  extractctl bulk --sources <path,path,...> --ops <op-string> [options]
  extractctl plugins --manifest <path>

Commands:
  submit   Acquire a source, run a pipeline over it, and print the result
  bulk     Fan a pipeline out over several sources, streaming each job's
           terminal status as NDJSON in --json mode
  plugins  List the descriptors in a plugin manifest (metadata only)

Submit Options:
  --source    file path, http(s):// URL, or s3://bucket/key
  --ops       operation string, e.g. "extract;[layout,chunk]"
  --required  comma-separated required feature names
  --optional  comma-separated optional feature names
  --quality   fast|balanced|accurate (default: balanced)

Bulk Options:
  --sources   comma-separated list of file paths, URLs, or s3://bucket/key
  --ops       operation string, e.g. "extract;[layout,chunk]"
  --batch-id  batch identifier (default: generated)

Global Options:
  --json        Output machine-readable JSON
  -q, --quiet   Suppress progress output
  --no-color    Disable colored output
  -v            Increase log verbosity (repeatable)
  --manifest    Plugin descriptor manifest (YAML)
  --version     Show version and exit
`)
}

func newLogger(globals GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case globals.Verbose >= 2:
		level = slog.LevelDebug
	case globals.Verbose == 1:
		level = slog.LevelInfo
	}
	if globals.Quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runPlugins(globals GlobalFlags, manifestPath string) {
	if manifestPath == "" {
		exitUser(globals, xerrors.NewInputError(
			"no plugin manifest given",
			"the plugins command needs --manifest",
			"pass --manifest path/to/plugins.yaml",
		))
	}

	descriptors, err := registry.LoadDescriptorsYAML(manifestPath)
	if err != nil {
		exitUser(globals, xerrors.NewIOError(
			"failed to load plugin manifest",
			err.Error(),
			"check the manifest path and YAML syntax",
			err,
		))
	}

	if globals.JSON {
		_ = output.JSON(descriptors)
		return
	}
	ui.Header("Plugin Descriptors")
	for _, d := range descriptors {
		fmt.Printf("%s  %s\n", ui.Label(d.Name), d.Description)
		fmt.Printf("  in:  %v\n", d.InputCapabilities)
		fmt.Printf("  out: %v\n", d.OutputCapabilities)
	}
}

// buildManager wires a registry, acquirer, and pipeline executor into
// a fresh jobmgr.Manager. The manifest, if given, is loaded only to
// log its descriptor count — no plugins are registered from it, since
// no concrete plugin implementations ship in this module (see
// pkg/registry/manifest.go's doc comment).
func buildManager(logger *slog.Logger, manifestPath string) (*jobmgr.Manager, *acquire.Acquirer) {
	reg := registry.New()
	if manifestPath != "" {
		descriptors, err := registry.LoadDescriptorsYAML(manifestPath)
		if err != nil {
			logger.Warn("failed to load plugin manifest", "path", manifestPath, "err", err)
		} else {
			logger.Info("loaded plugin descriptors (metadata only, no implementation wired)", "count", len(descriptors))
		}
	}

	acquirer := acquire.New(nil, logger)
	executor := pipeline.New(reg, throttle.New(throttle.DefaultConfig()), logger)
	return jobmgr.New(acquirer, executor, logger), acquirer
}

func runSubmit(logger *slog.Logger, globals GlobalFlags, manifestPath string, args []string) {
	fs := pflag.NewFlagSet("submit", pflag.ExitOnError)
	source := fs.String("source", "", "Source location: file path, http(s):// URL, or s3://bucket/key")
	opString := fs.String("ops", "", `Operation string, e.g. "extract;[layout,chunk]"`)
	required := fs.StringSlice("required", nil, "Required feature names")
	optional := fs.StringSlice("optional", nil, "Optional feature names")
	quality := fs.String("quality", "balanced", "Quality mode: fast|balanced|accurate")
	_ = fs.Parse(args)

	if *source == "" || *opString == "" {
		exitUser(globals, xerrors.NewInputError(
			"submit requires --source and --ops",
			"one or both flags were empty",
			`pass --source <path|url> --ops "<op-string>"`,
		))
	}

	manager, acquirer := buildManager(logger, manifestPath)
	defer acquirer.Close()

	sub := jobmgr.RealtimeSubmission{
		Source: jobmgr.SourceDescriptor{Location: *source},
		Processing: jobmgr.ProcessingOptions{
			RequiredFeatures: *required,
			OptionalFeatures: *optional,
			QualityMode:      *quality,
		},
	}

	resp, err := manager.SubmitRealtime(*opString, sub)
	if err != nil {
		exitUser(globals, xerrors.NewInputError("invalid operation string", err.Error(), "check --ops against the pipeline DSL grammar"))
	}

	status := awaitTerminal(globals, manager, resp.JobID)
	printStatus(globals, status)
	if status.Status != types.JobCompleted {
		os.Exit(xerrors.ExitInternal)
	}

	result, _ := manager.Result(resp.JobID)
	printResult(globals, result)
}

func runBulk(logger *slog.Logger, globals GlobalFlags, manifestPath string, args []string) {
	fs := pflag.NewFlagSet("bulk", pflag.ExitOnError)
	sources := fs.String("sources", "", "Comma-separated source locations")
	opString := fs.String("ops", "", `Operation string, e.g. "extract;[layout,chunk]"`)
	batchID := fs.String("batch-id", "", "Batch identifier (default: generated)")
	_ = fs.Parse(args)

	if *sources == "" || *opString == "" {
		exitUser(globals, xerrors.NewInputError(
			"bulk requires --sources and --ops",
			"one or both flags were empty",
			`pass --sources <path,path,...> --ops "<op-string>"`,
		))
	}
	if *batchID == "" {
		*batchID = uuid.NewString()
	}

	manager, acquirer := buildManager(logger, manifestPath)
	defer acquirer.Close()

	locations := strings.Split(*sources, ",")
	files := make([]jobmgr.BulkFile, len(locations))
	for i, loc := range locations {
		files[i] = jobmgr.BulkFile{ID: fmt.Sprintf("f%d", i), Source: jobmgr.SourceDescriptor{Location: strings.TrimSpace(loc)}}
	}

	resp, err := manager.SubmitBulk(*opString, jobmgr.BulkSubmission{BatchID: *batchID, Files: files})
	if err != nil {
		exitUser(globals, xerrors.NewInputError("invalid operation string", err.Error(), "check --ops against the pipeline DSL grammar"))
	}
	if !globals.JSON {
		ui.Header("Bulk Submission")
		fmt.Printf("%s %s\n", ui.Label("Batch:"), resp.BatchID)
	}

	failures := 0
	for _, jobID := range resp.JobIDs {
		status := awaitTerminal(globals, manager, jobID)
		if status.Status != types.JobCompleted {
			failures++
		}
		if globals.JSON {
			_ = output.JSONBulkLine(os.Stdout, output.BulkStatusLine{JobID: jobID, Status: string(status.Status), Error: status.Error})
			continue
		}
		fmt.Printf("  %s  %s  %s\n", jobID, ui.JobStatusLine(status.Status), ui.TaskTally(status.CompletedTasks, status.TotalTasks, status.FailedTasks))
	}
	if failures > 0 {
		os.Exit(xerrors.ExitInternal)
	}
}

func awaitTerminal(globals GlobalFlags, manager *jobmgr.Manager, jobID string) types.JobStatus {
	cfg := NewProgressConfig(globals)
	spinner := NewSpinner(cfg, phaseDescription("execute"))

	for {
		status, ok := manager.Status(jobID)
		if !ok {
			return types.JobStatus{ID: jobID, Status: types.JobFailed, Error: "job not found"}
		}
		if spinner != nil {
			_ = spinner.Add(1)
		}
		if status.Status.Terminal() {
			if spinner != nil {
				_ = spinner.Finish()
			}
			return status
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func printStatus(globals GlobalFlags, status types.JobStatus) {
	if globals.JSON {
		_ = output.JSON(status)
		return
	}
	ui.Header("Job Status")
	fmt.Printf("%s %s\n", ui.Label("ID:"), status.ID)
	fmt.Printf("%s %s\n", ui.Label("Status:"), ui.JobStatusLine(status.Status))
	fmt.Printf("%s %s\n", ui.Label("Tasks:"), ui.TaskTally(status.CompletedTasks, status.TotalTasks, status.FailedTasks))
	if status.Error != "" {
		ui.Error(status.Error)
	}
}

func printResult(globals GlobalFlags, result jobmgr.ResultResponse) {
	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	ui.SubHeader("Results:")
	for op, value := range result.Results {
		fmt.Printf("  %s: %v\n", op, value)
	}
}

func exitUser(globals GlobalFlags, err *xerrors.UserError) {
	xerrors.FatalError(err, globals.JSON)
}

// phaseDescription maps an internal phase name to its human-readable
// progress label. Unknown phases pass through unchanged so a new
// pipeline stage never needs a CLI change to show up.
func phaseDescription(phase string) string {
	switch phase {
	case "acquire":
		return "Acquiring source"
	case "execute":
		return "Running pipeline"
	case "finalize":
		return "Finalizing results"
	default:
		return phase
	}
}
