package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PatD42/confluence-sync/internal/ledger"
	"github.com/PatD42/confluence-sync/internal/orchestrator"
)

// finalExitCode is read by main() after Execute returns, carrying the
// 0-4 process exit status that cobra's own RunE-error convention (always
// exit 1) cannot express on its own.
var finalExitCode int

// ExitCode returns the exit status the most recent command run produced.
func ExitCode() int {
	return finalExitCode
}

// runSync is the default (and single-file) sync entry point: build the
// orchestrator, run the pipeline, print a human summary, and persist run
// history to the ledger.
func runSync(singleFile string) error {
	logger, cleanup, err := setupLogger()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	orch, cfg, led, err := buildOrchestrator(logger)
	if err != nil {
		return err
	}
	defer led.Close()

	opts := orchestrator.Opts{
		DryRun:     dryRun,
		ForcePush:  forcePush,
		ForcePull:  forcePull,
		SingleFile: singleFile,
	}

	started := time.Now()
	code, report, runErr := orch.Run(ctx, cfg, opts)
	finished := time.Now()

	printSummary(report, dryRun)

	if !dryRun {
		run := ledger.Run{
			StartedAt:   started,
			FinishedAt:  finished,
			PagesPushed: report.Pushed,
			PagesPulled: report.Pulled,
			Conflicts:   report.Conflicts,
			Errors:      report.Failed,
			ExitCode:    int(code),
		}
		if err := led.RecordRun(run); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not record run history: %v\n", err)
		}
	}

	finalExitCode = int(code)
	if runErr != nil {
		return runErr
	}
	return nil
}

// signalContext returns a context canceled on SIGINT/SIGTERM, so an
// in-flight sync gets the chance to finish its current page rather than
// being killed mid-write.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, stop
}

func printSummary(report *orchestrator.Report, dry bool) {
	if report == nil {
		return
	}

	if dry {
		for _, r := range report.Results {
			label := r.Path
			if label == "" {
				label = r.PageID
			}
			fmt.Printf("%-12s %s\n", r.Class, label)
		}
	}

	line := fmt.Sprintf("Synced %d pages (%d pushed, %d pulled)", report.Pushed+report.Pulled, report.Pushed, report.Pulled)
	if dry {
		line = "Would sync" + strings.TrimPrefix(line, "Synced")
	}
	fmt.Println(line)
	if n := report.Created + report.Deleted + report.Moved; n > 0 {
		fmt.Printf("%d created, %d deleted, %d moved\n", report.Created, report.Deleted, report.Moved)
	}
	if report.Conflicts > 0 {
		fmt.Printf("%d page(s) with unresolved conflicts\n", report.Conflicts)
	}
	if report.Failed > 0 {
		fmt.Printf("%d page(s) failed\n", report.Failed)
	}

	for _, r := range report.Results {
		if r.Err == nil {
			continue
		}
		label := r.Path
		if label == "" {
			label = r.PageID
		}
		msg := fmt.Sprintf("%s: %v", label, r.Err)
		if !noColor {
			msg = "\x1b[31m" + msg + "\x1b[0m"
		}
		fmt.Fprintln(os.Stderr, msg)
	}
}
