package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PatD42/confluence-sync/internal/orchestrator"
)

// statusCmd implements `confluence-sync status`: classify every
// configured space without applying anything, and print the breakdown.
// Reuses the orchestrator's dry-run path so status and sync can never
// disagree about a page's classification.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current classification without syncing",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger, cleanup, err := setupLogger()
	if err != nil {
		return err
	}
	defer cleanup()

	orch, cfg, led, err := buildOrchestrator(logger)
	if err != nil {
		return err
	}
	defer led.Close()

	code, report, err := orch.Run(cmd.Context(), cfg, orchestrator.Opts{DryRun: true})
	if err != nil {
		return err
	}

	fmt.Println("Sync status:")
	printStatusLine("Push (local changed)", report.Pushed)
	printStatusLine("Pull (remote changed)", report.Pulled)
	printStatusLine("Create", report.Created)
	printStatusLine("Delete", report.Deleted)
	printStatusLine("Move", report.Moved)
	printStatusLine("Conflicts", report.Conflicts)
	printStatusLine("Unchanged", report.Unchanged)

	finalExitCode = int(code)
	return nil
}

func printStatusLine(label string, count int) {
	fmt.Printf("  %-24s %4d\n", label+":", count)
}
