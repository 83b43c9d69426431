package cli

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PatD42/confluence-sync/internal/ledger"
)

// conflictsCmd implements `confluence-sync conflicts [list|resolve]`,
// reading and writing the ledger's conflicts table.
var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List or resolve recorded content conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved conflicts",
	RunE:  runConflictsList,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve ID kept-local|kept-remote|merged-clean",
	Short: "Mark a conflict resolved",
	Args:  cobra.ExactArgs(2),
	RunE:  runConflictsResolve,
}

func init() {
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
}

func openLedger() (*ledger.Ledger, error) {
	return ledger.Open(filepath.Join(stateDir, "ledger.db"))
}

func runConflictsList(cmd *cobra.Command, args []string) error {
	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	conflicts, err := led.GetConflicts()
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("No unresolved conflicts.")
		return nil
	}
	for _, c := range conflicts {
		fmt.Printf("%4d  %s  %s  (detected %s)\n", c.ID, c.PageID, c.LocalPath, c.DetectedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid conflict id %q: %w", args[0], err)
	}

	var resolution ledger.Resolution
	switch args[1] {
	case "kept-local":
		resolution = ledger.KeptLocal
	case "kept-remote":
		resolution = ledger.KeptRemote
	case "merged-clean":
		resolution = ledger.MergedClean
	default:
		return fmt.Errorf("unknown resolution %q (want kept-local, kept-remote or merged-clean)", args[1])
	}

	led, err := openLedger()
	if err != nil {
		return err
	}
	defer led.Close()

	if err := led.ResolveConflict(id, resolution); err != nil {
		return err
	}
	fmt.Printf("Conflict %d resolved as %s.\n", id, resolution)
	return nil
}
