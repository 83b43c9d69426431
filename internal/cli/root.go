// Package cli implements the Cobra-based command-line interface for
// confluence-sync.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PatD42/confluence-sync/internal/config"
	"github.com/PatD42/confluence-sync/internal/docconverter"
	"github.com/PatD42/confluence-sync/internal/ledger"
	"github.com/PatD42/confluence-sync/internal/orchestrator"
	"github.com/PatD42/confluence-sync/internal/progress"
	"github.com/PatD42/confluence-sync/internal/remote"
	"github.com/PatD42/confluence-sync/internal/retry"
	"github.com/PatD42/confluence-sync/internal/state"
	"github.com/PatD42/confluence-sync/internal/store"
)

// stateDir is the fixed persisted-state root.
const stateDir = ".confluence-sync"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	dryRun        bool
	forcePush     bool
	forcePull     bool
	verbosity     int
	noColor       bool
	logDir        string
	initSpace     string
	converterPath string
)

// SetVersion sets the version information reported by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = v
	rootCmd.SetVersionTemplate(fmt.Sprintf("confluence-sync %s (commit: %s, built: %s)\n", version, commit, date))
}

var rootCmd = &cobra.Command{
	Use:     "confluence-sync [FILE]",
	Short:   "Bidirectional sync between a Confluence-like wiki and a local Markdown tree",
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	Long: `confluence-sync keeps a directory of Markdown files and a remote wiki space
in sync, three-way-merging content that changed on both sides and
propagating moves, creates and deletes in either direction.

Run with no arguments to sync every configured space. Pass a single file
path to sync just that file (this does not advance last_synced).`,
	RunE: runRootSync,
}

// Execute adds every subcommand to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "classify and report; apply nothing")
	rootCmd.PersistentFlags().BoolVar(&forcePush, "force-push", false, "bypass change detection, push local content everywhere")
	rootCmd.PersistentFlags().BoolVar(&forcePull, "force-pull", false, "bypass change detection, pull remote content everywhere")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "0=warning, 1=info, 2=debug")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI coloring")
	rootCmd.PersistentFlags().StringVar(&logDir, "logdir", "", "write logs to DIR/confluence-sync-YYYYMMDD-HHMMSS.log (default: stderr only)")
	rootCmd.PersistentFlags().StringVar(&converterPath, "converter", "confluence-md-convert", "external storage<->markdown converter binary")
	rootCmd.Flags().StringVar(&initSpace, "init", "", `initialize config from "SPACE:Path" (the command's single positional arg is then LOCAL_PATH)`)

	rootCmd.SetVersionTemplate(fmt.Sprintf("confluence-sync %s (commit: %s, built: %s)\n", version, commit, date))

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(conflictsCmd)
}

func runRootSync(cmd *cobra.Command, args []string) error {
	if initSpace != "" {
		if len(args) != 1 {
			return fmt.Errorf("--init requires exactly one LOCAL_PATH argument")
		}
		return runInit(cmd.Context(), initSpace, args[0])
	}
	if forcePush && forcePull {
		return fmt.Errorf("--force-push and --force-pull are mutually exclusive")
	}

	var singleFile string
	if len(args) == 1 {
		singleFile = args[0]
	}

	return runSync(singleFile)
}

// setupLogger builds the slog.Logger every command shares, honoring -v
// and --logdir: records go to stderr plus, when --logdir is set, a
// timestamped file under that directory.
func setupLogger() (*slog.Logger, func(), error) {
	level := slog.LevelWarn
	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}

	var dest io.Writer = os.Stderr
	cleanup := func() {}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, cleanup, fmt.Errorf("create logdir: %w", err)
		}
		name := fmt.Sprintf("confluence-sync-%s.log", time.Now().Format("20060102-150405"))
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, fmt.Errorf("open log file: %w", err)
		}
		dest = io.MultiWriter(os.Stderr, f)
		cleanup = func() { f.Close() }
	}

	return slog.New(slog.NewTextHandler(dest, &slog.HandlerOptions{Level: level})), cleanup, nil
}

// loadCredentials resolves CONFLUENCE_URL/CONFLUENCE_USER/CONFLUENCE_API_TOKEN
// from the process environment, first loading a .env file in the current
// directory if present. Credential values are never logged.
func loadCredentials() (baseURL, user, token string, err error) {
	loadDotenv(".env")

	baseURL = os.Getenv("CONFLUENCE_URL")
	user = os.Getenv("CONFLUENCE_USER")
	token = os.Getenv("CONFLUENCE_API_TOKEN")
	if baseURL == "" || user == "" || token == "" {
		return "", "", "", fmt.Errorf("CONFLUENCE_URL, CONFLUENCE_USER and CONFLUENCE_API_TOKEN must all be set (in the environment or a .env file)")
	}
	return baseURL, user, token, nil
}

func loadDotenv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, already := os.LookupEnv(key); !already {
			os.Setenv(key, value)
		}
	}
}

// buildOrchestrator wires every collaborator the core pipeline needs.
func buildOrchestrator(logger *slog.Logger) (*orchestrator.Orchestrator, *config.Config, *ledger.Ledger, error) {
	cfgPath := filepath.Join(stateDir, "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config (run --init first): %w", err)
	}

	baseURL, user, token, err := loadCredentials()
	if err != nil {
		return nil, nil, nil, err
	}

	api := remote.New(baseURL, user, token)
	shell := retry.NewShell()
	conv := docconverter.New(converterPath)

	baseline, err := store.Open(filepath.Join(stateDir, "baseline"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open baseline store: %w", err)
	}

	st, err := state.Load(filepath.Join(stateDir, "state.yaml"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load state: %w", err)
	}

	led, err := ledger.Open(filepath.Join(stateDir, "ledger.db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	orch := orchestrator.New(api, shell, conv, baseline, st, cfg.WorkerCount, logger)
	orch.Ledger = led
	if !noColor {
		orch.Progress = progress.NewProgress(os.Stderr, 0)
	}
	return orch, cfg, led, nil
}
