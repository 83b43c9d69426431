package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/PatD42/confluence-sync/internal/config"
)

var watchDebounce time.Duration

// watchCmd implements `confluence-sync watch`: re-run sync whenever the
// local filesystem changes, debounced so a burst of saves collapses into
// one run. Every configured space's local_path is watched recursively.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch local_path for changes and sync automatically",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 5*time.Second, "wait this long after the last change before syncing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(filepath.Join(stateDir, "config.yaml"))
	if err != nil {
		return fmt.Errorf("load config (run --init first): %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, space := range cfg.Spaces {
		if err := addRecursive(watcher, space.LocalPath); err != nil {
			return fmt.Errorf("watch %s: %w", space.LocalPath, err)
		}
	}

	fmt.Println("Watching for changes. Press Ctrl+C to stop.")

	var timer *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-trigger:
			if err := runSync(""); err != nil {
				fmt.Fprintf(os.Stderr, "sync error: %v\n", err)
			}
		case <-cmd.Context().Done():
			return nil
		}
	}
}

// addRecursive adds root and every subdirectory to the watcher: fsnotify
// does not watch subtrees on its own.
func addRecursive(w *fsnotify.Watcher, root string) error {
	return walkDirs(root, func(dir string) error {
		return w.Add(dir)
	})
}

func walkDirs(root string, fn func(dir string) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	if err := fn(root); err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			if err := walkDirs(root+string(os.PathSeparator)+e.Name(), fn); err != nil {
				return err
			}
		}
	}
	return nil
}
