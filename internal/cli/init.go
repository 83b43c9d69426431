package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PatD42/confluence-sync/internal/config"
	"github.com/PatD42/confluence-sync/internal/remote"
	"github.com/PatD42/confluence-sync/internal/retry"
)

// runInit implements `confluence-sync --init "SPACE:Path" LOCAL_PATH`:
// it resolves Path to a page id by walking the title hierarchy one
// segment at a time, then appends (or creates)
// .confluence-sync/config.yaml. A trailing "/" alone, or an empty path,
// selects the space root.
func runInit(ctx context.Context, spaceArg, localPath string) error {
	spaceKey, path, ok := strings.Cut(spaceArg, ":")
	if !ok {
		return fmt.Errorf("--init expects \"SPACE:Path\", got %q", spaceArg)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	baseURL, user, token, err := loadCredentials()
	if err != nil {
		return err
	}
	api := remote.New(baseURL, user, token)
	shell := retry.NewShell()

	fmt.Printf("Resolving %s in space %s...\n", path, spaceKey)
	parentID, err := resolvePagePath(ctx, api, shell, spaceKey, path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	if parentID == "" {
		fmt.Println("  -> space root")
	} else {
		fmt.Printf("  -> page id %s\n", parentID)
	}

	cfgPath := ".confluence-sync/config.yaml"
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if existing := cfg.SpaceByKey(spaceKey); existing != nil {
		return fmt.Errorf("space %s is already configured (local_path %s)", spaceKey, existing.LocalPath)
	}
	cfg.Spaces = append(cfg.Spaces, config.Space{
		SpaceKey:     spaceKey,
		ParentPageID: parentID,
		LocalPath:    localPath,
		PageLimit:    10000,
	})

	if err := cfg.Save(cfgPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", cfgPath)
	return nil
}

// resolvePagePath walks a "/"-separated title path one segment at a time,
// using SearchByQuery to find the child with a matching title directly
// under the current parent. An empty or "/"-only path means "space root".
// Title-based resolution is a simplifying assumption: the remote offers
// no dedicated path-lookup primitive, only SearchByQuery.
func resolvePagePath(ctx context.Context, api remote.API, shell *retry.Shell, spaceKey, path string) (string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	parentID := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		query := fmt.Sprintf("space = %q AND title = %q", spaceKey, seg)
		var results []remote.PageSummary
		err := shell.Call(ctx, func(ctx context.Context) error {
			var callErr error
			results, callErr = api.SearchByQuery(ctx, query, []string{"ancestors"}, 10)
			return callErr
		})
		if err != nil {
			return "", err
		}

		found := ""
		for _, r := range results {
			if matchesParent(r.AncestorChain, parentID) {
				found = r.PageID
				break
			}
		}
		if found == "" {
			return "", fmt.Errorf("no page titled %q found under the expected parent", seg)
		}
		parentID = found
	}
	return parentID, nil
}

func matchesParent(chain []string, parentID string) bool {
	if parentID == "" {
		return len(chain) == 0
	}
	return len(chain) > 0 && chain[len(chain)-1] == parentID
}
