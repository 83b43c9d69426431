// Package main provides the entry point for the confluence-sync CLI tool.
//
// confluence-sync is a bidirectional synchronization tool between a
// Confluence-like hosted wiki and a local directory of Markdown files,
// three-way-merging content and propagating moves, creates and deletes.
package main

import (
	"fmt"
	"os"

	"github.com/PatD42/confluence-sync/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if cli.ExitCode() == 0 {
			os.Exit(1)
		}
		os.Exit(cli.ExitCode())
	}
	os.Exit(cli.ExitCode())
}
