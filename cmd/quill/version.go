package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nugget/quill/internal/buildinfo"
)

func versionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), g.json())
		},
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, asJSON bool) error {
	info := buildinfo.Info()
	if asJSON {
		return printJSON(w, info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}
