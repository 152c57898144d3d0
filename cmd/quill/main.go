// Quill is a chat client that lets a language model manage files and
// conversations through a small JSON command protocol.
//
// Every model reply is scanned for a JSON object listing commands. Each
// command is checked against a fixed registry, executed inside a
// sandboxed storage directory, and its results are fed back to the
// model when it asks for them. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	quill chat [prompt...]     Start an interactive conversation
//	quill ask <prompt>         Run a single turn and print the reply
//	quill commands             List the commands the model may use
//	quill convs                List saved conversations
//	quill stats                Show per-command call statistics
//	quill history <session>    Show the journaled turns of a session
//	quill init [dir]           Initialize a working directory with defaults
//	quill version              Print version and build information
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nugget/quill/internal/buildinfo"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so that the
// whole command surface can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Conversation output goes to stdout and
// structured logs go to stderr. The command tree is built per call so
// run holds no package-level state.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	root := newRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	output     string
	logLevel   string
}

func (g *globalFlags) json() bool {
	return g.output == "json"
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "quill",
		Short:         "Command-interpreting chat client",
		Long:          "Quill lets a language model manage files and conversations through a JSON command protocol.",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.output != "text" && g.output != "json" {
				return fmt.Errorf("unknown output format: %q (expected text or json)", g.output)
			}
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to config file (default: auto-discover)")
	root.PersistentFlags().StringVarP(&g.output, "output", "o", "text", "output format: text or json")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override: trace, debug, info, warn, error")

	root.AddCommand(
		chatCmd(g),
		askCmd(g),
		commandsCmd(g),
		convsCmd(g),
		statsCmd(g),
		historyCmd(g),
		initCmd(),
		versionCmd(g),
	)
	return root
}
