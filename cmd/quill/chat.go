package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nugget/quill/internal/agent"
)

func chatCmd(g *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Start an interactive conversation",
		Long:  "Start an interactive conversation. An optional prompt is sent as the first input. Type \"exit\" to quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if name == "" {
				name = a.cfg.Agent.SessionName
			}
			sess, err := agent.NewSession(name)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), a.loop, sess, cmd.InOrStdin(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "conversation name (default: timestamp)")
	return cmd
}

// runChat reads human input line by line until "exit" or end of input.
// Model errors are printed and the loop continues with every turn that
// completed before the error.
func runChat(ctx context.Context, loop *agent.Loop, sess *agent.Session, in io.Reader, out io.Writer, initial string) error {
	fmt.Fprintf(out, "Conversation %s. Type \"exit\" to quit.\n", sess.Name)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	input := strings.TrimSpace(initial)
	for {
		if input == "" {
			fmt.Fprint(out, "> ")
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}
			input = strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
		}
		if strings.EqualFold(input, "exit") {
			fmt.Fprintln(out, "Exiting...")
			return nil
		}

		next, err := loop.Converse(ctx, sess, input, func(r agent.Reply) {
			printReply(out, r)
		})
		input = ""
		if next != nil {
			sess = next
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func printReply(w io.Writer, r agent.Reply) {
	fmt.Fprintf(w, "Assistant: %s\n", r.Message)
}

func askCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Run a single turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := agent.NewSession(a.cfg.Agent.SessionName)
			if err != nil {
				return err
			}
			reply, _, err := a.loop.Turn(cmd.Context(), sess, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if g.json() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(reply.Outcome)
			}
			fmt.Fprintln(out, reply.Message)
			for _, msg := range reply.Outcome.Errors {
				fmt.Fprintln(out, msg)
			}
			for _, e := range reply.Outcome.Results {
				status := "ok"
				if !e.Success {
					status = "failed"
				}
				fmt.Fprintf(out, "[%d] %s %s: %s\n", e.Index, e.Command, status, e.Message)
			}
			return nil
		},
	}
}
